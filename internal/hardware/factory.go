// Package hardware 根据配置选择硬件后端
package hardware

import (
	"fmt"

	"rover/internal/hal"
	"rover/internal/hal/sim"
	"rover/internal/hardware/modbus"
	"rover/pkg/types"
)

const (
	DriverSim    = "sim"
	DriverModbus = "modbus"
)

// NewBackend 创建配置指定的硬件后端，forceSim 时总是使用模拟板
func NewBackend(cfg types.HardwareConfig, forceSim bool) (hal.Backend, error) {
	driver := cfg.Driver
	if forceSim || driver == "" {
		driver = DriverSim
	}

	switch driver {
	case DriverSim:
		return sim.NewBoard(), nil
	case DriverModbus:
		if cfg.Modbus.Type == "" {
			return nil, fmt.Errorf("modbus driver requires a transport type")
		}
		return modbus.NewBoard(cfg.Modbus), nil
	default:
		return nil, fmt.Errorf("unsupported hardware driver: %s", driver)
	}
}
