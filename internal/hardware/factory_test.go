package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/pkg/types"
)

func TestNewBackend(t *testing.T) {
	modbusCfg := types.HardwareConfig{
		Driver: DriverModbus,
		Modbus: types.ModbusConfig{Type: "tcp", Address: "127.0.0.1", Port: 502},
	}

	b, err := NewBackend(types.HardwareConfig{}, false)
	require.NoError(t, err)
	assert.Equal(t, "sim", b.Name())

	b, err = NewBackend(modbusCfg, false)
	require.NoError(t, err)
	assert.Equal(t, "modbus-tcp", b.Name())

	b, err = NewBackend(modbusCfg, true)
	require.NoError(t, err)
	assert.Equal(t, "sim", b.Name())

	_, err = NewBackend(types.HardwareConfig{Driver: "gpio"}, false)
	assert.Error(t, err)

	_, err = NewBackend(types.HardwareConfig{Driver: DriverModbus}, false)
	assert.Error(t, err)
}
