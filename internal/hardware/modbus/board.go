// Package modbus 通过 Modbus（TCP/RTU/ASCII）驱动电机、舵机与测距传感器驱动板
package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/multierr"

	"rover/internal/logging"
	"rover/pkg/types"
)

// 寄存器布局：
//
//	MotorBase + 2*wheel     方向（0 制动, 1 前进, 2 后退）
//	MotorBase + 2*wheel + 1 占空比百分比
//	JointBase + joint       舵机角度
//	SensorBase + side       输入寄存器，距离（毫米，0 表示无回波）
const (
	DefaultMotorBase  = 0x0000
	DefaultJointBase  = 0x0010
	DefaultSensorBase = 0x0000
	DefaultTimeout    = time.Second
)

// transport 是带连接管理的 Modbus 客户端处理器
type transport interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Board Modbus 驱动板
type Board struct {
	config    types.ModbusConfig
	mu        sync.Mutex
	handler   transport
	client    modbus.Client
	connected bool
	logger    *logging.Logger
}

// NewBoard 创建驱动板，Connect 之前不会打开连接
func NewBoard(config types.ModbusConfig) *Board {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.SlaveID == 0 {
		config.SlaveID = 1
	}
	if config.JointBase == 0 && config.MotorBase == 0 {
		config.JointBase = DefaultJointBase
	}
	return &Board{
		config: config,
		logger: logging.GetLogger("modbus_board"),
	}
}

func (b *Board) Name() string { return "modbus-" + b.config.Type }

// newTransport 按类型创建处理器
func (b *Board) newTransport() (transport, error) {
	c := b.config
	switch c.Type {
	case "tcp", "":
		port := c.Port
		if port == 0 {
			port = 502
		}
		h := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", c.Address, port))
		h.Timeout = c.Timeout
		h.SlaveId = c.SlaveID
		return h, nil
	case "rtu":
		h := modbus.NewRTUClientHandler(c.Address)
		h.BaudRate = c.BaudRate
		h.DataBits = c.DataBits
		h.StopBits = c.StopBits
		h.Parity = c.Parity
		h.SlaveId = c.SlaveID
		h.Timeout = c.Timeout
		return h, nil
	case "ascii":
		h := modbus.NewASCIIClientHandler(c.Address)
		h.BaudRate = c.BaudRate
		h.DataBits = c.DataBits
		h.StopBits = c.StopBits
		h.Parity = c.Parity
		h.SlaveId = c.SlaveID
		h.Timeout = c.Timeout
		return h, nil
	default:
		return nil, fmt.Errorf("unsupported Modbus type: %s", c.Type)
	}
}

// Connect 连接驱动板
func (b *Board) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := b.newTransport()
	if err != nil {
		return err
	}
	if err := h.Connect(); err != nil {
		return fmt.Errorf("failed to connect %s Modbus board at %s: %w", b.config.Type, b.config.Address, err)
	}
	b.attach(h, modbus.NewClient(h))
	b.logger.Info("Modbus board connected", "type", b.config.Type, "address", b.config.Address, "slave_id", b.config.SlaveID)
	return nil
}

func (b *Board) attach(h transport, client modbus.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
	b.client = client
	b.connected = true
}

// WriteMotorOutput 写入一个车轮的方向与占空比
func (b *Board) WriteMotorOutput(wheel types.Wheel, dir types.Direction, duty int) error {
	var payload [4]byte
	binary.BigEndian.PutUint16(payload[0:], uint16(dir))
	binary.BigEndian.PutUint16(payload[2:], uint16(duty))
	addr := b.config.MotorBase + 2*uint16(wheel)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return fmt.Errorf("modbus board not connected")
	}
	if _, err := b.client.WriteMultipleRegisters(addr, 2, payload[:]); err != nil {
		return fmt.Errorf("failed to write motor %s: %w", wheel, err)
	}
	return nil
}

// WriteJointAngle 写入一个舵机角度
func (b *Board) WriteJointAngle(joint int, angle int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return fmt.Errorf("modbus board not connected")
	}
	if _, err := b.client.WriteSingleRegister(b.config.JointBase+uint16(joint), uint16(angle)); err != nil {
		return fmt.Errorf("failed to write joint %d: %w", joint, err)
	}
	return nil
}

// ReadDistance 读取一侧测距（厘米），读取失败返回 -1
func (b *Board) ReadDistance(side types.Side) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return -1
	}
	data, err := b.client.ReadInputRegisters(b.config.SensorBase+uint16(side), 1)
	if err != nil || len(data) < 2 {
		b.logger.Debug("Distance read failed", "side", side.String(), "error", err)
		return -1
	}
	return float64(binary.BigEndian.Uint16(data)) / 10
}

// Close 制动全部电机后关闭连接
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	var err error
	var brake [4 * types.WheelCount]byte
	if _, werr := b.client.WriteMultipleRegisters(b.config.MotorBase, 2*types.WheelCount, brake[:]); werr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to brake motors: %w", werr))
	}
	if cerr := b.handler.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close modbus transport: %w", cerr))
	}
	b.connected = false
	b.client = nil
	b.handler = nil
	return err
}
