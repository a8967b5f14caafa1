// Package serial 通过串口（蓝牙 SPP 或 USB UART）承载操作员命令行
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"

	"rover/internal/link"
	"rover/internal/logging"
	"rover/pkg/types"
)

// opener 打开串口设备，测试时可替换
type opener func(serial.OpenOptions) (io.ReadWriteCloser, error)

// Link 串口链路
type Link struct {
	*link.Endpoint
	config types.SerialLinkConfig
	open   opener

	mu     sync.Mutex
	port   io.ReadWriteCloser
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.Logger
}

// New 创建串口链路
func New(config types.SerialLinkConfig, ringSize int) *Link {
	if config.BaudRate == 0 {
		config.BaudRate = 9600
	}
	if config.DataBits == 0 {
		config.DataBits = 8
	}
	if config.StopBits == 0 {
		config.StopBits = 1
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 2 * time.Second
	}
	return &Link{
		Endpoint: link.NewEndpoint("serial", ringSize),
		config:   config,
		open:     serial.Open,
		logger:   logging.GetLogger("serial_link"),
	}
}

// options 将链路配置转换为串口参数
func (l *Link) options() serial.OpenOptions {
	opts := serial.OpenOptions{
		PortName: l.config.PortName,
		BaudRate: uint(l.config.BaudRate),
		DataBits: uint(l.config.DataBits),
		StopBits: uint(l.config.StopBits),

		// 纯超时读取（100ms），读循环借此察觉 ctx 取消
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}
	switch l.config.Parity {
	case "E", "e":
		opts.ParityMode = serial.PARITY_EVEN
	case "O", "o":
		opts.ParityMode = serial.PARITY_ODD
	default:
		opts.ParityMode = serial.PARITY_NONE
	}
	return opts
}

// Start 启动连接循环，串口断开后按 RetryInterval 重连
func (l *Link) Start(ctx context.Context) error {
	if l.config.PortName == "" {
		return fmt.Errorf("serial link: port_name is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(ctx)
	l.logger.Info("Serial link started", "port", l.config.PortName, "baud", l.config.BaudRate)
	return nil
}

func (l *Link) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			l.Endpoint.Close(nil)
			return
		}
		l.Endpoint.Close(err)

		select {
		case <-time.After(l.config.RetryInterval):
		case <-ctx.Done():
			l.Endpoint.Close(nil)
			return
		}
	}
}

// session 打开串口并读写，直到出错或 ctx 取消
func (l *Link) session(ctx context.Context) error {
	l.SetConnecting()
	port, err := l.open(l.options())
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", l.config.PortName, err)
	}
	l.mu.Lock()
	l.port = port
	l.mu.Unlock()
	defer l.closePort()

	l.Open()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writeErr := make(chan error, 1)
	go func() { writeErr <- l.Pump(sessionCtx, port) }()

	readErr := make(chan error, 1)
	go func() { readErr <- l.readLoop(sessionCtx, port) }()

	select {
	case err = <-readErr:
	case err = <-writeErr:
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	l.closePort()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (l *Link) readLoop(ctx context.Context, port io.Reader) error {
	buffer := make([]byte, 256)
	for {
		n, err := port.Read(buffer)
		if n > 0 {
			l.Feed(buffer[:n])
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// 读超时返回 EOF，不算断开
			if errors.Is(err, io.EOF) {
				continue
			}
			return fmt.Errorf("serial read error: %w", err)
		}
	}
}

func (l *Link) closePort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port != nil {
		if err := l.port.Close(); err != nil {
			l.logger.Warn("Failed to close serial port", "error", err)
		}
		l.port = nil
	}
}

// Stop 停止链路并等待后台协程退出
func (l *Link) Stop() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.closePort()
	l.wg.Wait()
	return nil
}
