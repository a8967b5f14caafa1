// Command rover runs the onboard controller: it loads the configuration,
// connects the motor/servo/sensor hardware, opens the operator links and
// drives the fixed-period control loop until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"rover/internal/config"
	"rover/internal/core"
	"rover/internal/hal"
	"rover/internal/hardware"
	"rover/internal/link"
	"rover/internal/link/serial"
	"rover/internal/link/tcp"
	"rover/internal/link/ws"
	"rover/internal/logging"
	"rover/internal/robot"
	"rover/internal/status"
	"rover/pkg/types"
)

const (
	homeTimeout     = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// operatorLink 是一个可以启动和停止的操作员链路
type operatorLink interface {
	link.Channel
	Start(ctx context.Context) error
	Stop() error
}

type RoverSystem struct {
	configManager core.ConfigManager
	config        types.SystemConfig
	hal           *hal.HardwareAbstractionLayer
	links         []operatorLink
	robot         *robot.Robot
	eventLoop     *core.EventLoop
	ctx           context.Context
	cancel        context.CancelFunc
	running       bool
	logger        *logging.Logger
}

func NewRoverSystem(configPath string, forceSim bool) (*RoverSystem, error) {
	// 1. 加载配置文件，失败时使用默认配置
	var configManager core.ConfigManager = config.NewConfigManager(configPath)
	if err := configManager.LoadConfig(""); err != nil {
		logging.Warn("Failed to load config, using defaults", "config_path", configPath, "error", err)
		// 只有文件不存在时才写出默认配置，不覆盖用户写错的文件
		if errors.Is(err, fs.ErrNotExist) {
			if err := configManager.CreateDefaultConfig(); err != nil {
				logging.Warn("Failed to write default config", "error", err)
			}
		}
	}
	cfg := configManager.GetConfig()

	// 2. 配置日志
	if err := logging.Configure(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	// 3. 创建硬件抽象层
	backend, err := hardware.NewBackend(cfg.Hardware, forceSim)
	if err != nil {
		return nil, fmt.Errorf("failed to create hardware backend: %w", err)
	}
	hw := hal.NewHardwareAbstractionLayer(backend)

	// 4. 创建操作员链路
	links := newLinks(cfg.Links)
	if len(links) == 0 {
		return nil, fmt.Errorf("no operator link enabled")
	}
	channels := make([]link.Channel, len(links))
	for i, l := range links {
		channels[i] = l
	}

	// 5. 创建机器人控制器
	r, err := robot.New(cfg, hw, hal.SystemClock{},
		robot.WithChannels(channels...),
		robot.WithMemoryProbe(&status.RuntimeProbe{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create robot: %w", err)
	}

	// 6. 创建事件循环
	eventLoop := core.NewEventLoop(cfg.Loop.TickInterval)
	if err := eventLoop.RegisterModule(r); err != nil {
		return nil, fmt.Errorf("failed to register robot: %w", err)
	}

	return &RoverSystem{
		configManager: configManager,
		config:        cfg,
		hal:           hw,
		links:         links,
		robot:         r,
		eventLoop:     eventLoop,
		logger:        logging.GetLogger("rover"),
	}, nil
}

func newLinks(cfg types.LinksConfig) []operatorLink {
	var links []operatorLink
	if cfg.Serial.Enabled {
		links = append(links, serial.New(cfg.Serial, cfg.RingSize))
	}
	if cfg.TCP.Enabled {
		links = append(links, tcp.NewServer(cfg.TCP, cfg.RingSize))
	}
	if cfg.WebSocket.Enabled {
		links = append(links, ws.NewServer(cfg.WebSocket, cfg.RingSize))
	}
	return links
}

func (rs *RoverSystem) Start() error {
	if rs.running {
		return fmt.Errorf("system is already running")
	}
	rs.ctx, rs.cancel = context.WithCancel(context.Background())
	rs.logger.Info("Starting rover controller")

	// 1. 连接硬件
	if err := rs.hal.Start(rs.ctx); err != nil {
		return fmt.Errorf("failed to start hardware: %w", err)
	}

	// 2. 机械臂回到初始位置
	homeCtx, cancel := context.WithTimeout(rs.ctx, homeTimeout)
	result, err := rs.robot.HomeArm(homeCtx)
	cancel()
	if err != nil {
		rs.logger.Warn("Arm homing incomplete", "pose", result.Pose, "remaining", result.Remaining, "error", err)
	}

	// 3. 启动操作员链路
	for _, l := range rs.links {
		if err := l.Start(rs.ctx); err != nil {
			rs.stopLinks()
			_ = rs.hal.Stop()
			return fmt.Errorf("failed to start %s link: %w", l.Name(), err)
		}
	}

	// 4. 启动控制循环
	if err := rs.eventLoop.Start(rs.ctx); err != nil {
		rs.stopLinks()
		_ = rs.hal.Stop()
		return fmt.Errorf("failed to start event loop: %w", err)
	}

	// 5. 设置配置监听
	rs.setupConfigWatcher()

	rs.running = true
	rs.logger.Info("Rover controller started")
	rs.printSystemInfo()
	return nil
}

func (rs *RoverSystem) setupConfigWatcher() {
	// 新配置在下一个控制周期开始时生效
	if err := rs.configManager.WatchChanges(func(cfg types.SystemConfig) {
		rs.logger.Info("Configuration changed, queued for next tick")
		rs.robot.QueueConfig(cfg)
	}); err != nil {
		rs.logger.Warn("Failed to register config watcher", "error", err)
		return
	}
	if err := rs.configManager.StartWatching(rs.ctx); err != nil {
		rs.logger.Warn("Failed to start config watcher", "error", err)
	}
}

func (rs *RoverSystem) Stop() error {
	if !rs.running {
		return fmt.Errorf("system is not running")
	}
	rs.logger.Info("Stopping rover controller")

	// 停止顺序: 配置监听 -> 控制循环 -> 链路 -> 硬件 (与启动相反)
	var err error
	if werr := rs.configManager.StopWatching(); werr != nil {
		rs.logger.Debug("Config watcher already stopped", "error", werr)
	}
	if lerr := rs.eventLoop.Stop(); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("event loop stop error: %w", lerr))
	}
	err = multierr.Append(err, rs.stopLinks())
	if herr := rs.hal.Stop(); herr != nil {
		err = multierr.Append(err, fmt.Errorf("hardware stop error: %w", herr))
	}
	rs.cancel()

	stats := rs.robot.Stats()
	rs.logger.Info("Rover controller stopped",
		"ticks", stats.Ticks,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"emergencies", stats.Emergencies,
		"faults", stats.Faults,
	)
	rs.running = false
	return err
}

func (rs *RoverSystem) stopLinks() error {
	var err error
	for i := len(rs.links) - 1; i >= 0; i-- {
		if lerr := rs.links[i].Stop(); lerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s link stop error: %w", rs.links[i].Name(), lerr))
		}
	}
	return err
}

func (rs *RoverSystem) printSystemInfo() {
	cfg := rs.config

	fmt.Println("==========================================")
	fmt.Println("  Rover Controller")
	fmt.Println("==========================================")
	fmt.Printf("  Tick Interval: %v\n", cfg.Loop.TickInterval)
	fmt.Printf("  Hardware: %s\n", rs.hal.Backend().Name())
	fmt.Printf("  Drive Mapping: %s\n", cfg.Motion.DriveMapping)
	fmt.Printf("  Watchdog: %v\n", cfg.Watchdog.Timeout)
	fmt.Printf("  Collision Safety: %v (level %d)\n", cfg.Safety.Enabled, cfg.Safety.Aggressiveness)
	fmt.Println("==========================================")
	for _, l := range rs.links {
		switch v := l.(type) {
		case *tcp.Server:
			fmt.Printf("  Link tcp: %s\n", v.Addr())
		case *ws.Server:
			fmt.Printf("  Link websocket: %s\n", v.URL())
		case *serial.Link:
			fmt.Printf("  Link serial: %s @ %d\n", cfg.Links.Serial.PortName, cfg.Links.Serial.BaudRate)
		}
	}
	fmt.Println("==========================================")
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		forceSim   = flag.Bool("sim", false, "Use the simulated driver board")
	)
	flag.Parse()

	system, err := NewRoverSystem(*configPath, *forceSim)
	if err != nil {
		logging.Error("Failed to create rover controller", "error", err)
		os.Exit(1)
	}
	if err := system.Start(); err != nil {
		logging.Error("Failed to start rover controller", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nReceived shutdown signal...")

	// 添加超时机制处理系统关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() { done <- system.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			logging.Error("Errors during shutdown", "error", err)
			os.Exit(1)
		}
		fmt.Println("Rover controller shutdown complete")
	case <-shutdownCtx.Done():
		logging.Error("Shutdown timeout reached, forcing exit")
		os.Exit(1)
	}
}
