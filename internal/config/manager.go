// Package config provides YAML-based configuration management for the rover
// with hot-reload support. A watcher polls the file's modification time and
// hands every successfully validated reload to the registered callbacks.
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"rover/internal/arm"
	"rover/internal/logging"
	"rover/internal/motion"
	"rover/pkg/types"
)

// DefaultPollInterval is how often the watcher checks the file.
const DefaultPollInterval = time.Second

type ConfigManager struct {
	config       types.SystemConfig
	configPath   string
	configLock   sync.RWMutex
	watchers     []func(types.SystemConfig)
	watchersLock sync.RWMutex
	lastModified time.Time
	pollInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	watching     bool
	logger       *logging.Logger
}

func NewConfigManager(configPath string) *ConfigManager {
	return &ConfigManager{
		config:       Default(),
		configPath:   configPath,
		watchers:     make([]func(types.SystemConfig), 0),
		pollInterval: DefaultPollInterval,
		logger:       logging.GetLogger("config_manager"),
	}
}

// Default returns the built-in configuration.
func Default() types.SystemConfig {
	return types.SystemConfig{
		Loop: types.LoopConfig{
			TickInterval:    20 * time.Millisecond,
			MaxLinesPerTick: 4,
		},
		Motion: types.MotionConfig{
			SpeedMultiplier: motion.DefaultMultiplier,
			MinThreshold:    motion.DefaultMinThreshold,
			DriveMapping:    motion.StandardMapping.Name,
		},
		Arm: types.ArmConfig{
			StepSize:   arm.DefaultStepSize,
			PoseBudget: 3 * time.Second,
		},
		Safety: types.SafetyConfig{
			Enabled:        true,
			Aggressiveness: 2,
			MaxRange:       200,
			StableCount:    2,
			ClearDwell:     time.Second,
			WarningRepeat:  2 * time.Second,
		},
		Watchdog: types.WatchdogConfig{Timeout: 2 * time.Second},
		Status: types.StatusConfig{
			Capacity:  128,
			Interval:  time.Second,
			ArenaSize: 4,
			Heartbeat: 5 * time.Second,
		},
		Links: types.LinksConfig{
			RingSize: 1024,
			Serial: types.SerialLinkConfig{
				PortName:      "/dev/rfcomm0",
				BaudRate:      9600,
				DataBits:      8,
				StopBits:      1,
				Parity:        "N",
				RetryInterval: 2 * time.Second,
			},
			TCP: types.TCPLinkConfig{
				Enabled: true,
				Address: "0.0.0.0",
				Port:    9000,
				Timeout: 10 * time.Second,
			},
			WebSocket: types.WebSocketLinkConfig{
				Address: ":8081",
				Path:    "/ws",
			},
		},
		Hardware: types.HardwareConfig{
			Driver: "sim",
			Modbus: types.ModbusConfig{
				Type:       "tcp",
				Address:    "127.0.0.1",
				Port:       502,
				BaudRate:   115200,
				DataBits:   8,
				StopBits:   1,
				Parity:     "N",
				SlaveID:    1,
				Timeout:    time.Second,
				MotorBase:  0x0000,
				JointBase:  0x0010,
				SensorBase: 0x0000,
			},
		},
		Logging: *logging.DefaultConfig(),
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (types.SystemConfig, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return types.SystemConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := Validate(&config); err != nil {
		return types.SystemConfig{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func (cm *ConfigManager) LoadConfig(path string) error {
	if path != "" {
		cm.configPath = path
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	config, err := Parse(data)
	if err != nil {
		return err
	}

	var modTime time.Time
	if info, err := os.Stat(cm.configPath); err == nil {
		modTime = info.ModTime()
	}

	cm.configLock.Lock()
	cm.config = config
	cm.lastModified = modTime
	cm.configLock.Unlock()

	cm.logger.Info("Configuration loaded", "config_path", cm.configPath)
	return nil
}

func (cm *ConfigManager) Reload() error {
	return cm.LoadConfig(cm.configPath)
}

func (cm *ConfigManager) GetConfig() types.SystemConfig {
	cm.configLock.RLock()
	defer cm.configLock.RUnlock()
	return cm.config
}

// SetConfig validates, saves and publishes a configuration.
func (cm *ConfigManager) SetConfig(config types.SystemConfig) error {
	if err := Validate(&config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := cm.save(cm.configPath, config); err != nil {
		return err
	}

	cm.configLock.Lock()
	cm.config = config
	if info, err := os.Stat(cm.configPath); err == nil {
		cm.lastModified = info.ModTime()
	}
	cm.configLock.Unlock()

	cm.notifyWatchers()
	cm.logger.Info("Configuration updated and saved", "config_path", cm.configPath)
	return nil
}

func (cm *ConfigManager) save(path string, config types.SystemConfig) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// WatchChanges registers a callback for reloaded configurations. Callbacks
// run on their own goroutine.
func (cm *ConfigManager) WatchChanges(callback func(types.SystemConfig)) error {
	cm.watchersLock.Lock()
	defer cm.watchersLock.Unlock()

	cm.watchers = append(cm.watchers, callback)
	return nil
}

// SetPollInterval changes the watcher period; it takes effect on the next
// StartWatching.
func (cm *ConfigManager) SetPollInterval(d time.Duration) {
	if d > 0 {
		cm.pollInterval = d
	}
}

func (cm *ConfigManager) StartWatching(ctx context.Context) error {
	if cm.watching {
		return fmt.Errorf("config watcher is already running")
	}

	cm.ctx, cm.cancel = context.WithCancel(ctx)
	cm.watching = true

	cm.wg.Add(1)
	go cm.watchFile()

	cm.logger.Info("Started watching config file", "config_path", cm.configPath, "interval", cm.pollInterval)
	return nil
}

func (cm *ConfigManager) StopWatching() error {
	if !cm.watching {
		return fmt.Errorf("config watcher is not running")
	}

	cm.cancel()
	cm.wg.Wait()
	cm.watching = false

	cm.logger.Info("Stopped watching config file")
	return nil
}

func (cm *ConfigManager) watchFile() {
	defer cm.wg.Done()

	ticker := time.NewTicker(cm.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.checkFileChanges()
		}
	}
}

func (cm *ConfigManager) checkFileChanges() {
	info, err := os.Stat(cm.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			cm.logger.Error("Error checking config file", "error", err)
		}
		return
	}

	cm.configLock.RLock()
	changed := !info.ModTime().Equal(cm.lastModified)
	cm.configLock.RUnlock()
	if !changed {
		return
	}

	cm.logger.Info("Config file modified, reloading...")
	if err := cm.Reload(); err != nil {
		// 保留旧配置，直到文件再次变化
		cm.configLock.Lock()
		cm.lastModified = info.ModTime()
		cm.configLock.Unlock()
		cm.logger.Error("Failed to reload config", "error", err)
		return
	}
	cm.notifyWatchers()
}

func (cm *ConfigManager) notifyWatchers() {
	cm.watchersLock.RLock()
	watchers := make([]func(types.SystemConfig), len(cm.watchers))
	copy(watchers, cm.watchers)
	cm.watchersLock.RUnlock()

	config := cm.GetConfig()
	for _, watcher := range watchers {
		go watcher(config)
	}
}

// Validate fills unset fields with defaults and rejects values outside the
// ranges the controller accepts.
func Validate(config *types.SystemConfig) error {
	def := Default()

	if config.Loop.TickInterval <= 0 {
		config.Loop.TickInterval = def.Loop.TickInterval
	}
	if config.Loop.MaxLinesPerTick <= 0 {
		config.Loop.MaxLinesPerTick = def.Loop.MaxLinesPerTick
	}

	if config.Motion.SpeedMultiplier == 0 {
		config.Motion.SpeedMultiplier = def.Motion.SpeedMultiplier
	}
	if m := config.Motion.SpeedMultiplier; m < motion.MinMultiplier || m > motion.MaxMultiplier {
		return fmt.Errorf("motion.speed_multiplier %d outside %d..%d", m, motion.MinMultiplier, motion.MaxMultiplier)
	}
	if t := config.Motion.MinThreshold; t < 0 || t > motion.MaxSpeed {
		return fmt.Errorf("motion.min_threshold %d outside 0..%d", t, motion.MaxSpeed)
	}
	if config.Motion.DriveMapping == "" {
		config.Motion.DriveMapping = def.Motion.DriveMapping
	}
	mapping, err := motion.MappingByName(config.Motion.DriveMapping)
	if err != nil {
		return err
	}
	if _, err := mapping.WithPolarity(config.Motion.Polarity); err != nil {
		return err
	}

	if config.Arm.StepSize == 0 {
		config.Arm.StepSize = def.Arm.StepSize
	}
	if s := config.Arm.StepSize; s < arm.MinStepSize || s > arm.MaxStepSize {
		return fmt.Errorf("arm.step_size %d outside %d..%d", s, arm.MinStepSize, arm.MaxStepSize)
	}
	if config.Arm.PoseBudget <= 0 {
		config.Arm.PoseBudget = def.Arm.PoseBudget
	}
	if _, err := PoseTable(config.Arm); err != nil {
		return err
	}

	if a := config.Safety.Aggressiveness; a != 0 && (a < 1 || a > 3) {
		return fmt.Errorf("safety.aggressiveness %d outside 1..3", a)
	}
	if d := config.Safety.CollisionDistance; d != 0 && (d < 5 || d > 100) {
		return fmt.Errorf("safety.collision_distance %.1f outside 5..100", d)
	}
	if w := config.Safety.WarningDistance; w != 0 && w <= config.Safety.CollisionDistance {
		return fmt.Errorf("safety.warning_distance %.1f must exceed collision_distance %.1f", w, config.Safety.CollisionDistance)
	}
	if config.Safety.MaxRange <= 0 {
		config.Safety.MaxRange = def.Safety.MaxRange
	}

	if config.Watchdog.Timeout <= 0 {
		config.Watchdog.Timeout = def.Watchdog.Timeout
	}

	if config.Status.Capacity <= 0 {
		config.Status.Capacity = def.Status.Capacity
	}
	if config.Status.Interval <= 0 {
		config.Status.Interval = def.Status.Interval
	}
	if config.Status.ArenaSize <= 0 {
		config.Status.ArenaSize = def.Status.ArenaSize
	}

	if config.Links.RingSize <= 0 {
		config.Links.RingSize = def.Links.RingSize
	}
	if config.Links.Serial.Enabled && config.Links.Serial.PortName == "" {
		return fmt.Errorf("links.serial.port_name is required when the serial link is enabled")
	}

	switch config.Hardware.Driver {
	case "":
		config.Hardware.Driver = def.Hardware.Driver
	case "sim", "modbus":
	default:
		return fmt.Errorf("unsupported hardware driver: %s", config.Hardware.Driver)
	}
	return nil
}

// PoseTable builds the arm pose table of a configuration: the built-in poses
// extended or overridden by arm.poses and arm.home.
func PoseTable(cfg types.ArmConfig) (*arm.PoseTable, error) {
	extra := cfg.Poses
	if len(cfg.Home) > 0 {
		extra = make(map[string][]int, len(cfg.Poses)+1)
		for name, angles := range cfg.Poses {
			extra[name] = angles
		}
		extra[arm.HomePose.Name] = cfg.Home
	}
	poses, err := arm.MergePoses(arm.DefaultPoses(), extra)
	if err != nil {
		return nil, fmt.Errorf("arm.poses: %w", err)
	}
	presets := cfg.Presets
	if len(presets) == 0 {
		presets = arm.DefaultPresets()
	}
	table, err := arm.NewPoseTable(poses, presets)
	if err != nil {
		return nil, fmt.Errorf("arm.presets: %w", err)
	}
	return table, nil
}

// CreateDefaultConfig writes the built-in configuration to the config path.
func (cm *ConfigManager) CreateDefaultConfig() error {
	return cm.SetConfig(Default())
}

func (cm *ConfigManager) GetConfigPath() string {
	return cm.configPath
}

func (cm *ConfigManager) ExportConfig(path string) error {
	if err := cm.save(path, cm.GetConfig()); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	cm.logger.Info("Configuration exported", "path", path)
	return nil
}

// ImportConfig loads a file and saves it as the active configuration.
func (cm *ConfigManager) ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to import config: %w", err)
	}
	config, err := Parse(data)
	if err != nil {
		return fmt.Errorf("failed to import config: %w", err)
	}
	if err := cm.SetConfig(config); err != nil {
		return fmt.Errorf("failed to save imported config: %w", err)
	}

	cm.logger.Info("Configuration imported", "path", path)
	return nil
}
