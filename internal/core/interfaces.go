package core

import (
	"context"

	"rover/pkg/types"
)

// Module is a unit driven by the event loop. Process runs once per tick on
// the loop goroutine.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Process() error
	Status() interface{}
}

// ConfigManager loads the system configuration and reports changes to the
// file while watching.
type ConfigManager interface {
	LoadConfig(path string) error
	Reload() error
	GetConfig() types.SystemConfig
	SetConfig(config types.SystemConfig) error
	CreateDefaultConfig() error
	WatchChanges(callback func(types.SystemConfig)) error
	StartWatching(ctx context.Context) error
	StopWatching() error
}
