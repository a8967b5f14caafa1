// Package core runs the fixed-rate control loop.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rover/internal/logging"
)

type LoopStats struct {
	Ticks   uint64        `json:"ticks"`
	Overrun uint64        `json:"overrun"`
	Errors  uint64        `json:"errors"`
	Longest time.Duration `json:"longest"`
}

// EventLoop processes its modules in registration order once per interval.
// Module order is the order of the control cycle.
type EventLoop struct {
	interval    time.Duration
	modules     []Module
	modulesLock sync.RWMutex
	stats       LoopStats
	statsLock   sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	logger      *logging.Logger
}

func NewEventLoop(interval time.Duration) *EventLoop {
	return &EventLoop{
		interval: interval,
		logger:   logging.GetLogger("eventloop"),
	}
}

func (el *EventLoop) Start(ctx context.Context) error {
	if el.running {
		return fmt.Errorf("event loop is already running")
	}
	if el.interval <= 0 {
		return fmt.Errorf("invalid loop interval %v", el.interval)
	}

	el.ctx, el.cancel = context.WithCancel(ctx)

	el.modulesLock.RLock()
	for _, module := range el.modules {
		if err := module.Start(el.ctx); err != nil {
			el.modulesLock.RUnlock()
			el.cancel()
			return fmt.Errorf("failed to start module %s: %w", module.Name(), err)
		}
	}
	el.modulesLock.RUnlock()

	el.running = true
	el.wg.Add(1)
	go el.run()

	el.logger.Info("Event loop started", "interval", el.interval)
	return nil
}

// Stop ends the loop and then stops every module in reverse order.
func (el *EventLoop) Stop() error {
	if !el.running {
		return fmt.Errorf("event loop is not running")
	}

	el.cancel()
	el.wg.Wait()
	el.running = false

	el.modulesLock.RLock()
	for i := len(el.modules) - 1; i >= 0; i-- {
		module := el.modules[i]
		el.logger.Debug("Stopping module", "module", module.Name())
		if err := module.Stop(); err != nil {
			el.logger.Error("Error stopping module", "module", module.Name(), "error", err)
		}
	}
	el.modulesLock.RUnlock()

	el.logger.Info("Event loop stopped")
	return nil
}

func (el *EventLoop) RegisterModule(module Module) error {
	el.modulesLock.Lock()
	defer el.modulesLock.Unlock()

	for _, m := range el.modules {
		if m.Name() == module.Name() {
			return fmt.Errorf("module %s already registered", module.Name())
		}
	}

	if el.running {
		if err := module.Start(el.ctx); err != nil {
			el.logger.Error("Error starting module", "module", module.Name(), "error", err)
			return err
		}
	}

	el.modules = append(el.modules, module)
	el.logger.Info("Module registered", "module", module.Name())
	return nil
}

func (el *EventLoop) UnregisterModule(name string) error {
	el.modulesLock.Lock()
	defer el.modulesLock.Unlock()

	for i, module := range el.modules {
		if module.Name() != name {
			continue
		}
		if el.running {
			if err := module.Stop(); err != nil {
				el.logger.Error("Error stopping module", "module", name, "error", err)
			}
		}
		el.modules = append(el.modules[:i], el.modules[i+1:]...)
		el.logger.Info("Module unregistered", "module", name)
		return nil
	}
	return fmt.Errorf("module %s not found", name)
}

func (el *EventLoop) run() {
	defer el.wg.Done()

	ticker := time.NewTicker(el.interval)
	defer ticker.Stop()

	for {
		select {
		case <-el.ctx.Done():
			return
		case <-ticker.C:
			el.processCycle()
		}
	}
}

func (el *EventLoop) processCycle() {
	start := time.Now()
	var failed uint64

	el.modulesLock.RLock()
	for _, module := range el.modules {
		if err := module.Process(); err != nil {
			failed++
			el.logger.Error("Error processing module", "module", module.Name(), "error", err)
		}
	}
	el.modulesLock.RUnlock()

	elapsed := time.Since(start)
	el.statsLock.Lock()
	el.stats.Ticks++
	el.stats.Errors += failed
	if elapsed > el.interval {
		el.stats.Overrun++
	}
	if elapsed > el.stats.Longest {
		el.stats.Longest = elapsed
	}
	el.statsLock.Unlock()
}

func (el *EventLoop) Stats() LoopStats {
	el.statsLock.Lock()
	defer el.statsLock.Unlock()
	return el.stats
}

func (el *EventLoop) GetModuleStatus() map[string]interface{} {
	el.modulesLock.RLock()
	defer el.modulesLock.RUnlock()

	status := make(map[string]interface{}, len(el.modules))
	for _, module := range el.modules {
		status[module.Name()] = module.Status()
	}
	return status
}
