package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Controller is the explicit lifecycle surface of the daemon core: start with
// a config, swap the config at runtime, stop. main drives it from flags,
// signals, and SIGHUP reloads; an embedding host could drive it directly.
type Controller struct {
	events     chan Event
	broadcasts chan StateBroadcast
	exec       *Executor
	logger     *slog.Logger

	mu   sync.Mutex
	cfg  Config
	stop context.CancelFunc
}

// NewController wires the executor for a validated config. The events and
// broadcasts channels are shared with the other ingress/egress goroutines.
func NewController(cfg Config, events chan Event, broadcasts chan StateBroadcast, logger *slog.Logger) *Controller {
	api := NewHaivisionAPI(cfg.Device, logger)
	return &Controller{
		events:     events,
		broadcasts: broadcasts,
		exec:       NewExecutor(api, cfg.Device, cfg.Preview, events, logger),
		logger:     logger,
		cfg:        cfg,
	}
}

// Start runs the daemon loop until ctx is canceled or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.stop = cancel
	cfg := c.cfg
	c.mu.Unlock()

	runDaemon(ctx, c.events, c.exec, cfg.ToReducerConfig(), NewDeviceState(), c.broadcasts, c.logger)
}

// UpdateConfig validates and installs a new config, then asks the daemon to
// rebuild the session with the new credentials. The running loop picks the
// new policy knobs up from the ConfigUpdated event.
func (c *Controller) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	c.exec.Reconfigure(NewHaivisionAPI(cfg.Device, c.logger), cfg.Device, cfg.Preview)

	select {
	case c.events <- ConfigUpdated{Config: cfg.ToReducerConfig(), At: time.Now()}:
		return nil
	default:
		return errors.New("event queue full, reconfiguration not delivered")
	}
}

// Stop cancels the daemon loop started by Start. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}
