package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ConsolidatorConfig configures the background consolidation scheduler.
type ConsolidatorConfig struct {
	// Interval between scheduled passes.
	Interval time.Duration `json:"interval"`
}

// Consolidator runs the consolidation pass on a fixed wall-clock
// interval. If a pass is still running when the timer fires again, the
// new firing is skipped rather than queued.
type Consolidator struct {
	manager  *Manager
	interval time.Duration

	// onPass receives the result of every completed pass.
	onPass func(ConsolidationResult)

	inFlight atomic.Bool
	running  bool
	stopCh   chan struct{}
	mu       sync.Mutex

	logger *zap.Logger
}

// NewConsolidator creates a scheduler around the manager. A
// non-positive interval falls back to the manager's configured one.
func NewConsolidator(config ConsolidatorConfig, manager *Manager, logger *zap.Logger) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = manager.config.ConsolidationInterval
	}
	return &Consolidator{
		manager:  manager,
		interval: interval,
		logger:   logger.With(zap.String("component", "consolidator")),
	}
}

// OnPass registers a callback invoked after every completed pass,
// scheduled or manual. Call before Start.
func (c *Consolidator) OnPass(fn func(ConsolidationResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPass = fn
}

// Start launches the background loop. Starting an already running
// consolidator is a no-op.
func (c *Consolidator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	go c.run(ctx, stopCh)

	c.logger.Info("consolidator started", zap.Duration("interval", c.interval))
	return nil
}

// Stop halts the background loop. Stopping an already stopped
// consolidator is a no-op.
func (c *Consolidator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	close(c.stopCh)
	c.running = false
	c.logger.Info("consolidator stopped")
}

func (c *Consolidator) run(ctx context.Context, stopCh chan struct{}) {
	defer func() {
		c.mu.Lock()
		// A restart may have replaced the channel already.
		if c.stopCh == stopCh {
			c.running = false
		}
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs one scheduled pass, skipping when the previous one is
// still in flight.
func (c *Consolidator) tick(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("consolidation pass still running, skipping firing")
		return
	}
	defer c.inFlight.Store(false)

	result, err := c.manager.ConsolidateOnce(ctx)
	if err != nil {
		c.logger.Error("scheduled consolidation aborted", zap.Error(err))
		return
	}
	c.notify(result)
}

// RunOnce executes one pass synchronously, outside the timer. It shares
// the in-flight guard with scheduled passes.
func (c *Consolidator) RunOnce(ctx context.Context) (ConsolidationResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("consolidation pass still running, skipping manual run")
		return ConsolidationResult{}, nil
	}
	defer c.inFlight.Store(false)

	result, err := c.manager.ConsolidateOnce(ctx)
	if err != nil {
		return result, err
	}
	c.notify(result)
	return result, nil
}

func (c *Consolidator) notify(result ConsolidationResult) {
	c.mu.Lock()
	fn := c.onPass
	c.mu.Unlock()
	if fn != nil {
		fn(result)
	}
}
