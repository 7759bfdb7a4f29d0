package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Poller invokes the runner's poll cycle on a fixed interval. Any number
// of pollers across processes may run concurrently; the store's claim
// semantics keep them from stepping on each other.
type Poller struct {
	runner   *Runner
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. interval <= 0 means 60s.
func NewPoller(r *Runner, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{runner: r, interval: interval, logger: logger}
}

// Start launches the background polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.done != nil {
		p.mu.Unlock()
		return fmt.Errorf("poller already started")
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(pollCtx)
	p.logger.Info("job poller started", slog.Duration("interval", p.interval))
	return nil
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	result, err := p.runner.RunCycle(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "poll cycle failed", slog.String("error", err.Error()))
		return
	}
	if result.Claimed > 0 {
		p.logger.InfoContext(ctx, "poll cycle finished",
			slog.Int("claimed", result.Claimed),
			slog.Int64("recovered", result.Recovered))
	}
}

// Stop gracefully shuts down the poller and drains in-flight work.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}

	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
	p.runner.Shutdown()

	completed, failed := p.runner.pool.Stats()
	p.logger.Info("job poller stopped",
		slog.Int64("jobs_completed", completed),
		slog.Int64("jobs_failed", failed))
	return nil
}
