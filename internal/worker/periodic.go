// Package worker runs process-wide background tasks on a fixed schedule.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Periodic runs Task every Interval between Start and Stop. A failing or
// panicking run is logged and the next tick runs normally.
type Periodic struct {
	Name       string
	Interval   time.Duration
	Task       func(ctx context.Context) error
	RunOnStart bool
	Logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches the loop. Calling Start on a running task is a no-op.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Interval <= 0 {
		p.Logger.Info("Background task disabled", zap.String("task", p.Name))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)

	p.Logger.Info("Background task started",
		zap.String("task", p.Name),
		zap.Duration("interval", p.Interval),
	)
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if p.RunOnStart {
		p.RunOnce(ctx)
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes the task a single time and reports its error
func (p *Periodic) RunOnce(ctx context.Context) (err error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", p.Name, r)
			logger.Error("Background task panicked", zap.String("task", p.Name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err = p.Task(ctx); err != nil {
		logger.Error("Background task failed",
			zap.String("task", p.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	logger.Debug("Background task finished",
		zap.String("task", p.Name),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return
func (p *Periodic) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.Logger.Info("Background task stopped", zap.String("task", p.Name))
}
