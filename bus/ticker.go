package bus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickFunc is one periodic pass, e.g. a decay sweep or an enrichment scan.
type TickFunc func(ctx context.Context) error

// Ticker runs a named pass on a fixed interval until stopped. A failing
// pass is logged and retried on the next tick; it never stops the ticker.
type Ticker struct {
	name     string
	interval time.Duration
	fn       TickFunc
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTicker(ctx context.Context, name string, interval time.Duration, fn TickFunc, logger *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
		ctx:      tickerCtx,
		cancel:   cancel,
	}
}

// Start launches the tick loop.
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()

	if t.logger != nil {
		t.logger.Infow("ticker started", "name", t.name, "interval", t.interval)
	}
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()

	if t.logger != nil {
		t.logger.Debugw("ticker stopped", "name", t.name)
	}
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.fn(t.ctx); err != nil {
				if t.ctx.Err() != nil {
					return
				}
				if t.logger != nil {
					t.logger.Errorw("ticker pass failed", "name", t.name, "error", err)
				}
			}
		}
	}
}
