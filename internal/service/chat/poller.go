package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "telecare-backend/pkg/errors"
	"telecare-backend/pkg/logger"
	"telecare-backend/pkg/metrics"
)

// Poller periodically fetches channel messages and merges them into a
// timeline. All ticks run on a single goroutine, so a slow fetch can never
// overlap the next one; the next tick simply starts late.
type Poller struct {
	fetch    func(ctx context.Context, since time.Time) error
	interval time.Duration
	metrics  *metrics.Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// newPoller creates a poller; run must be called exactly once
func newPoller(interval time.Duration, m *metrics.Metrics, fetch func(ctx context.Context, since time.Time) error) *Poller {
	return &Poller{
		fetch:    fetch,
		interval: interval,
		metrics:  m,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)
	if p.metrics != nil {
		p.metrics.PollerStarted()
		defer p.metrics.PollerStopped()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Track a fetch horizon so each tick asks only for messages newer than
	// what the previous successful tick covered. On a failed tick the horizon
	// is not advanced, so nothing is skipped.
	since := time.Time{}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Re-check stop before fetching; a stop racing the tick wins.
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		tickStart := time.Now()
		if err := p.fetch(ctx, since); err != nil {
			// Transient fetch failures are swallowed: the loop keeps its
			// cadence and retries on the next tick.
			outcome := "error"
			if apperrors.IsCode(err, apperrors.ErrCodeNetwork) {
				outcome = "network_error"
			}
			if p.metrics != nil {
				p.metrics.RecordPollTick(outcome)
			}
			logger.Warn("message poll tick failed", zap.Error(err))
			continue
		}
		since = tickStart
		if p.metrics != nil {
			p.metrics.RecordPollTick("ok")
		}
	}
}

// Stop halts the poller and blocks until the loop has exited. After Stop
// returns, no further tick executes.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}
