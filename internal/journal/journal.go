package journal

import (
	"context"
	"sync"
	"time"

	"github.com/tierpeak/apollo-middleman/internal/metrics"
	"github.com/tierpeak/apollo-middleman/internal/model"
	"go.uber.org/zap"
)

// Sink stores exchange records somewhere durable.
type Sink interface {
	Name() string
	Write(ctx context.Context, ex model.Exchange) error
}

// Journal fans records out to sinks in the background. Sink failures are
// logged and counted; they never reach the caller.
type Journal struct {
	sinks   []Sink
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

func New(log *zap.Logger, timeout time.Duration, sinks ...Sink) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Journal{sinks: sinks, timeout: timeout, log: log}
}

// Enabled reports whether any sink is configured.
func (j *Journal) Enabled() bool { return len(j.sinks) > 0 }

// Record writes ex to every sink without blocking the caller. The request
// context only contributes its values; its cancellation is ignored.
func (j *Journal) Record(ctx context.Context, ex model.Exchange) {
	if len(j.sinks) == 0 {
		return
	}

	base := context.WithoutCancel(ctx)
	for _, s := range j.sinks {
		j.wg.Add(1)
		go func(s Sink) {
			defer j.wg.Done()

			wctx, cancel := context.WithTimeout(base, j.timeout)
			defer cancel()

			if err := s.Write(wctx, ex); err != nil {
				metrics.JournalErrorsTotal.WithLabelValues(s.Name()).Inc()
				j.log.Warn("journal write failed", zap.String("sink", s.Name()), zap.String("exchange_id", ex.ID), zap.Error(err))
			}
		}(s)
	}
}

// Wait blocks until in-flight records are written or ctx expires.
func (j *Journal) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
