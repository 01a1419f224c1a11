package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tierpeak/apollo-middleman/internal/kafka"
	"github.com/tierpeak/apollo-middleman/internal/metrics"
	"github.com/tierpeak/apollo-middleman/internal/model"
	"go.uber.org/zap"
)

// Source is the subset of kafka.Consumer the archiver needs.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// BatchStore is the subset of repository.ExchangesRepository the archiver needs.
type BatchStore interface {
	InsertBatch(ctx context.Context, rows []model.Exchange) error
}

// Archiver:
// - fetches journal records from Kafka,
// - buffers them by size/time,
// - writes each buffer to ClickHouse in one insert and only then commits offsets.
type Archiver struct {
	Source Source
	Store  BatchStore
	Log    *zap.Logger

	BatchSize  int           // max buffered records per flush
	BatchWait  time.Duration // max time to wait before flush
	RetryDelay time.Duration // pause after a failed fetch or flush
}

// NewArchiver builds a worker with sane defaults.
func NewArchiver(src Source, store BatchStore, log *zap.Logger) *Archiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Archiver{
		Source:     src,
		Store:      store,
		Log:        log,
		BatchSize:  500,
		BatchWait:  time.Second,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	if a.Source == nil || a.Store == nil {
		return errors.New("archiver: source and store are required")
	}
	if a.BatchSize <= 0 {
		a.BatchSize = 500
	}
	if a.BatchWait <= 0 {
		a.BatchWait = time.Second
	}
	if a.RetryDelay <= 0 {
		a.RetryDelay = 200 * time.Millisecond
	}

	msgCh := make(chan kafka.Message, a.BatchSize)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			m, err := a.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				a.Log.Warn("archive fetch failed", zap.Error(err))
				if !sleep(ctx, a.RetryDelay) {
					return
				}
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	a.runBatchWriter(ctx, msgCh)
	return nil
}

type pending struct {
	rows []model.Exchange
	msgs []kafka.Message
}

func (p *pending) len() int { return len(p.msgs) }

func (p *pending) reset() {
	p.rows = p.rows[:0]
	p.msgs = p.msgs[:0]
}

// runBatchWriter does size/time-based flushes until in is closed. A full
// buffer is retried until it is stored, so it never holds more than BatchSize
// messages and nothing new is read while the store is down.
func (a *Archiver) runBatchWriter(ctx context.Context, in <-chan kafka.Message) {
	tick := time.NewTicker(a.BatchWait)
	defer tick.Stop()

	var buf pending

	// flush reports whether the buffer was stored (or was empty).
	flush := func(ctx context.Context) bool {
		if buf.len() == 0 {
			return true
		}

		if len(buf.rows) > 0 {
			if err := a.Store.InsertBatch(ctx, buf.rows); err != nil {
				metrics.ArchivedTotal.WithLabelValues("failed").Add(float64(len(buf.rows)))
				a.Log.Error("archive insert failed", zap.Int("rows", len(buf.rows)), zap.Error(err))
				return false
			}
			metrics.ArchivedTotal.WithLabelValues("stored").Add(float64(len(buf.rows)))
		}

		if err := a.Source.Commit(ctx, buf.msgs...); err != nil {
			a.Log.Warn("archive commit failed", zap.Int("messages", len(buf.msgs)), zap.Error(err))
		}

		a.Log.Debug("archive flushed", zap.Int("rows", len(buf.rows)), zap.Int("messages", len(buf.msgs)))
		buf.reset()
		return true
	}

	// final flush runs on a fresh context so a shutdown does not drop the buffer
	final := func() {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		flush(fctx)
	}

	for {
		select {
		case m, ok := <-in:
			if !ok {
				final()
				return
			}

			var ex model.Exchange
			if err := json.Unmarshal(m.Value, &ex); err != nil || ex.ID == "" {
				metrics.ArchivedTotal.WithLabelValues("skipped").Inc()
				a.Log.Warn("archive skipping bad record", zap.Int64("offset", m.Offset), zap.Error(err))
				// poison: committed with the batch, never stored
			} else {
				buf.rows = append(buf.rows, ex)
			}
			buf.msgs = append(buf.msgs, m)

			if buf.len() < a.BatchSize {
				continue
			}
			for !flush(ctx) {
				if !sleep(ctx, a.RetryDelay) {
					// uncommitted messages are redelivered on restart
					final()
					return
				}
			}

		case <-tick.C:
			flush(ctx)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
