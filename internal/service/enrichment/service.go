package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tierpeak/apollo-middleman/internal/enrich"
	"github.com/tierpeak/apollo-middleman/internal/metrics"
	"github.com/tierpeak/apollo-middleman/internal/model"
	"github.com/tierpeak/apollo-middleman/internal/upstream"
	"github.com/tierpeak/apollo-middleman/internal/util"
	"go.uber.org/zap"
)

var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Recorder receives one journal record per finished exchange.
type Recorder interface {
	Record(ctx context.Context, ex model.Exchange)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, model.Exchange) {}

// Service forwards a people-match call and shapes the reply.
type Service struct {
	fwd upstream.Forwarder
	tr  *enrich.Transformer
	rec Recorder
	log *zap.Logger
	now func() time.Time
}

// New constructs the enrichment service. rec may be nil.
func New(fwd upstream.Forwarder, tr *enrich.Transformer, rec Recorder, log *zap.Logger) *Service {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{fwd: fwd, tr: tr, rec: rec, log: log, now: time.Now}
}

// Match forwards body upstream and returns the reply for the caller.
// The only error is ErrUpstreamUnavailable (wrapping the transport failure);
// the returned Result is then a ready-to-send 502.
func (s *Service) Match(ctx context.Context, method string, body []byte) (enrich.Result, error) {
	start := s.now()

	res, err := s.fwd.Forward(ctx, body)
	if err != nil {
		metrics.ExchangesTotal.WithLabelValues(enrich.OutcomeUpstreamUnreachable.String()).Inc()
		s.log.Error("upstream call failed", zap.Error(err), zap.String("method", method))

		r := enrich.Failure(http.StatusBadGateway, ErrUpstreamUnavailable.Error(), enrich.OutcomeUpstreamUnreachable)
		s.record(ctx, start, method, body, nil, r)
		return r, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	metrics.UpstreamDuration.Observe(res.Latency.Seconds())

	out := s.tr.Transform(res.OK(), res.Body)
	r := enrich.Assemble(res, out)

	metrics.ExchangesTotal.WithLabelValues(r.Outcome.String()).Inc()
	s.log.Info("people match proxied",
		zap.String("method", method),
		zap.Int("status", r.StatusCode),
		zap.String("outcome", r.Outcome.String()),
		zap.Bool("phone_found", r.Phone != ""),
		zap.Duration("upstream_latency", res.Latency),
	)

	s.record(ctx, start, method, body, res, r)
	return r, nil
}

func (s *Service) record(ctx context.Context, start time.Time, method string, body []byte, res *upstream.Response, r enrich.Result) {
	ex := model.Exchange{
		ID:            util.NewAt(start),
		Method:        method,
		Outcome:       r.Outcome.String(),
		PhoneFound:    r.Phone != "",
		RequestBytes:  len(body),
		ResponseBytes: len(r.Body),
		LatencyMs:     s.now().Sub(start).Milliseconds(),
		CreatedAt:     start.UTC(),
	}
	if res != nil {
		ex.UpstreamStatus = res.StatusCode
	}
	s.rec.Record(ctx, ex)
}
