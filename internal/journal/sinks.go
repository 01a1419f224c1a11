package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tierpeak/apollo-middleman/internal/model"
)

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type KafkaSink struct {
	pub Publisher
}

func NewKafkaSink(pub Publisher) *KafkaSink { return &KafkaSink{pub: pub} }

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, ex model.Exchange) error {
	b, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}
	return s.pub.Publish(ctx, []byte(ex.ID), b)
}

// RedisSink appends records to a capped stream.
type RedisSink struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisSink(rdb redis.Cmdable, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = "middleman:exchanges"
	}
	return &RedisSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, ex model.Exchange) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: streamValues(ex),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.rdb.XAdd(ctx, args).Err()
}

func streamValues(ex model.Exchange) map[string]any {
	return map[string]any{
		"id":              ex.ID,
		"method":          ex.Method,
		"upstream_status": strconv.Itoa(ex.UpstreamStatus),
		"outcome":         ex.Outcome,
		"phone_found":     strconv.FormatBool(ex.PhoneFound),
		"request_bytes":   strconv.Itoa(ex.RequestBytes),
		"response_bytes":  strconv.Itoa(ex.ResponseBytes),
		"latency_ms":      strconv.FormatInt(ex.LatencyMs, 10),
		"created_at":      ex.CreatedAt.Format(time.RFC3339Nano),
	}
}

// Store is satisfied by repository.ExchangesRepository.
type Store interface {
	Insert(ctx context.Context, ex model.Exchange) error
}

type SQLSink struct {
	name  string
	store Store
}

func NewSQLSink(name string, store Store) *SQLSink { return &SQLSink{name: name, store: store} }

func (s *SQLSink) Name() string { return s.name }

func (s *SQLSink) Write(ctx context.Context, ex model.Exchange) error {
	return s.store.Insert(ctx, ex)
}
