package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierpeak/apollo-middleman/internal/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memSink struct {
	name string
	err  error

	mu  sync.Mutex
	got []model.Exchange
	ctx []context.Context
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Write(ctx context.Context, ex model.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, ex)
	m.ctx = append(m.ctx, ctx)
	return m.err
}

type ctxKey struct{}

func TestJournal_FansOut(t *testing.T) {
	a := &memSink{name: "a"}
	b := &memSink{name: "b"}
	j := New(zap.NewNop(), time.Second, a, b)
	require.True(t, j.Enabled())

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	j.Record(ctx, model.Exchange{ID: "01J"})
	cancel()

	require.NoError(t, j.Wait(context.Background()))

	for _, s := range []*memSink{a, b} {
		require.Len(t, s.got, 1)
		assert.Equal(t, "01J", s.got[0].ID)
		assert.Equal(t, "v", s.ctx[0].Value(ctxKey{}))
		_, hasDeadline := s.ctx[0].Deadline()
		assert.True(t, hasDeadline)
	}
}

func TestJournal_SinkErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bad := &memSink{name: "bad", err: errors.New("boom")}
	j := New(zap.New(core), 0, bad)

	j.Record(context.Background(), model.Exchange{ID: "x"})
	require.NoError(t, j.Wait(context.Background()))

	entries := logs.FilterMessage("journal write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bad", entries[0].ContextMap()["sink"])
	assert.Equal(t, "x", entries[0].ContextMap()["exchange_id"])
}

func TestJournal_NoSinks(t *testing.T) {
	j := New(nil, 0)

	assert.False(t, j.Enabled())
	j.Record(context.Background(), model.Exchange{})
	assert.NoError(t, j.Wait(context.Background()))
}

type blockingSink struct{ release chan struct{} }

func (b *blockingSink) Name() string { return "slow" }

func (b *blockingSink) Write(ctx context.Context, _ model.Exchange) error {
	<-b.release
	return nil
}

func TestJournal_WaitHonoursContext(t *testing.T) {
	s := &blockingSink{release: make(chan struct{})}
	j := New(nil, time.Second, s)
	j.Record(context.Background(), model.Exchange{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, j.Wait(ctx), context.DeadlineExceeded)

	close(s.release)
	assert.NoError(t, j.Wait(context.Background()))
}

type fakePublisher struct {
	key, value []byte
}

func (f *fakePublisher) Publish(_ context.Context, key, value []byte) error {
	f.key, f.value = key, value
	return nil
}

func TestKafkaSink(t *testing.T) {
	pub := &fakePublisher{}
	ex := model.Exchange{ID: "01ABC", Method: "POST", UpstreamStatus: 200, Outcome: "augment_succeeded", PhoneFound: true}

	require.NoError(t, NewKafkaSink(pub).Write(context.Background(), ex))

	assert.Equal(t, "01ABC", string(pub.key))
	var back model.Exchange
	require.NoError(t, json.Unmarshal(pub.value, &back))
	assert.Equal(t, ex, back)
}

func TestStreamValues(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v := streamValues(model.Exchange{
		ID: "id1", Method: "GET", UpstreamStatus: 422, Outcome: "upstream_failed",
		RequestBytes: 10, ResponseBytes: 20, LatencyMs: 30, CreatedAt: ts,
	})

	assert.Equal(t, "422", v["upstream_status"])
	assert.Equal(t, "false", v["phone_found"])
	assert.Equal(t, "30", v["latency_ms"])
	assert.Equal(t, "2026-01-02T03:04:05Z", v["created_at"])
}

type memStore struct{ got []model.Exchange }

func (m *memStore) Insert(_ context.Context, ex model.Exchange) error {
	m.got = append(m.got, ex)
	return nil
}

func TestSQLSink(t *testing.T) {
	st := &memStore{}
	s := NewSQLSink("mysql", st)

	assert.Equal(t, "mysql", s.Name())
	require.NoError(t, s.Write(context.Background(), model.Exchange{ID: "1"}))
	assert.Len(t, st.got, 1)
}
