package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tierpeak/apollo-middleman/internal/kafka"
	"github.com/tierpeak/apollo-middleman/internal/model"
)

type fakeSource struct {
	msgs    chan kafka.Message
	drained chan struct{}
	once    sync.Once

	mu      sync.Mutex
	commits [][]int64
}

func newFakeSource(msgs ...kafka.Message) *fakeSource {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &fakeSource{msgs: ch, drained: make(chan struct{})}
}

func (f *fakeSource) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	default:
	}
	f.once.Do(func() { close(f.drained) })
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeSource) Commit(_ context.Context, msgs ...kafka.Message) error {
	offs := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		offs = append(offs, m.Offset)
	}
	f.mu.Lock()
	f.commits = append(f.commits, offs)
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) committed() [][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int64(nil), f.commits...)
}

type fakeStore struct {
	mu      sync.Mutex
	fail    int
	down    bool
	calls   int
	largest int
	batches [][]string
}

func (s *fakeStore) InsertBatch(_ context.Context, rows []model.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.largest = max(s.largest, len(rows))
	if s.down {
		return errors.New("clickhouse down")
	}
	if s.fail > 0 {
		s.fail--
		return errors.New("clickhouse down")
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	s.batches = append(s.batches, ids)
	return nil
}

func record(t *testing.T, offset int64, id string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.Exchange{ID: id, Method: "POST", Outcome: "augment_succeeded"})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestArchiver_BatchesAndCommits(t *testing.T) {
	src := newFakeSource(
		record(t, 1, "a"),
		kafka.Message{Offset: 2, Value: []byte("not json")},
		record(t, 3, "c"),
	)
	store := &fakeStore{}

	a := NewArchiver(src, store, nil)
	a.BatchSize = 2
	a.BatchWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	<-src.drained
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, [][]string{{"a"}, {"c"}}, store.batches)
	assert.Equal(t, [][]int64{{1, 2}, {3}}, src.committed())
}

func TestArchiver_RetriesFailedInsert(t *testing.T) {
	src := newFakeSource(record(t, 7, "x"))
	store := &fakeStore{fail: 1}

	a := NewArchiver(src, store, nil)
	a.BatchSize = 1
	a.BatchWait = 10 * time.Millisecond
	a.RetryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(src.committed()) == 1 }, 2*time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, [][]string{{"x"}}, store.batches)
	assert.Equal(t, [][]int64{{7}}, src.committed())
}

func TestArchiver_StoreDownHoldsOneBatch(t *testing.T) {
	msgs := make([]kafka.Message, 0, 50)
	for i := 0; i < 50; i++ {
		msgs = append(msgs, record(t, int64(i), fmt.Sprintf("id-%d", i)))
	}
	src := newFakeSource(msgs...)
	store := &fakeStore{down: true}

	a := NewArchiver(src, store, nil)
	a.BatchSize = 5
	a.BatchWait = time.Hour
	a.RetryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.calls >= 10
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 5, store.largest)
	assert.Empty(t, store.batches)
	assert.Empty(t, src.committed())
	// buffer + channel + one in-flight send at most
	assert.GreaterOrEqual(t, len(src.msgs), 50-2*a.BatchSize-1)
}

func TestArchiver_PoisonFillsBatch(t *testing.T) {
	src := newFakeSource(
		kafka.Message{Offset: 1, Value: []byte("{}")},
		kafka.Message{Offset: 2, Value: []byte("not json")},
	)
	store := &fakeStore{}

	a := NewArchiver(src, store, nil)
	a.BatchSize = 2
	a.BatchWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(src.committed()) == 1 }, 2*time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.calls)
	assert.Equal(t, [][]int64{{1, 2}}, src.committed())
}

func TestArchiver_RequiresDependencies(t *testing.T) {
	assert.Error(t, NewArchiver(nil, nil, nil).Run(context.Background()))
}
