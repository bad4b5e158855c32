package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ConsumeStopsAtLimit(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemoryStore(), map[string]int{"siteA": 10}, 100, nil)
	day := "2025-03-01"

	for i := 0; i < 9; i++ {
		_, err := l.Consume(ctx, "siteA", day, 1)
		require.NoError(t, err)
	}

	rec, err := l.Consume(ctx, "siteA", day, 2)
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 9, rec.Used)

	st, err := l.Status(ctx, "siteA", day)
	require.NoError(t, err)
	assert.Equal(t, 9, st.Used)
	assert.Equal(t, 10, st.Limit)
	assert.Equal(t, 1, st.Remaining())

	ok, err := l.CanConsume(ctx, "siteA", day)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = l.Consume(ctx, "siteA", day, 1)
	require.NoError(t, err)

	ok, err = l.CanConsume(ctx, "siteA", day)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_ConcurrentConsumeNeverOverruns(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemoryStore(), map[string]int{"siteA": 25}, 100, nil)
	day := "2025-03-01"

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Consume(ctx, "siteA", day, 1); err == nil {
				accepted.Add(1)
			} else if !errors.Is(err, ErrExhausted) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := l.Status(ctx, "siteA", day)
	require.NoError(t, err)
	assert.Equal(t, int64(25), accepted.Load())
	assert.Equal(t, 25, st.Used)
}

func TestLedger_NewDayStartsFresh(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemoryStore(), map[string]int{"siteA": 2}, 100, nil)

	d1 := Day(time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC))
	d2 := Day(time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC))
	require.Equal(t, "2025-03-01", d1)

	_, err := l.Consume(ctx, "siteA", d1, 2)
	require.NoError(t, err)
	_, err = l.Consume(ctx, "siteA", d1, 1)
	require.ErrorIs(t, err, ErrExhausted)

	rec, err := l.Consume(ctx, "siteA", d2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Used)
}

func TestLedger_UnknownSourceUsesDefaultLimit(t *testing.T) {
	l := NewLedger(NewMemoryStore(), map[string]int{"siteA": 10}, 7, nil)
	assert.Equal(t, 10, l.Limit("siteA"))
	assert.Equal(t, 7, l.Limit("siteB"))
}

func TestLedger_RejectsNonPositive(t *testing.T) {
	l := NewLedger(NewMemoryStore(), nil, 10, nil)
	_, err := l.Consume(context.Background(), "siteA", "2025-03-01", 0)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrExhausted))
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string, string, int) (Record, error) {
	return Record{}, errors.New("connection refused")
}

func (brokenStore) Add(context.Context, string, string, int, int) (Record, bool, error) {
	return Record{}, false, errors.New("connection refused")
}

func TestLedger_StoreFailureIsNotExhaustion(t *testing.T) {
	l := NewLedger(brokenStore{}, nil, 10, nil)

	_, err := l.Consume(context.Background(), "siteA", "2025-03-01", 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrExhausted))

	_, err = l.CanConsume(context.Background(), "siteA", "2025-03-01")
	require.Error(t, err)
}

func TestLedger_Snapshot(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemoryStore(), map[string]int{"b": 5, "a": 3}, 1, nil)
	_, err := l.Consume(ctx, "b", "2025-03-01", 2)
	require.NoError(t, err)

	recs, err := l.Snapshot(ctx, "2025-03-01", []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, Record{Source: "a", Day: "2025-03-01", Used: 0, Limit: 3}, recs[0])
	assert.Equal(t, Record{Source: "b", Day: "2025-03-01", Used: 2, Limit: 5}, recs[1])
}
