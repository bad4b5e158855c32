package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockStub struct {
	held     map[string]bool
	released int
	err      error
}

func (l *lockStub) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		delete(l.held, key)
		l.released++
	}, true, nil
}

func TestAdd_RejectsBadSchedule(t *testing.T) {
	s := New(nil, nil)
	require.Error(t, s.Add("x", "not a schedule", 0, func(context.Context) error { return nil }))
	require.Error(t, s.Add("y", "@every 1m", 0, nil))
	require.NoError(t, s.Add("z", "@every 1m", 0, func(context.Context) error { return nil }))
	assert.Equal(t, []string{"z"}, s.Names())
}

func TestRunNow_UsesLock(t *testing.T) {
	lock := &lockStub{held: map[string]bool{}}
	s := New(lock, nil)

	var runs int
	require.NoError(t, s.Add("embed-poll", "@every 10m", time.Minute, func(context.Context) error {
		runs++
		return errors.New("task errors are logged, not fatal")
	}))

	assert.True(t, s.RunNow(context.Background(), "embed-poll"))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, lock.released)

	lock.held["scheduler:embed-poll"] = true
	assert.False(t, s.RunNow(context.Background(), "embed-poll"))
	assert.Equal(t, 1, runs)

	assert.False(t, s.RunNow(context.Background(), "missing"))
}

func TestRunNow_LockError(t *testing.T) {
	s := New(&lockStub{err: errors.New("redis timeout")}, nil)
	var runs int
	require.NoError(t, s.Add("extract", "@every 30m", 0, func(context.Context) error { runs++; return nil }))
	assert.False(t, s.RunNow(context.Background(), "extract"))
	assert.Zero(t, runs)
}

func TestStartStop_CancelsTasks(t *testing.T) {
	s := New(nil, nil)
	var started, cancelled atomic.Bool
	require.NoError(t, s.Add("collect", "@every 1s", 0, func(ctx context.Context) error {
		started.Store(true)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, started.Load, 3*time.Second, 20*time.Millisecond)
	s.Stop()
	assert.True(t, cancelled.Load())
}

func TestRedisLocker_DegradesWithoutRedis(t *testing.T) {
	release, ok, err := NewRedisLocker(nil).Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}
