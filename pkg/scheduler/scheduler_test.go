package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsImmediatelyThenPeriodically(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs int64
	task := s.Every(20*time.Millisecond, FuncJob(func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	}))

	time.Sleep(70 * time.Millisecond)
	task.Cancel()

	got := atomic.LoadInt64(&runs)
	require.GreaterOrEqual(t, got, int64(2), "expected the immediate run plus at least one tick")

	// 取消后不再执行
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, got, atomic.LoadInt64(&runs))
	assert.True(t, task.Cancelled())
}

func TestOnceAfterCancelBeforeFire(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired int64
	task := s.OnceAfter(80*time.Millisecond, FuncJob(func(ctx context.Context) {
		atomic.AddInt64(&fired, 1)
	}))
	task.Cancel()

	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&fired), "cancelled one-shot task must never fire")
}

func TestOnceAfterFires(t *testing.T) {
	s := New()
	defer s.Stop()

	ch := make(chan struct{})
	s.OnceAfter(10*time.Millisecond, FuncJob(func(ctx context.Context) { close(ch) }))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("one-shot task did not fire")
	}
}

func TestStopCancelsAllTasks(t *testing.T) {
	s := New()
	var runs int64
	s.Every(10*time.Millisecond, FuncJob(func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	}))
	s.Stop()

	got := atomic.LoadInt64(&runs)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, got, atomic.LoadInt64(&runs))
}

func TestCancelIsIdempotent(t *testing.T) {
	s := New()
	defer s.Stop()

	task := s.OnceAfter(time.Hour, FuncJob(func(ctx context.Context) {}))
	task.Cancel()
	task.Cancel() // second cancel must not panic or block
}
