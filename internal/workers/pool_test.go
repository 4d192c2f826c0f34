package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	pool := NewPool("decode", 3, nil)

	assert.NotNil(t, pool)
	assert.Equal(t, 3, pool.Size())
	assert.NotNil(t, pool.Metrics())

	assert.Equal(t, 1, NewPool("x", 0, nil).Size())
}

func TestPool_RunsEverySubmittedTask(t *testing.T) {
	pool := NewPool("decode", 4, nil)
	pool.Start(context.Background())

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit("load", func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	pool.Stop()

	assert.Equal(t, int32(50), ran.Load())
	stats := pool.Metrics().GetStats("load")
	assert.Equal(t, int64(50), stats.Queued)
	assert.Equal(t, int64(50), stats.Completed)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool("decode", 2, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		_ = pool.Submit("load", func(ctx context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_NestedSubmitDoesNotBlock(t *testing.T) {
	pool := NewPool("decode", 1, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan struct{})
	_ = pool.Submit("outer", func(ctx context.Context) {
		_ = pool.Submit("inner", func(ctx context.Context) { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("inner task never ran")
	}
}

func TestPool_StopDrainsAndRejects(t *testing.T) {
	pool := NewPool("decode", 1, nil)

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		_ = pool.Submit("load", func(ctx context.Context) { ran.Add(1) })
	}
	pool.Stop()

	assert.Equal(t, int32(3), ran.Load())
	assert.ErrorIs(t, pool.Submit("load", func(ctx context.Context) {}), ErrStopped)
}

func TestPool_SurvivesPanics(t *testing.T) {
	pool := NewPool("decode", 1, nil)
	pool.Start(context.Background())

	done := make(chan struct{})
	_ = pool.Submit("bad", func(ctx context.Context) { panic("boom") })
	_ = pool.Submit("good", func(ctx context.Context) { close(done) })
	<-done
	pool.Stop()

	assert.Equal(t, int64(1), pool.Metrics().GetStats("bad").Panicked)
}
