package resource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/respack/internal/value"
)

func TestResource_FinalizeOnce(t *testing.T) {
	r := NewPending("hero")

	_, ok := r.TryGet()
	assert.False(t, ok)

	require.NoError(t, r.Finalize(value.NewInt(1)))
	assert.ErrorIs(t, r.Finalize(value.NewInt(2)), ErrAlreadyFinalized)

	v, ok := r.TryGet()
	require.True(t, ok)
	assert.Equal(t, value.Int(1), v)
}

func TestResource_WaitBlocksUntilFinalized(t *testing.T) {
	r := NewPending("slow")

	var wg sync.WaitGroup
	results := make([]value.Value, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := r.Wait(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Finalize(value.NewString("ready")))
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, value.String("ready"), v)
	}
}

func TestResource_WaitHonoursContext(t *testing.T) {
	r := NewPending("never")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResource_Forwarding(t *testing.T) {
	old := NewFinalized("tex", value.NewInt(1))
	mid := NewFinalized("tex", value.NewInt(2))
	latest := NewPending("tex")

	require.NoError(t, old.Forward(mid))
	assert.ErrorIs(t, old.Forward(latest), ErrAlreadyForwarded)
	require.NoError(t, mid.Forward(latest))
	assert.ErrorIs(t, latest.Forward(old), ErrForwardCycle)

	assert.Same(t, latest, old.Latest())

	done := make(chan value.Value)
	go func() {
		v, _ := old.Wait(context.Background())
		done <- v
	}()
	require.NoError(t, latest.Finalize(value.NewInt(3)))
	assert.Equal(t, value.Int(3), <-done)
}

func TestResource_WaitFollowsLateForward(t *testing.T) {
	pending := NewPending("a")
	replacement := NewFinalized("a", value.NewString("new"))

	done := make(chan value.Value)
	go func() {
		v, _ := pending.Wait(context.Background())
		done <- v
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, pending.Forward(replacement))

	select {
	case v := <-done:
		assert.Equal(t, value.String("new"), v)
	case <-time.After(time.Second):
		t.Fatal("waiter did not follow forward")
	}
}

func TestTable_ForwardReferences(t *testing.T) {
	table := NewTable()

	ref := table.Reference("later")
	_, ok := ref.TryGet()
	assert.False(t, ok)

	_, err := table.Register("later", value.NewBool(true))
	require.NoError(t, err)
	v, ok := ref.TryGet()
	require.True(t, ok)
	assert.Equal(t, value.Bool(true), v)

	table.Reference("missing")
	assert.Equal(t, []string{"missing"}, table.FinalizeUnresolved())

	missing, _ := table.Lookup("missing")
	v, ok = missing.TryGet()
	assert.True(t, ok)
	assert.Nil(t, v)

	assert.Equal(t, []string{"later", "missing"}, table.Names())
}

func TestWaitGraph(t *testing.T) {
	g := NewWaitGraph()
	t1, t2 := NewTaskID(), NewTaskID()

	_, claimed, err := g.Claim("A", t1)
	require.NoError(t, err)
	assert.True(t, claimed)

	_, _, err = g.Claim("A", t1)
	assert.ErrorIs(t, err, ErrSelfDependency)

	owner, claimed, err := g.Claim("A", t2)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, t1, owner)

	_, claimed, _ = g.Claim("B", t2)
	require.True(t, claimed)

	// t1 waits on B (owned by t2), then t2 tries to wait on A (owned by t1)
	require.NoError(t, g.BeginWait(t1, "B"))
	assert.ErrorIs(t, g.BeginWait(t2, "A"), ErrDependencyCycle)

	g.EndWait(t1)
	assert.NoError(t, g.BeginWait(t2, "A"))

	g.Release("A")
	_, claimed, _ = g.Claim("A", t2)
	assert.True(t, claimed)
}
