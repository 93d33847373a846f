package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/RoMcHiKo0o/ratelimiter/internal/identifier"
)

// recordingDispatcher records every Request it sees and returns a
// canned Envelope for each.
type recordingDispatcher struct {
	mu  sync.Mutex
	got []Request
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req Request) Envelope {
	d.mu.Lock()
	d.got = append(d.got, req)
	d.mu.Unlock()
	return Envelope{Status: 200, Body: map[string]any{"ok": true}}
}

func (d *recordingDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.got)
}

func testUpstream(cfg Config, dispatcher Dispatcher) *Upstream {
	id := identifier.Identifier{URL: "http://h/a", Method: "GET"}
	return NewUpstream(id, cfg, dispatcher, hclog.NewNullLogger())
}

func TestUpstream_EnqueueAfterStop_FailsFast(t *testing.T) {
	require := require.New(t)

	u := testUpstream(Config{Interval: 0.001, RPD: -1}, &recordingDispatcher{})
	u.Start(context.Background())
	u.Stop()

	env := <-u.Enqueue(0, Request{})
	require.True(env.IsError())
	require.Contains(env.Err, "shutdown")
}

func TestUpstream_Stop_DrainsQueuedItemsWithShutdownError(t *testing.T) {
	require := require.New(t)

	// Never start the worker, so nothing is ever dequeued.
	u := testUpstream(Config{Interval: 10, RPD: -1}, &recordingDispatcher{})
	done := u.Enqueue(0, Request{})

	u.Stop()

	select {
	case env := <-done:
		require.True(env.IsError())
	case <-time.After(time.Second):
		t.Fatal("Stop did not drain the queued item")
	}
}

func TestUpstream_DispatchesEnqueuedRequest(t *testing.T) {
	require := require.New(t)

	dispatcher := &recordingDispatcher{}
	u := testUpstream(Config{Interval: 0.001, RPD: -1}, dispatcher)
	u.Start(context.Background())
	defer u.Stop()

	env := <-u.Enqueue(0, Request{URL: "http://h/a", Method: "GET"})
	require.False(env.IsError())
	require.Equal(200, env.Status)
	require.Equal(1, dispatcher.calls())
}

func TestUpstream_IncrementIfAllowed_BoundaryIsGreaterOrEqual(t *testing.T) {
	require := require.New(t)

	u := testUpstream(Config{Interval: 0.001, RPD: 2}, &recordingDispatcher{})

	require.True(u.IncrementIfAllowed())
	require.True(u.IncrementIfAllowed())
	require.False(u.IncrementIfAllowed())
	require.Equal(2, u.Counter())
}

func TestUpstream_IncrementIfAllowed_UnlimitedNeverRejects(t *testing.T) {
	require := require.New(t)

	u := testUpstream(Config{Interval: 0.001, RPD: -1}, &recordingDispatcher{})
	for i := 0; i < 100; i++ {
		require.True(u.IncrementIfAllowed())
	}
}

func TestUpstream_ResetCounter(t *testing.T) {
	require := require.New(t)

	u := testUpstream(Config{Interval: 0.001, RPD: 1}, &recordingDispatcher{})
	require.True(u.IncrementIfAllowed())
	require.False(u.IncrementIfAllowed())

	u.ResetCounter()
	require.True(u.IncrementIfAllowed())
}

func TestUpstream_PacesSuccessiveDispatches(t *testing.T) {
	require := require.New(t)

	var mu sync.Mutex
	var starts []time.Time
	dispatcher := dispatcherFunc(func(_ context.Context, req Request) Envelope {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return Envelope{Status: 200}
	})

	u := testUpstream(Config{Interval: 0.2, RPD: -1}, dispatcher)
	u.Start(context.Background())
	defer u.Stop()

	<-u.Enqueue(0, Request{})
	<-u.Enqueue(0, Request{})
	<-u.Enqueue(0, Request{})

	mu.Lock()
	defer mu.Unlock()
	require.Len(starts, 3)

	// Effective interval is 0.2*1.1s = 220ms. The worker's limiter
	// token is drained before it ever pops an item, so every
	// consecutive pair of dispatch starts -- including the first --
	// must be at least that far apart.
	require.GreaterOrEqual(starts[1].Sub(starts[0]), 200*time.Millisecond)
	require.GreaterOrEqual(starts[2].Sub(starts[1]), 200*time.Millisecond)
}

func TestUpstream_PriorityOrdering(t *testing.T) {
	require := require.New(t)

	var mu sync.Mutex
	var order []string

	dispatcher := dispatcherFunc(func(_ context.Context, req Request) Envelope {
		mu.Lock()
		order = append(order, req.URL)
		mu.Unlock()
		return Envelope{Status: 200}
	})

	u := testUpstream(Config{Interval: 0.05, RPD: -1}, dispatcher)
	defer u.Stop()

	c1 := u.Enqueue(0, Request{URL: "first"})
	c2 := u.Enqueue(-5, Request{URL: "second"})
	c3 := u.Enqueue(0, Request{URL: "third"})
	u.Start(context.Background())
	<-c1
	<-c2
	<-c3

	mu.Lock()
	defer mu.Unlock()
	require.Equal([]string{"second", "first", "third"}, order)
}

// dispatcherFunc adapts a function to the Dispatcher interface.
type dispatcherFunc func(ctx context.Context, req Request) Envelope

func (f dispatcherFunc) Dispatch(ctx context.Context, req Request) Envelope { return f(ctx, req) }
