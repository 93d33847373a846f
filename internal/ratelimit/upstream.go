package ratelimit

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	gometrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/RoMcHiKo0o/ratelimiter/internal/identifier"
)

// Upstream owns one configured remote API: its priority queue, its
// pacing limiter, its daily counter, and the worker goroutine that
// drains the queue.
type Upstream struct {
	ID         identifier.Identifier
	Config     Config
	dispatcher Dispatcher
	log        hclog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   priorityQueue
	seq     uint64
	counter int
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	limiter *rate.Limiter
}

// NewUpstream allocates an Upstream with an empty queue and a counter
// of 0.
func NewUpstream(id identifier.Identifier, cfg Config, dispatcher Dispatcher, log hclog.Logger) *Upstream {
	u := &Upstream{
		ID:         id,
		Config:     cfg,
		dispatcher: dispatcher,
		log:        log.Named("upstream").With("identifier", id.Key()),
		limiter:    rate.NewLimiter(rate.Every(cfg.EffectiveInterval()), 1),
		done:       make(chan struct{}),
	}
	u.cond = sync.NewCond(&u.mu)
	return u
}

// Enqueue wraps request in a work item with a fresh monotonic sequence
// number, pushes it to the queue, and returns immediately without
// blocking. If the worker has already been stopped, the item
// is immediately failed with a shutdown envelope.
func (u *Upstream) Enqueue(priority int, req Request) <-chan Envelope {
	done := make(chan Envelope, 1)

	u.mu.Lock()
	if u.stopped {
		u.mu.Unlock()
		done <- ShutdownEnvelope()
		return done
	}

	u.seq++
	heap.Push(&u.queue, &pendingItem{
		priority: priority,
		sequence: u.seq,
		request:  req,
		done:     done,
	})
	u.mu.Unlock()
	u.cond.Signal()
	return done
}

// IncrementIfAllowed atomically checks the quota and increments the
// counter. It reports false (without incrementing) when RPD is
// non-negative and the counter has already reached it -- the
// compare-and-update a shared counter needs, using a ">=" boundary so
// a quota of N allows exactly N requests before rejecting.
func (u *Upstream) IncrementIfAllowed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.Config.Unlimited() && u.counter >= u.Config.RPD {
		return false
	}
	u.counter++
	return true
}

// ResetCounter zeros the daily counter. Called by the quota reset
// scheduler; benign to race against IncrementIfAllowed.
func (u *Upstream) ResetCounter() {
	u.mu.Lock()
	u.counter = 0
	u.mu.Unlock()
}

// Counter reports the current count. Only tests read it.
func (u *Upstream) Counter() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counter
}

// Start launches the worker loop in a new goroutine. Calling Start
// twice is a no-op.
//
// A freshly constructed rate.Limiter with burst 1 starts with a full
// token bucket, so its first Wait call always returns immediately.
// That token is drained right here, before the worker ever pops an
// item, so the exemption from pacing applies only to the very first
// dispatch the worker spawns -- every Wait call inside run, including
// the one gating the gap between dispatch #1 and dispatch #2, then
// enforces the full effective interval.
func (u *Upstream) Start(ctx context.Context) {
	u.mu.Lock()
	if u.started {
		u.mu.Unlock()
		return
	}
	u.started = true
	runCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.mu.Unlock()

	_ = u.limiter.Wait(context.Background())
	go u.run(runCtx)
}

// Stop signals shutdown: no further items may be enqueued (future
// Enqueue calls fail fast with a shutdown envelope), any item still
// sitting in the queue is failed with a shutdown envelope without
// being dispatched, and already-spawned dispatches are left to finish
// on their own. If Start was called, Stop blocks until the worker
// goroutine has exited.
func (u *Upstream) Stop() {
	u.mu.Lock()
	if u.stopped {
		u.mu.Unlock()
		return
	}
	u.stopped = true
	for u.queue.Len() > 0 {
		item := heap.Pop(&u.queue).(*pendingItem)
		item.done <- ShutdownEnvelope()
	}
	cancel := u.cancel
	started := u.started
	u.mu.Unlock()

	u.cond.Broadcast()
	if cancel != nil {
		cancel()
	}
	if started {
		<-u.done
	}
}

// run is the worker loop. Each iteration waits for the queue
// to be non-empty, pops the lowest (priority, sequence) item, spawns
// a concurrent dispatch, then paces the start of the next dispatch by
// at least the effective interval (plus jitter when configured)
// before looping. The limiter's initial token is drained in Start, so
// every Wait call here -- including the one after the worker's first
// dispatch -- enforces the full interval.
func (u *Upstream) run(ctx context.Context) {
	defer close(u.done)
	defer func() {
		if r := recover(); r != nil {
			u.log.Error("worker loop panicked, exiting", "panic", r)
		}
	}()

	for {
		u.mu.Lock()
		for u.queue.Len() == 0 && !u.stopped {
			u.cond.Wait()
		}
		if u.queue.Len() == 0 {
			// stopped with an empty queue: nothing left to drain.
			u.mu.Unlock()
			return
		}
		item := heap.Pop(&u.queue).(*pendingItem)
		u.mu.Unlock()

		u.log.Debug("dispatching", "priority", item.priority, "sequence", item.sequence)
		go u.dispatch(item)

		if err := u.limiter.Wait(ctx); err != nil {
			// Context cancelled (shutdown): the loop will observe
			// u.stopped on its next pass and exit, but there may be
			// no more signal pending, so check directly.
			u.mu.Lock()
			stopped := u.stopped
			u.mu.Unlock()
			if stopped {
				return
			}
			continue
		}
		if u.Config.AddRandom {
			time.Sleep(time.Duration(rand.Float64() * float64(time.Second)))
		}
	}
}

// dispatch runs the outbound call on its own goroutine -- started in
// parallel while pacing blocks the *next* release, so one slow
// upstream response never stalls the release of the next item -- and
// writes the result into the item's completion exactly once.
func (u *Upstream) dispatch(item *pendingItem) {
	// Deliberately detached from the worker's shutdown context: the
	// registry does not forcibly cancel in-flight HTTP calls.
	env := u.dispatcher.Dispatch(context.Background(), item.request)
	item.done <- env

	outcome := "ok"
	if env.IsError() {
		outcome = "transport-error"
	} else if env.Status < 200 || env.Status >= 300 {
		outcome = "non-2xx"
	}
	gometrics.IncrCounterWithLabels([]string{"ratelimiter", "dispatch"}, 1, []gometrics.Label{
		{Name: "identifier", Value: u.ID.Key()},
		{Name: "outcome", Value: outcome},
	})
}
