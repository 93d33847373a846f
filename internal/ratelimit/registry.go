package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/RoMcHiKo0o/ratelimiter/internal/identifier"
)

// Source is one entry of the configuration file: an identifier
// paired with its rate-limit config.
type Source struct {
	Identifier identifier.Identifier
	RateLimit  Config
}

// Registry is the keyed collection of upstream workers. The
// map is guarded by a reader-writer lock: registration is rare (init
// plus occasional admin calls), lookups happen on every intake.
type Registry struct {
	dispatcher Dispatcher
	log        hclog.Logger

	mu        sync.RWMutex
	upstreams map[string]*Upstream

	ctx       context.Context
	cancel    context.CancelFunc
	scheduler *ResetScheduler
	started   bool
}

// NewRegistry builds an empty registry bound to dispatcher for all
// upstreams it creates.
func NewRegistry(dispatcher Dispatcher, log hclog.Logger) *Registry {
	return &Registry{
		dispatcher: dispatcher,
		log:        log.Named("registry"),
		upstreams:  make(map[string]*Upstream),
	}
}

// snapshot returns the currently registered identifiers, for the
// matcher. Caller must not hold r.mu.
func (r *Registry) snapshot() []identifier.Identifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]identifier.Identifier, 0, len(r.upstreams))
	for _, u := range r.upstreams {
		ids = append(ids, u.ID)
	}
	return ids
}

// Keys returns every registered identifier's canonical key, for
// GET /admin/get_apis.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.upstreams))
	for k := range r.upstreams {
		keys = append(keys, k)
	}
	return keys
}

// Matcher builds a Matcher over the current registration snapshot.
// The snapshot may be stale by the time the caller uses it under
// concurrent registration, which is acceptable: a registration that
// lands mid-lookup either was or wasn't visible, same as any other
// reader-writer race, and conflict checking always re-snapshots under
// its own lock at registration time (see Register).
func (r *Registry) Matcher() *identifier.Matcher {
	return identifier.NewMatcher(r.snapshot())
}

// Lookup is an O(1) lookup by canonical identifier key.
func (r *Registry) Lookup(key string) (*Upstream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.upstreams[key]
	return u, ok
}

// LoadFromConfig registers every valid, non-conflicting source from a
// freshly loaded config file. Validation and
// conflict failures are logged and skipped, never fatal. The
// hot-reload watcher does not use it; it calls Register directly.
func (r *Registry) LoadFromConfig(sources []Source) {
	for _, src := range sources {
		if err := r.Register(src.Identifier, src.RateLimit); err != nil {
			r.log.Warn("skipping source", "identifier", src.Identifier, "err", err)
		}
	}
}

// Register validates the identifier is conflict-free and not already
// present, then creates, starts (if the registry itself is already
// started) and indexes a new Upstream.
func (r *Registry) Register(id identifier.Identifier, cfg Config) error {
	id = id.WithDefaults()
	if err := id.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := id.Key()
	if _, exists := r.upstreams[key]; exists {
		return fmt.Errorf("identifier %s is already registered", key)
	}

	ids := make([]identifier.Identifier, 0, len(r.upstreams))
	for _, u := range r.upstreams {
		ids = append(ids, u.ID)
	}
	conflicts, err := identifier.NewMatcher(ids).ConflictsWith(id)
	if err != nil {
		return fmt.Errorf("checking conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("identifier %s overlaps with %d already-registered identifier(s)", key, len(conflicts))
	}

	u := NewUpstream(id, cfg, r.dispatcher, r.log)
	r.upstreams[key] = u
	if r.started {
		u.Start(r.ctx)
	}
	return nil
}

// Start spawns the quota reset scheduler and one worker per currently
// registered upstream. Upstreams registered afterwards are
// started immediately by Register.
func (r *Registry) Start(ctx context.Context, clock Clock) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	upstreams := make([]*Upstream, 0, len(r.upstreams))
	for _, u := range r.upstreams {
		upstreams = append(upstreams, u)
	}
	r.mu.Unlock()

	for _, u := range upstreams {
		u.Start(r.ctx)
	}

	r.scheduler = NewResetScheduler(r, clock, r.log)
	go r.scheduler.Run(r.ctx)
}

// Stop signals shutdown to every worker and to the reset scheduler
// It blocks until every worker has drained.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	upstreams := make([]*Upstream, 0, len(r.upstreams))
	for _, u := range r.upstreams {
		upstreams = append(upstreams, u)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, u := range upstreams {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.Stop()
		}()
	}
	wg.Wait()
}

// ForEach calls fn for every registered upstream, used by the reset
// scheduler. Holding r.mu.RLock for the duration is safe: ResetCounter
// takes the upstream's own lock, never the registry's.
func (r *Registry) ForEach(fn func(*Upstream)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.upstreams {
		fn(u)
	}
}
