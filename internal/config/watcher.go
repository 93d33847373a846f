package config

import (
	"time"

	radowatcher "github.com/radovskyb/watcher"

	"github.com/hashicorp/go-hclog"

	"github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"
)

// pollInterval is the polling cadence for detecting config file changes.
const pollInterval = 5 * time.Second

// Watcher polls the configuration file for changes and admits any
// newly appeared identifiers into the registry. It never removes or
// mutates an already-registered upstream -- this is strictly additive,
// exactly like the admin add_api path, and conflicts/duplicates found
// on reload are logged and skipped rather than fatal.
type Watcher struct {
	path     string
	registry *ratelimit.Registry
	log      hclog.Logger
	w        *radowatcher.Watcher
}

// NewWatcher builds a Watcher for the config file at path.
func NewWatcher(path string, registry *ratelimit.Registry, log hclog.Logger) *Watcher {
	return &Watcher{path: path, registry: registry, log: log.Named("config-watcher")}
}

// Run watches the config file until stop is closed or Close is called.
// It blocks, so it is started in its own goroutine.
func (cw *Watcher) Run(stop <-chan struct{}) error {
	w := radowatcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(radowatcher.Write, radowatcher.Create)
	cw.w = w

	if err := w.Add(cw.path); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case event := <-w.Event:
				cw.reload(event.Path)
			case err := <-w.Error:
				cw.log.Warn("watch error", "err", err)
			case <-w.Closed:
				return
			case <-stop:
				w.Close()
				return
			}
		}
	}()

	return w.Start(pollInterval)
}

// Close stops the underlying watcher.
func (cw *Watcher) Close() {
	if cw.w != nil {
		cw.w.Close()
	}
}

func (cw *Watcher) reload(path string) {
	file, err := Load(path)
	if err != nil {
		cw.log.Warn("reload failed, keeping previous configuration", "err", err)
		return
	}
	for _, decodeErr := range file.Errors {
		cw.log.Warn("skipping source on reload", "err", decodeErr)
	}

	added := 0
	for _, src := range file.Sources {
		key := src.Identifier.WithDefaults().Key()
		if _, exists := cw.registry.Lookup(key); exists {
			continue
		}
		if err := cw.registry.Register(src.Identifier, src.RateLimit); err != nil {
			cw.log.Warn("skipping source on reload", "identifier", key, "err", err)
			continue
		}
		added++
	}
	if added > 0 {
		cw.log.Info("configs_reloaded", "added", added)
	}
}
