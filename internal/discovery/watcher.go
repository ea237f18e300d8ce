// Package discovery runs relationship auto-discovery in the background and
// hands the results to registered sinks.
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/semnet/internal/reasoning"
	"github.com/nidhogg/semnet/internal/scheduler"
	"go.uber.org/zap"
)

// Discoverer proposes new relationships.
type Discoverer interface {
	AutoDiscoverRelationships(ctx context.Context, opts reasoning.DiscoverOpts) []reasoning.Discovery
}

// Sink receives each non-empty batch of discoveries.
type Sink func(ctx context.Context, found []reasoning.Discovery) error

// Watcher is a scheduler.Listener that runs auto-discovery on an interval.
type Watcher struct {
	engine Discoverer
	opts   reasoning.DiscoverOpts
	gate   *scheduler.Every
	sinks  map[string]Sink
	names  []string
	paused bool
	runs   int
	mu     sync.Mutex
	logger *zap.Logger
}

// NewWatcher creates a discovery watcher.
func NewWatcher(engine Discoverer, opts reasoning.DiscoverOpts, interval time.Duration, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		engine: engine,
		opts:   opts,
		gate:   scheduler.NewEvery(interval),
		sinks:  make(map[string]Sink),
		logger: logger,
	}
}

// AddSink registers a named sink. Re-using a name replaces the sink.
func (w *Watcher) AddSink(name string, s Sink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sinks[name]; !ok {
		w.names = append(w.names, name)
	}
	w.sinks[name] = s
}

// Pause stops tick-driven runs until Resume. RunNow still works.
func (w *Watcher) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = true
}

// Resume re-enables tick-driven runs.
func (w *Watcher) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = false
}

// Paused reports whether tick-driven runs are suspended.
func (w *Watcher) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Options returns the options used by tick-driven runs.
func (w *Watcher) Options() reasoning.DiscoverOpts { return w.opts }

// Runs returns how many discovery passes have completed.
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// OnTick implements scheduler.Listener.
func (w *Watcher) OnTick(ctx context.Context, now time.Time) {
	if w.Paused() || !w.gate.Due(now) {
		return
	}
	w.RunNow(ctx)
}

// RunNow performs one discovery pass with the watcher's options.
func (w *Watcher) RunNow(ctx context.Context) []reasoning.Discovery {
	return w.RunWith(ctx, w.opts)
}

// RunWith performs one discovery pass and delivers the results to every
// sink. Sink failures are logged and do not stop delivery to the others.
func (w *Watcher) RunWith(ctx context.Context, opts reasoning.DiscoverOpts) []reasoning.Discovery {
	found := w.engine.AutoDiscoverRelationships(ctx, opts)

	w.mu.Lock()
	w.runs++
	names := make([]string, len(w.names))
	copy(names, w.names)
	sinks := make([]Sink, len(names))
	for i, n := range names {
		sinks[i] = w.sinks[n]
	}
	w.mu.Unlock()

	if len(found) == 0 {
		return found
	}
	for i, s := range sinks {
		if err := s(ctx, found); err != nil {
			w.logger.Warn("discovery sink failed",
				zap.String("sink", names[i]),
				zap.Int("count", len(found)),
				zap.Error(err))
		}
	}
	return found
}
