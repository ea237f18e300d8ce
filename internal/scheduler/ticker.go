package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener receives tick events.
type Listener interface {
	OnTick(ctx context.Context, now time.Time)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, now time.Time)

func (f ListenerFunc) OnTick(ctx context.Context, now time.Time) { f(ctx, now) }

// Ticker drives periodic background work on a fixed interval. Listeners run
// sequentially on the ticker goroutine, so a slow listener delays the others.
type Ticker struct {
	interval  time.Duration
	listeners []Listener
	ticks     int
	running   bool
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *zap.Logger
}

// NewTicker creates a ticker with the given interval.
func NewTicker(interval time.Duration, logger *zap.Logger) *Ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{interval: interval, logger: logger}
}

// AddListener registers a tick listener.
func (t *Ticker) AddListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Ticks returns how many ticks have been delivered.
func (t *Ticker) Ticks() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ticks
}

// Running reports whether the tick loop is active.
func (t *Ticker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Start begins the tick loop in a background goroutine. The loop stops when
// ctx is cancelled or Stop is called. Starting a running ticker is a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true
	go t.loop(ctx, t.done)
	t.logger.Info("ticker started",
		zap.Duration("interval", t.interval),
		zap.Int("listeners", len(t.listeners)))
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done
	t.logger.Info("ticker stopped")
}

// Tick delivers one tick to every listener synchronously.
func (t *Ticker) Tick(ctx context.Context, now time.Time) {
	t.mu.Lock()
	t.ticks++
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		if ctx.Err() != nil {
			return
		}
		l.OnTick(ctx, now)
	}
}

func (t *Ticker) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer func() {
		ticker.Stop()
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Tick(ctx, now)
		}
	}
}
