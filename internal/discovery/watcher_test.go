package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nidhogg/semnet/internal/reasoning"
	"go.uber.org/zap"
)

type stubEngine struct {
	calls int
	out   []reasoning.Discovery
}

func (s *stubEngine) AutoDiscoverRelationships(_ context.Context, _ reasoning.DiscoverOpts) []reasoning.Discovery {
	s.calls++
	return s.out
}

func TestRunNowDeliversToAllSinks(t *testing.T) {
	eng := &stubEngine{out: []reasoning.Discovery{{Source: "a", Target: "b", RelationType: "similar-to"}}}
	w := NewWatcher(eng, reasoning.DefaultDiscoverOpts(), time.Minute, zap.NewNop())

	var got []string
	w.AddSink("broken", func(context.Context, []reasoning.Discovery) error {
		got = append(got, "broken")
		return errors.New("unreachable")
	})
	w.AddSink("log", func(_ context.Context, found []reasoning.Discovery) error {
		got = append(got, "log:"+found[0].Source)
		return nil
	})

	found := w.RunNow(context.Background())
	if len(found) != 1 {
		t.Fatalf("found = %d", len(found))
	}
	if len(got) != 2 || got[0] != "broken" || got[1] != "log:a" {
		t.Errorf("sink calls = %v", got)
	}
	if w.Runs() != 1 {
		t.Errorf("runs = %d", w.Runs())
	}
}

func TestRunNowSkipsSinksWhenEmpty(t *testing.T) {
	eng := &stubEngine{}
	w := NewWatcher(eng, reasoning.DefaultDiscoverOpts(), time.Minute, nil)
	w.AddSink("s", func(context.Context, []reasoning.Discovery) error {
		t.Error("sink called with no discoveries")
		return nil
	})
	w.RunNow(context.Background())
}

func TestOnTickRespectsIntervalAndPause(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := &stubEngine{}
	w := NewWatcher(eng, reasoning.DefaultDiscoverOpts(), 10*time.Second, zap.NewNop())
	ctx := context.Background()

	w.OnTick(ctx, base)
	w.OnTick(ctx, base.Add(5*time.Second))
	w.OnTick(ctx, base.Add(10*time.Second))
	if eng.calls != 1 {
		t.Fatalf("calls = %d, want 1", eng.calls)
	}

	w.Pause()
	w.OnTick(ctx, base.Add(30*time.Second))
	if eng.calls != 1 {
		t.Errorf("ran while paused")
	}
	w.Resume()
	w.OnTick(ctx, base.Add(40*time.Second))
	if eng.calls != 2 {
		t.Errorf("calls = %d, want 2", eng.calls)
	}
}

func TestWatcherWithEngine(t *testing.T) {
	e, err := reasoning.NewEngine(reasoning.DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	e.AddConcept("cat", "cat", map[string]any{"legs": 4, "fur": true})
	e.AddConcept("dog", "dog", map[string]any{"legs": 4, "fur": true})
	e.AddConcept("animal", "animal", nil)
	e.AddRelationship("cat", "is-a", "animal", 1)
	e.AddRelationship("dog", "is-a", "animal", 1)

	var delivered []reasoning.Discovery
	w := NewWatcher(e, reasoning.DefaultDiscoverOpts(), time.Minute, zap.NewNop())
	w.AddSink("capture", func(_ context.Context, found []reasoning.Discovery) error {
		delivered = append(delivered, found...)
		return nil
	})

	w.RunNow(context.Background())
	w.RunNow(context.Background())
	if len(delivered) != 1 || delivered[0].Source != "cat" || delivered[0].Target != "dog" {
		t.Errorf("delivered = %+v", delivered)
	}
}
