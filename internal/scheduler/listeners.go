package scheduler

import (
	"context"
	"time"

	"github.com/nidhogg/semnet/internal/reasoning"
	"go.uber.org/zap"
)

// Stepper advances a thought flow by one transition.
type Stepper interface {
	ThinkStep() *reasoning.Thought
}

// ThoughtLoop is a Listener that takes one thought step per interval.
type ThoughtLoop struct {
	stepper Stepper
	gate    *Every
	logger  *zap.Logger
}

// NewThoughtLoop creates a thought-flow listener.
func NewThoughtLoop(s Stepper, interval time.Duration, logger *zap.Logger) *ThoughtLoop {
	return &ThoughtLoop{stepper: s, gate: NewEvery(interval), logger: logger}
}

// OnTick implements Listener.
func (l *ThoughtLoop) OnTick(_ context.Context, now time.Time) {
	if !l.gate.Due(now) {
		return
	}
	if t := l.stepper.ThinkStep(); t != nil {
		l.logger.Debug("thought",
			zap.String("from", t.From),
			zap.String("to", t.To))
	}
}

// HistorySource hands over buffered history records.
type HistorySource interface {
	DrainHistory() []reasoning.Record
}

// HistorySink persists drained history records.
type HistorySink func(ctx context.Context, records []reasoning.Record) error

// maxPending bounds how many unsaved records a flusher keeps for retry.
const maxPending = 10000

// HistoryFlusher is a Listener that drains the engine history on an interval
// and hands it to a sink. Records from a failed save are retried on the next
// flush; beyond maxPending the oldest are discarded.
type HistoryFlusher struct {
	source  HistorySource
	sink    HistorySink
	gate    *Every
	pending []reasoning.Record
	logger  *zap.Logger
}

// NewHistoryFlusher creates a history flush listener.
func NewHistoryFlusher(src HistorySource, sink HistorySink, interval time.Duration, logger *zap.Logger) *HistoryFlusher {
	return &HistoryFlusher{source: src, sink: sink, gate: NewEvery(interval), logger: logger}
}

// OnTick implements Listener.
func (f *HistoryFlusher) OnTick(ctx context.Context, now time.Time) {
	if !f.gate.Due(now) {
		return
	}
	f.Flush(ctx)
}

// Flush drains and saves immediately. It returns the number of records saved.
func (f *HistoryFlusher) Flush(ctx context.Context) int {
	f.pending = append(f.pending, f.source.DrainHistory()...)
	if len(f.pending) == 0 {
		return 0
	}
	if err := f.sink(ctx, f.pending); err != nil {
		if over := len(f.pending) - maxPending; over > 0 {
			f.pending = f.pending[over:]
			f.logger.Warn("discarding unsaved history", zap.Int("count", over))
		}
		f.logger.Warn("history flush failed, will retry",
			zap.Int("pending", len(f.pending)),
			zap.Error(err))
		return 0
	}
	n := len(f.pending)
	f.pending = nil
	f.logger.Debug("history flushed", zap.Int("count", n))
	return n
}

// Pending returns how many records await a successful save.
func (f *HistoryFlusher) Pending() int { return len(f.pending) }
