package filerelay

import (
	"time"
)

// ProgressEvent is a throttled snapshot of one transfer leg.
type ProgressEvent struct {
	Phase       Phase         `json:"phase"`
	Transferred int64         `json:"transferred"`
	Total       int64         `json:"total"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Percent returns the completed fraction in the [0, 100] range.
func (e ProgressEvent) Percent() float64 {
	if e.Total <= 0 {
		return 0
	}
	p := float64(e.Transferred) / float64(e.Total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Speed returns the average throughput of the leg in bytes per second.
func (e ProgressEvent) Speed() float64 {
	secs := e.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(e.Transferred) / secs
}

// Done reports whether the event is the final flush of its phase.
func (e ProgressEvent) Done() bool {
	return e.Transferred == e.Total
}

// ProgressSink receives progress events on the goroutine that drives the transfer.
type ProgressSink func(ProgressEvent)

type phaseState struct {
	started  time.Time
	lastEmit time.Time
	lastSent int64
	emitted  bool
}

// ProgressTracker rate limits progress reports. A tracker belongs to a single
// transfer and is not safe for concurrent use.
type ProgressTracker struct {
	interval  time.Duration
	phases    map[Phase]*phaseState
	timeNowFn func() time.Time
}

// NewProgressTracker creates a tracker emitting at most one event per interval
// and phase (DefaultProgressInterval if <= 0).
func NewProgressTracker(interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	return &ProgressTracker{
		interval:  interval,
		phases:    make(map[Phase]*phaseState, 2),
		timeNowFn: time.Now,
	}
}

func (t *ProgressTracker) timeNow() time.Time {
	if t.timeNowFn != nil {
		return t.timeNowFn()
	}
	return time.Now()
}

// Start pins the elapsed-time origin of a phase. Reports for a phase that was
// never started use the time of their first report.
func (t *ProgressTracker) Start(phase Phase) {
	t.phases[phase] = &phaseState{started: t.timeNow()}
}

// Report returns an event if the interval elapsed since the last emitted
// event of the phase, or if current == total. Reports that would move the
// phase backwards are dropped.
func (t *ProgressTracker) Report(current, total int64, phase Phase) (ProgressEvent, bool) {
	now := t.timeNow()

	state, ok := t.phases[phase]
	if !ok {
		state = &phaseState{started: now}
		t.phases[phase] = state
	}

	if state.emitted && current < state.lastSent {
		return ProgressEvent{}, false
	}

	final := current == total
	if state.emitted && !final && now.Sub(state.lastEmit) < t.interval {
		return ProgressEvent{}, false
	}

	if state.emitted && final && current == state.lastSent {
		// final event already flushed
		return ProgressEvent{}, false
	}

	state.emitted = true
	state.lastEmit = now
	state.lastSent = current

	return ProgressEvent{
		Phase:       phase,
		Transferred: current,
		Total:       total,
		Elapsed:     now.Sub(state.started),
	}, true
}
