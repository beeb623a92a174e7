// Package sessionizer segments per-learner event streams into session records.
//
// Every segmenter is a pure fold: Advance(state, events) returns a new state and
// the sessions closed by the events, Flush(state) closes what is still open at
// the end of a run. States are never modified in place, so a state value can be
// kept, compared or replayed by the caller.
package sessionizer

import (
	"sort"
	"time"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// Config holds the windowing thresholds shared by every segmenter.
type Config struct {
	Timeout     time.Duration
	MinDuration time.Duration
}

// DefaultConfig returns a 30 minute idle timeout and a 5 second minimum duration.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Minute, MinDuration: 5 * time.Second}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MinDuration < 0 {
		c.MinDuration = def.MinDuration
	}
	return c
}

// expired reports whether next falls strictly more than Timeout after prev.
func (c Config) expired(prev, next time.Time) bool {
	return next.Sub(prev) > c.Timeout
}

// qualifies reports whether a span is long enough to be emitted.
func (c Config) qualifies(start, end time.Time) bool {
	return end.Sub(start) > c.MinDuration
}

// LearnerBuffer is the carried state of one learner within one segmenter.
type LearnerBuffer[C any] struct {
	// Pending holds the events of the open window, starting at the event that opened it.
	Pending []eventlog.Event
	// Carry is segmenter specific state that outlives a single window.
	Carry C
	// Watermark is the earliest time a later event may carry; older events are dropped as late.
	Watermark time.Time
}

// State is the carried state of one segmenter for one course run.
type State[C any] struct {
	Learners   map[string]LearnerBuffer[C]
	Late       int
	Unresolved int
}

func (s State[C]) clone() State[C] {
	out := State[C]{
		Learners:   make(map[string]LearnerBuffer[C], len(s.Learners)),
		Late:       s.Late,
		Unresolved: s.Unresolved,
	}
	for k, v := range s.Learners {
		out.Learners[k] = v
	}
	return out
}

// OpenLearners counts learners with an open window.
func (s State[C]) OpenLearners() int {
	n := 0
	for _, b := range s.Learners {
		if len(b.Pending) > 0 {
			n++
		}
	}
	return n
}

// machine is the per-learner state machine of a segmenter. A machine is built
// fresh from a carry and fed events in time order.
type machine[C any, S models.Document] interface {
	step(ev eventlog.Event) []S
	// open reports whether a window is open after the last step.
	open() bool
	// opened reports whether the last step opened a new window.
	opened() bool
	// anchorCarry is the carry as it was when the current window opened.
	anchorCarry() C
	carry() C
	flush() []S
	unresolved() int
}

type factory[C any, S models.Document] func(learner string, carry C) machine[C, S]

type foldOptions struct {
	keepLate bool
}

type taggedEvent struct {
	ev    eventlog.Event
	fresh bool
}

// advance merges each learner's pending window with the new events and replays
// the machine from the window's opening event.
func advance[C any, S models.Document](st State[C], events []eventlog.Event, mk factory[C, S], opts foldOptions) (State[C], []S) {
	next := st.clone()
	if len(events) == 0 {
		return next, nil
	}

	groups, ids := eventlog.GroupByLearner(events)
	var out []S
	for _, id := range ids {
		buf := next.Learners[id]

		merged := make([]taggedEvent, 0, len(buf.Pending)+len(groups[id]))
		for _, ev := range buf.Pending {
			merged = append(merged, taggedEvent{ev: ev})
		}
		for _, ev := range groups[id] {
			if !opts.keepLate && !buf.Watermark.IsZero() && ev.Time.Before(buf.Watermark) {
				next.Late++
				continue
			}
			merged = append(merged, taggedEvent{ev: ev, fresh: true})
		}
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].ev.Time.Before(merged[j].ev.Time)
		})

		m := mk(id, buf.Carry)
		anchor := -1
		var anchorCarry C
		for i, t := range merged {
			before := m.unresolved()
			out = append(out, m.step(t.ev)...)
			if t.fresh {
				next.Unresolved += m.unresolved() - before
			}
			if m.opened() {
				anchor = i
				anchorCarry = m.anchorCarry()
			}
		}

		nb := LearnerBuffer[C]{Watermark: buf.Watermark}
		switch {
		case m.open() && anchor >= 0:
			nb.Pending = make([]eventlog.Event, 0, len(merged)-anchor)
			for _, t := range merged[anchor:] {
				nb.Pending = append(nb.Pending, t.ev)
			}
			nb.Carry = anchorCarry
			nb.Watermark = merged[anchor].ev.Time
		default:
			nb.Carry = m.carry()
			if len(merged) > 0 && !opts.keepLate {
				nb.Watermark = merged[len(merged)-1].ev.Time
			}
		}
		next.Learners[id] = nb
	}
	return next, uniqueSorted(out)
}

// flush closes every learner's open window.
func flush[C any, S models.Document](st State[C], mk factory[C, S]) []S {
	ids := make([]string, 0, len(st.Learners))
	for id := range st.Learners {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []S
	for _, id := range ids {
		buf := st.Learners[id]
		m := mk(id, buf.Carry)
		for _, ev := range buf.Pending {
			out = append(out, m.step(ev)...)
		}
		out = append(out, m.flush()...)
	}
	return uniqueSorted(out)
}

// uniqueSorted orders sessions by id and drops repeated ids, keeping the first.
func uniqueSorted[S models.Document](in []S) []S {
	if len(in) == 0 {
		return nil
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].DocumentID() < in[j].DocumentID() })
	out := in[:1]
	for _, s := range in[1:] {
		if s.DocumentID() != out[len(out)-1].DocumentID() {
			out = append(out, s)
		}
	}
	return out
}

// windowBase tracks the open/opened flags shared by the windowed machines.
type windowBase struct {
	isOpen     bool
	justOpened bool
	start      time.Time
	end        time.Time
}

func (w *windowBase) begin(at time.Time) {
	w.isOpen = true
	w.justOpened = true
	w.start = at
	w.end = at
}

func (w *windowBase) reset() {
	w.isOpen = false
	w.start = time.Time{}
	w.end = time.Time{}
}

func (w *windowBase) open() bool   { return w.isOpen }
func (w *windowBase) opened() bool { return w.justOpened }

type noUnresolved struct{}

func (noUnresolved) unresolved() int { return 0 }
