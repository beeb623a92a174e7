package sessionizer

import (
	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// GeneralState is the carried state of the general segmenter.
type GeneralState = State[struct{}]

// General segments every event of a learner into idle-timeout windows.
// A page_close event ends the open window at its own time.
type General struct {
	cfg Config
}

// NewGeneral builds a general segmenter.
func NewGeneral(cfg Config) *General {
	return &General{cfg: cfg.withDefaults()}
}

// Advance folds a chunk of events into the state.
func (g *General) Advance(st GeneralState, events []eventlog.Event) (GeneralState, []models.GeneralSession) {
	return advance[struct{}, models.GeneralSession](st, events, g.newMachine, foldOptions{})
}

// Flush closes every open window.
func (g *General) Flush(st GeneralState) []models.GeneralSession {
	return flush[struct{}, models.GeneralSession](st, g.newMachine)
}

func (g *General) newMachine(learner string, _ struct{}) machine[struct{}, models.GeneralSession] {
	return &generalMachine{cfg: g.cfg, learner: learner}
}

type generalMachine struct {
	windowBase
	noUnresolved
	cfg     Config
	learner string
}

func (m *generalMachine) step(ev eventlog.Event) []models.GeneralSession {
	m.justOpened = false

	if !m.isOpen {
		m.begin(ev.Time)
		return nil
	}
	if m.cfg.expired(m.end, ev.Time) {
		out := m.emit()
		m.begin(ev.Time)
		return out
	}
	if IsPageClose(ev.Type) {
		m.end = ev.Time
		out := m.emit()
		m.reset()
		return out
	}
	m.end = ev.Time
	return nil
}

func (m *generalMachine) flush() []models.GeneralSession {
	if !m.isOpen {
		return nil
	}
	out := m.emit()
	m.reset()
	return out
}

func (m *generalMachine) emit() []models.GeneralSession {
	if !m.cfg.qualifies(m.start, m.end) {
		return nil
	}
	return []models.GeneralSession{{
		SessionID:       models.SpanID(m.learner, m.start, m.end),
		CourseLearnerID: m.learner,
		StartTime:       m.start,
		EndTime:         m.end,
		Duration:        models.Seconds(m.start, m.end),
	}}
}

func (m *generalMachine) anchorCarry() struct{} { return struct{}{} }
func (m *generalMachine) carry() struct{}       { return struct{}{} }
