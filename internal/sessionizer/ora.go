package sessionizer

import (
	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// OraState is the carried state of the ORA segmenter.
type OraState = State[struct{}]

// Ora tracks the submission lifecycle of open-response assessments. One
// session is open per learner at a time, whatever the element.
type Ora struct {
	cfg   Config
	model ElementResolver
}

// NewOra builds an ORA segmenter over a course model.
func NewOra(cfg Config, model ElementResolver) *Ora {
	return &Ora{cfg: cfg.withDefaults(), model: model}
}

// Advance folds a chunk of events into the state.
func (o *Ora) Advance(st OraState, events []eventlog.Event) (OraState, []models.OraSession) {
	return advance[struct{}, models.OraSession](st, events, o.newMachine, foldOptions{})
}

// Flush closes every open session.
func (o *Ora) Flush(st OraState) []models.OraSession {
	return flush[struct{}, models.OraSession](st, o.newMachine)
}

func (o *Ora) newMachine(learner string, _ struct{}) machine[struct{}, models.OraSession] {
	return &oraMachine{cfg: o.cfg, model: o.model, learner: learner}
}

type oraMachine struct {
	windowBase
	cfg     Config
	model   ElementResolver
	learner string
	misses  int

	firstElement   string
	currentElement string
	saves          int
	peerAssessed   int
	submitted      bool
	selfAssessed   bool
}

func (m *oraMachine) step(ev eventlog.Event) []models.OraSession {
	m.justOpened = false

	oe, isOra := ClassifyOra(ev.Type, ev.UsageKey)
	var element string
	if isOra {
		resolved, ok := m.model.ResolveElement(oe.Element)
		if ok {
			element = resolved
		} else {
			m.misses++
			isOra = false
		}
	}

	if !m.isOpen {
		if isOra {
			m.openWith(ev, oe, element)
		}
		return nil
	}

	if m.cfg.expired(m.end, ev.Time) {
		out := m.emit()
		m.close()
		if isOra {
			m.openWith(ev, oe, element)
		}
		return out
	}

	m.end = ev.Time
	if isOra {
		m.currentElement = element
		m.apply(oe)
		return nil
	}
	out := m.emit()
	m.close()
	return out
}

func (m *oraMachine) openWith(ev eventlog.Event, oe OraEvent, element string) {
	m.begin(ev.Time)
	m.firstElement = element
	m.currentElement = element
	m.apply(oe)
}

func (m *oraMachine) apply(oe OraEvent) {
	switch oe.Verb {
	case OraSaveSubmission:
		m.saves++
	case OraPeerAssess:
		if !oe.Meta {
			m.peerAssessed++
		}
	case OraCreateSubmission:
		m.submitted = true
	case OraSelfAssess:
		m.selfAssessed = true
	}
}

func (m *oraMachine) emit() []models.OraSession {
	start := m.start
	if !m.cfg.qualifies(start, m.end) {
		return nil
	}
	return []models.OraSession{{
		SessionID:       models.SpanID("ora_session_"+m.firstElement+"_"+m.learner, start, m.end),
		CourseLearnerID: m.learner,
		ElementID:       m.currentElement,
		TimesSave:       m.saves,
		TimesPeerAssess: m.peerAssessed,
		Submitted:       m.submitted,
		SelfAssessed:    m.selfAssessed,
		StartTime:       start,
		EndTime:         m.end,
		Duration:        models.Seconds(start, m.end),
	}}
}

func (m *oraMachine) close() {
	m.reset()
	m.firstElement, m.currentElement = "", ""
	m.saves, m.peerAssessed = 0, 0
	m.submitted, m.selfAssessed = false, false
}

func (m *oraMachine) flush() []models.OraSession {
	if !m.isOpen {
		return nil
	}
	out := m.emit()
	m.close()
	return out
}

func (m *oraMachine) anchorCarry() struct{} { return struct{}{} }
func (m *oraMachine) carry() struct{}       { return struct{}{} }
func (m *oraMachine) unresolved() int       { return m.misses }
