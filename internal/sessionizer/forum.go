package sessionizer

import (
	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// forumCarry keeps the element attributed to the learner's previous forum
// session, used when a session finds no element of its own.
type forumCarry struct {
	PreviousElement string
}

// ForumState is the carried state of the forum segmenter.
type ForumState = State[forumCarry]

// Forum segments discussion activity and attributes each session to the
// course element the learner was last seen on.
type Forum struct {
	cfg   Config
	model ElementResolver
}

// NewForum builds a forum segmenter over a course model.
func NewForum(cfg Config, model ElementResolver) *Forum {
	return &Forum{cfg: cfg.withDefaults(), model: model}
}

// Advance folds a chunk of events into the state.
func (f *Forum) Advance(st ForumState, events []eventlog.Event) (ForumState, []models.ForumSession) {
	return advance[forumCarry, models.ForumSession](st, events, f.newMachine, foldOptions{})
}

// Flush closes every open session.
func (f *Forum) Flush(st ForumState) []models.ForumSession {
	return flush[forumCarry, models.ForumSession](st, f.newMachine)
}

func (f *Forum) newMachine(learner string, carry forumCarry) machine[forumCarry, models.ForumSession] {
	return &forumMachine{cfg: f.cfg, courseID: f.model.CourseID(), learner: learner, c: carry}
}

type forumMachine struct {
	windowBase
	noUnresolved
	cfg      Config
	courseID string
	learner  string
	c        forumCarry
	anchor   forumCarry

	searches int
	element  string
}

func (m *forumMachine) step(ev eventlog.Event) []models.ForumSession {
	m.justOpened = false
	kind := ClassifyForum(ev.Type)

	if !m.isOpen {
		if kind != ForumNone {
			m.openWith(ev, kind)
		}
		return nil
	}

	if m.cfg.expired(m.end, ev.Time) {
		out := m.emit()
		m.close()
		if kind != ForumNone {
			m.openWith(ev, kind)
		}
		return out
	}

	m.end = ev.Time
	if el := FindRelatedElement(ev, m.courseID); el != "" {
		m.element = el
	}
	if kind == ForumSearch {
		m.searches++
	}
	if kind != ForumNone {
		return nil
	}
	out := m.emit()
	m.close()
	return out
}

func (m *forumMachine) openWith(ev eventlog.Event, kind ForumKind) {
	m.begin(ev.Time)
	m.anchor = m.c
	m.element = FindRelatedElement(ev, m.courseID)
	if kind == ForumSearch {
		m.searches = 1
	}
}

// emit closes the session attribution: the session's own element wins, then
// the previous session's. The attributed element becomes the next fallback.
func (m *forumMachine) emit() []models.ForumSession {
	element := m.element
	if element == "" {
		element = m.c.PreviousElement
	}
	m.c = forumCarry{PreviousElement: element}

	if !m.cfg.qualifies(m.start, m.end) {
		return nil
	}
	return []models.ForumSession{{
		SessionID:        models.SpanID("forum_session_"+m.learner, m.start, m.end),
		CourseLearnerID:  m.learner,
		TimesSearch:      m.searches,
		RelatedElementID: element,
		StartTime:        m.start,
		EndTime:          m.end,
		Duration:         models.Seconds(m.start, m.end),
	}}
}

func (m *forumMachine) close() {
	m.reset()
	m.searches = 0
	m.element = ""
}

func (m *forumMachine) flush() []models.ForumSession {
	if !m.isOpen {
		return nil
	}
	out := m.emit()
	m.close()
	return out
}

func (m *forumMachine) anchorCarry() forumCarry { return m.anchor }
func (m *forumMachine) carry() forumCarry       { return m.c }
