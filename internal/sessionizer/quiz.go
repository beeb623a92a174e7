package sessionizer

import (
	"sort"
	"time"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// ElementResolver is the part of the course model the quiz, ORA and forum
// segmenters depend on.
type ElementResolver interface {
	CourseID() string
	ResolveElement(ref string) (string, bool)
	Parent(elementID string) (string, bool)
}

type span struct {
	Start time.Time
	End   time.Time
}

// quizCarry collects the closed sub-intervals of a learner per parent element.
// They are merged and emitted at run end.
type quizCarry struct {
	Intervals map[string][]span
}

func (c quizCarry) clone() quizCarry {
	out := quizCarry{Intervals: make(map[string][]span, len(c.Intervals))}
	for k, v := range c.Intervals {
		out.Intervals[k] = append([]span(nil), v...)
	}
	return out
}

// QuizState is the carried state of the quiz segmenter.
type QuizState = State[quizCarry]

// Quiz groups problem activity by the problem's parent element.
type Quiz struct {
	cfg   Config
	model ElementResolver
}

// NewQuiz builds a quiz segmenter over a course model.
func NewQuiz(cfg Config, model ElementResolver) *Quiz {
	return &Quiz{cfg: cfg.withDefaults(), model: model}
}

// Advance folds a chunk of events into the state. Quiz sessions are only
// emitted by Flush, once every sub-interval of the run is known.
func (q *Quiz) Advance(st QuizState, events []eventlog.Event) (QuizState, []models.QuizSession) {
	return advance[quizCarry, models.QuizSession](st, events, q.newMachine, foldOptions{})
}

// Flush records open windows and merges each parent's sub-intervals.
func (q *Quiz) Flush(st QuizState) []models.QuizSession {
	return flush[quizCarry, models.QuizSession](st, q.newMachine)
}

func (q *Quiz) newMachine(learner string, carry quizCarry) machine[quizCarry, models.QuizSession] {
	return &quizMachine{cfg: q.cfg, model: q.model, learner: learner, c: carry.clone()}
}

type quizMachine struct {
	windowBase
	cfg     Config
	model   ElementResolver
	learner string
	c       quizCarry
	anchor  quizCarry
	key     string
	misses  int
}

func (m *quizMachine) step(ev eventlog.Event) []models.QuizSession {
	m.justOpened = false
	qe := ClassifyQuiz(ev)

	if !m.isOpen {
		if qe.Relevant() {
			m.openFor(qe, ev.Time)
		}
		return nil
	}

	if !qe.Relevant() {
		if !m.cfg.expired(m.end, ev.Time) {
			m.end = ev.Time
		}
		m.record()
		return nil
	}

	key, ok := m.parentOf(qe)
	if ok && key == m.key && !m.cfg.expired(m.end, ev.Time) {
		m.end = ev.Time
		return nil
	}
	m.record()
	if ok {
		m.begin(ev.Time)
		m.key = key
		m.anchor = m.c.clone()
	} else {
		m.misses++
	}
	return nil
}

func (m *quizMachine) openFor(qe QuizEvent, at time.Time) {
	key, ok := m.parentOf(qe)
	if !ok {
		m.misses++
		return
	}
	m.begin(at)
	m.key = key
	m.anchor = m.c.clone()
}

func (m *quizMachine) parentOf(qe QuizEvent) (string, bool) {
	question, ok := m.model.ResolveElement(qe.QuestionID)
	if !ok {
		return "", false
	}
	return m.model.Parent(question)
}

// record stores the open window as a sub-interval of its key and closes it.
func (m *quizMachine) record() {
	if !m.isOpen {
		return
	}
	if m.c.Intervals == nil {
		m.c.Intervals = make(map[string][]span)
	}
	m.c.Intervals[m.key] = append(m.c.Intervals[m.key], span{Start: m.start, End: m.end})
	m.key = ""
	m.reset()
}

func (m *quizMachine) flush() []models.QuizSession {
	m.record()

	keys := make([]string, 0, len(m.c.Intervals))
	for k := range m.c.Intervals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []models.QuizSession
	for _, key := range keys {
		for _, s := range mergeSpans(m.c.Intervals[key], m.cfg) {
			if !m.cfg.qualifies(s.Start, s.End) {
				continue
			}
			out = append(out, models.QuizSession{
				SessionID:       models.SpanID("quiz_session_"+key+"_"+m.learner, s.Start, s.End),
				CourseLearnerID: m.learner,
				ElementID:       key,
				StartTime:       s.Start,
				EndTime:         s.End,
				Duration:        models.Seconds(s.Start, s.End),
			})
		}
	}
	m.c = quizCarry{}
	return out
}

// mergeSpans joins spans separated by no more than the timeout.
func mergeSpans(spans []span, cfg Config) []span {
	if len(spans) == 0 {
		return nil
	}
	sorted := append([]span(nil), spans...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &out[len(out)-1]
		if !cfg.expired(last.End, s.Start) {
			if s.End.After(last.End) {
				last.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *quizMachine) anchorCarry() quizCarry { return m.anchor }
func (m *quizMachine) carry() quizCarry       { return m.c }
func (m *quizMachine) unresolved() int        { return m.misses }
