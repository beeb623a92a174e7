// Package coursemodel flattens a course block tree into read-only lookup maps.
package coursemodel

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// Model is the immutable, time-resolved view of one course run's element tree.
// It is safe for concurrent readers.
type Model struct {
	courseID   string
	courseName string
	start      time.Time
	end        time.Time

	childParent      map[string]string
	order            map[string]int
	elementType      map[string]string
	elementStart     map[string]time.Time
	elementDue       map[string]time.Time
	quizWeight       map[string]float64
	blockDisplayName map[string]string
	elementName      map[string]string

	// short block hash (text after the last "@") -> full element id
	shortIDs map[string]string
}

// CourseID returns the canonical course identifier.
func (m *Model) CourseID() string { return m.courseID }

// CourseName returns the display name of the course block.
func (m *Model) CourseName() string { return m.courseName }

// Start returns the course start.
func (m *Model) Start() time.Time { return m.start }

// End returns the course end.
func (m *Model) End() time.Time { return m.end }

// Parent returns the immediate parent of an element.
func (m *Model) Parent(elementID string) (string, bool) {
	p, ok := m.childParent[elementID]
	return p, ok
}

// Order returns the 1-based position of an element among its siblings.
func (m *Model) Order(elementID string) (int, bool) {
	o, ok := m.order[elementID]
	return o, ok
}

// ElementType returns the block category of an element.
func (m *Model) ElementType(elementID string) (string, bool) {
	t, ok := m.elementType[elementID]
	return t, ok
}

// ElementStart returns the explicit or inherited start of an element.
func (m *Model) ElementStart(elementID string) (time.Time, bool) {
	t, ok := m.elementStart[elementID]
	return t, ok
}

// ElementDue returns the explicit due date of an element.
func (m *Model) ElementDue(elementID string) (time.Time, bool) {
	t, ok := m.elementDue[elementID]
	return t, ok
}

// QuizWeight returns the weight of a problem element.
func (m *Model) QuizWeight(elementID string) (float64, bool) {
	w, ok := m.quizWeight[elementID]
	return w, ok
}

// BlockDisplayName returns the display name of a sequential element.
func (m *Model) BlockDisplayName(elementID string) (string, bool) {
	n, ok := m.blockDisplayName[elementID]
	return n, ok
}

// ElementName returns the display name of a non-root element.
func (m *Model) ElementName(elementID string) (string, bool) {
	n, ok := m.elementName[elementID]
	return n, ok
}

// Len reports the number of elements with a resolved start.
func (m *Model) Len() int { return len(m.elementStart) }

// ResolveElement maps a full element id or a short block hash to a full element id.
func (m *Model) ResolveElement(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	if _, ok := m.elementType[ref]; ok {
		return ref, true
	}
	if idx := strings.LastIndex(ref, "@"); idx >= 0 {
		ref = ref[idx+1:]
	}
	id, ok := m.shortIDs[ref]
	return id, ok
}

// QuizQuestions lists every problem with its parent sequential name, weight and inherited due date.
func (m *Model) QuizQuestions() []models.QuizQuestion {
	ids := sortedKeys(m.quizWeight)
	out := make([]models.QuizQuestion, 0, len(ids))
	for _, id := range ids {
		q := models.QuizQuestion{QuestionID: id, QuestionWeight: m.quizWeight[id]}

		var due *time.Time
		seen := map[string]struct{}{id: {}}
		parent, ok := m.childParent[id]
		for ok {
			if _, loop := seen[parent]; loop {
				break
			}
			seen[parent] = struct{}{}
			if due == nil {
				if d, has := m.elementDue[parent]; has {
					d := d
					due = &d
				}
			}
			if name, has := m.blockDisplayName[parent]; has {
				q.QuestionType = name
				break
			}
			parent, ok = m.childParent[parent]
		}
		q.QuestionDue = due
		out = append(out, q)
	}
	return out
}

// CourseElements places every element on the course calendar by week.
func (m *Model) CourseElements() []models.CourseElement {
	ids := sortedKeys(m.elementStart)
	out := make([]models.CourseElement, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.CourseElement{
			ElementID:   id,
			ElementType: m.elementType[id],
			Week:        weekOf(m.start, m.elementStart[id]),
			CourseID:    m.courseID,
		})
	}
	return out
}

// weekOf is 0 when either start is unknown.
func weekOf(courseStart, elementStart time.Time) int {
	if courseStart.IsZero() || elementStart.IsZero() {
		return 0
	}
	days := int(elementStart.Sub(courseStart).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days/7 + 1
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
