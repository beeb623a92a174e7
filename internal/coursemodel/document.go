package coursemodel

import (
	"strings"
	"time"
)

// Document is the storable form of a Model, keyed by course run name in the
// metadata collection.
type Document struct {
	Name   string         `json:"name"`
	Object DocumentObject `json:"object"`
}

// DocumentObject mirrors the Model maps with stable JSON keys.
type DocumentObject struct {
	CourseID          string               `json:"course_id"`
	CourseName        string               `json:"course_name"`
	StartTime         time.Time            `json:"start_time"`
	EndTime           time.Time            `json:"end_time"`
	ChildParentMap    map[string]string    `json:"child_parent_map"`
	OrderMap          map[string]int       `json:"order_map"`
	ElementTypeMap    map[string]string    `json:"element_type_map"`
	ElementTimeMap    map[string]time.Time `json:"element_time_map"`
	ElementTimeMapDue map[string]time.Time `json:"element_time_map_due"`
	QuizQuestionMap   map[string]float64   `json:"quiz_question_map"`
	BlockTypeMap      map[string]string    `json:"block_type_map"`
	ElementNameMap    map[string]string    `json:"element_name_map"`
}

// DocumentID implements models.Document.
func (d Document) DocumentID() string { return d.Name }

// Document converts the model into its storable form under the given run name.
// Maps are copied so the model stays immutable.
func (m *Model) Document(runName string) Document {
	return Document{
		Name: runName,
		Object: DocumentObject{
			CourseID:          m.courseID,
			CourseName:        m.courseName,
			StartTime:         m.start,
			EndTime:           m.end,
			ChildParentMap:    copyMap(m.childParent),
			OrderMap:          copyMap(m.order),
			ElementTypeMap:    copyMap(m.elementType),
			ElementTimeMap:    copyMap(m.elementStart),
			ElementTimeMapDue: copyMap(m.elementDue),
			QuizQuestionMap:   copyMap(m.quizWeight),
			BlockTypeMap:      copyMap(m.blockDisplayName),
			ElementNameMap:    copyMap(m.elementName),
		},
	}
}

// FromDocument rebuilds a Model from its stored form.
func FromDocument(doc Document) *Model {
	o := doc.Object
	m := &Model{
		courseID:         o.CourseID,
		courseName:       o.CourseName,
		start:            o.StartTime,
		end:              o.EndTime,
		childParent:      copyMap(o.ChildParentMap),
		order:            copyMap(o.OrderMap),
		elementType:      copyMap(o.ElementTypeMap),
		elementStart:     copyMap(o.ElementTimeMap),
		elementDue:       copyMap(o.ElementTimeMapDue),
		quizWeight:       copyMap(o.QuizQuestionMap),
		blockDisplayName: copyMap(o.BlockTypeMap),
		elementName:      copyMap(o.ElementNameMap),
		shortIDs:         make(map[string]string),
	}
	for id := range m.elementType {
		if idx := strings.LastIndex(id, "@"); idx >= 0 && idx < len(id)-1 {
			m.shortIDs[id[idx+1:]] = id
		}
	}
	return m
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
