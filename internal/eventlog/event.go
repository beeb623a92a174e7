// Package eventlog decodes tracking-log records into typed events.
package eventlog

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Event is one decoded tracking-log record.
type Event struct {
	LearnerID string // <course_id>_<user_id>
	UserID    string
	CourseID  string
	Type      string
	Time      time.Time
	Page      string
	Path      string
	Referer   string
	UsageKey  string
	Payload   Payload
}

// Payload holds the category-specific fields extracted from the nested event.
type Payload struct {
	VideoID string

	OldTime     float64
	NewTime     float64
	HasPosition bool

	OldSpeed float64
	NewSpeed float64
	HasSpeed bool

	ProblemID string
	Grade     float64
	MaxGrade  float64
	HasGrade  bool

	// IsObject reports whether the nested event decoded to a JSON object.
	IsObject bool
	Raw      json.RawMessage
}

// SortByTime orders events by time, keeping input order for equal timestamps.
func SortByTime(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})
}

// GroupByLearner splits events per learner preserving relative order. The
// returned learner ids are sorted.
func GroupByLearner(events []Event) (map[string][]Event, []string) {
	groups := make(map[string][]Event)
	for _, ev := range events {
		groups[ev.LearnerID] = append(groups[ev.LearnerID], ev)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return groups, ids
}

// NormalizeVideoID rewrites legacy dashed i4x video ids (i4x-org-course-video-hash)
// into their URL form (i4x://org/course/video/hash).
func NormalizeVideoID(id string) string {
	if !strings.HasPrefix(id, "i4x-") {
		return id
	}
	id = strings.Replace(id, "-", "://", 1)
	return strings.ReplaceAll(id, "-", "/")
}

// PrefilterToken returns the substring every line of the course must contain.
func PrefilterToken(courseID string) string {
	if idx := strings.Index(courseID, ":"); idx >= 0 {
		return courseID[idx+1:]
	}
	return courseID
}
