package eventlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/mooc-session-miner/internal/coursemodel"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

// Malformed-event reasons.
const (
	ReasonJSON      = "json"
	ReasonUserID    = "user_id"
	ReasonTime      = "time"
	ReasonEventType = "event_type"
)

// MalformedError describes why a record was rejected.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed event (%s)", e.Reason)
}

// Unwrap exposes the shared sentinel so callers can match with errors.Is.
func (e *MalformedError) Unwrap() error { return appErrors.ErrMalformedEvent }

// Reason extracts the malformed reason from err, or "" when err is not a MalformedError.
func Reason(err error) string {
	var me *MalformedError
	if errors.As(err, &me) {
		return me.Reason
	}
	return ""
}

type rawRecord struct {
	Context struct {
		UserID   json.RawMessage `json:"user_id"`
		CourseID string          `json:"course_id"`
		Path     string          `json:"path"`
		Module   struct {
			UsageKey string `json:"usage_key"`
		} `json:"module"`
	} `json:"context"`
	EventType string          `json:"event_type"`
	Time      string          `json:"time"`
	Event     json.RawMessage `json:"event"`
	Page      *string         `json:"page"`
	Path      *string         `json:"path"`
	Referer   *string         `json:"referer"`
}

// Decode turns one JSON record into an Event.
func Decode(line []byte) (Event, error) {
	var rec rawRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return Event{}, &MalformedError{Reason: ReasonJSON, Err: err}
	}

	userID, ok := scalarString(rec.Context.UserID)
	if !ok || userID == "" {
		return Event{}, &MalformedError{Reason: ReasonUserID}
	}
	if rec.EventType == "" {
		return Event{}, &MalformedError{Reason: ReasonEventType}
	}
	ts, err := coursemodel.ParseTime(rec.Time)
	if err != nil {
		return Event{}, &MalformedError{Reason: ReasonTime, Err: err}
	}

	ev := Event{
		LearnerID: rec.Context.CourseID + "_" + userID,
		UserID:    userID,
		CourseID:  rec.Context.CourseID,
		Type:      rec.EventType,
		Time:      ts,
		Page:      deref(rec.Page),
		Path:      deref(rec.Path),
		Referer:   deref(rec.Referer),
		UsageKey:  rec.Context.Module.UsageKey,
		Payload:   decodePayload(rec.Event),
	}
	if ev.Path == "" {
		ev.Path = rec.Context.Path
	}
	return ev, nil
}

// decodePayload accepts the nested event as an object or as a JSON-encoded
// string holding an object. Anything else yields an opaque payload.
func decodePayload(raw json.RawMessage) Payload {
	p := Payload{Raw: raw}
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return p
	}
	if body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return p
		}
		body = bytes.TrimSpace([]byte(inner))
	}
	if len(body) == 0 || body[0] != '{' {
		return p
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return p
	}
	p.IsObject = true

	if id, ok := scalarString(fields["id"]); ok {
		p.VideoID = NormalizeVideoID(id)
	}
	p.ProblemID, _ = scalarString(fields["problem_id"])

	oldTime, okOld := scalarFloat(fields["old_time"])
	newTime, okNew := scalarFloat(fields["new_time"])
	if okOld && okNew {
		p.OldTime, p.NewTime, p.HasPosition = oldTime, newTime, true
	}
	oldSpeed, okOld := scalarFloat(fields["old_speed"])
	newSpeed, okNew := scalarFloat(fields["new_speed"])
	if okOld && okNew {
		p.OldSpeed, p.NewSpeed, p.HasSpeed = oldSpeed, newSpeed, true
	}
	grade, okGrade := scalarFloat(fields["grade"])
	maxGrade, okMax := scalarFloat(fields["max_grade"])
	if okGrade && okMax {
		p.Grade, p.MaxGrade, p.HasGrade = grade, maxGrade, true
	}
	return p
}

// scalarString renders a JSON string or number as a string.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

// scalarFloat reads a JSON number or a numeric string.
func scalarFloat(raw json.RawMessage) (float64, bool) {
	s, ok := scalarString(raw)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DecodeDocuments decodes records that were pre-loaded into the document store.
// Malformed documents are skipped and counted like malformed log lines.
func DecodeDocuments(docs []json.RawMessage) ([]Event, Stats) {
	stats := Stats{Malformed: make(map[string]int)}
	events := make([]Event, 0, len(docs))
	for _, doc := range docs {
		stats.Lines++
		ev, err := Decode(doc)
		if err != nil {
			stats.Malformed[Reason(err)]++
			continue
		}
		stats.Decoded++
		events = append(events, ev)
	}
	return events, stats
}
