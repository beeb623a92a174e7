package sessionizer

import (
	"strings"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
)

// IsPageClose reports the explicit end-of-page event.
func IsPageClose(eventType string) bool {
	return eventType == "page_close"
}

// VideoKind tags an event for the video segmenter.
type VideoKind int

const (
	VideoNone VideoKind = iota
	VideoPlay
	VideoPause
	VideoStop
	VideoSeek
	VideoSpeed
	VideoOther
)

var videoVocabulary = map[string]VideoKind{
	"hide_transcript":                  VideoOther,
	"edx.video.transcript.hidden":      VideoOther,
	"edx.video.closed_captions.hidden": VideoOther,
	"edx.video.closed_captions.shown":  VideoOther,
	"load_video":                       VideoOther,
	"edx.video.loaded":                 VideoOther,
	"pause_video":                      VideoPause,
	"edx.video.paused":                 VideoPause,
	"play_video":                       VideoPlay,
	"edx.video.played":                 VideoPlay,
	"seek_video":                       VideoSeek,
	"edx.video.position.changed":       VideoSeek,
	"show_transcript":                  VideoOther,
	"edx.video.transcript.shown":       VideoOther,
	"speed_change_video":               VideoSpeed,
	"stop_video":                       VideoStop,
	"edx.video.stopped":                VideoStop,
	"video_hide_cc_menu":               VideoOther,
	"edx.video.language_menu.hidden":   VideoOther,
	"video_show_cc_menu":               VideoOther,
	"edx.video.language_menu.shown":    VideoOther,
}

// ClassifyVideo maps an event type onto the video vocabulary. VideoNone means
// the event is not a video event.
func ClassifyVideo(eventType string) VideoKind {
	return videoVocabulary[eventType]
}

// QuizKind tags the legacy encoding a quiz event was recognised by.
type QuizKind int

const (
	QuizNone QuizKind = iota
	QuizSubmission
	QuizProblemBlock
	QuizLegacyProblem
)

// QuizEvent is the result of ClassifyQuiz.
type QuizEvent struct {
	Kind       QuizKind
	QuestionID string
}

// Relevant reports whether the event is quiz activity.
func (q QuizEvent) Relevant() bool { return q.Kind != QuizNone }

var submissionVocabulary = map[string]struct{}{
	"problem_check":           {},
	"save_problem_check":      {},
	"problem_check_fail":      {},
	"save_problem_check_fail": {},
	"problem_graded":          {},
	"problem_rescore":         {},
	"problem_rescore_fail":    {},
	"problem_reset":           {},
	"reset_problem":           {},
	"reset_problem_fail":      {},
	"problem_save":            {},
	"save_problem_fail":       {},
	"save_problem_success":    {},
	"problem_show":            {},
	"showanswer":              {},
}

// ClassifyQuiz recognises problem activity and extracts the question id from
// the payload or, failing that, from the event type string.
func ClassifyQuiz(ev eventlog.Event) QuizEvent {
	var kind QuizKind
	switch {
	case strings.Contains(ev.Type, "problem+block"):
		kind = QuizProblemBlock
	case strings.Contains(ev.Type, "_problem;_"):
		kind = QuizLegacyProblem
	default:
		if _, ok := submissionVocabulary[ev.Type]; ok {
			kind = QuizSubmission
		}
	}
	if kind == QuizNone {
		return QuizEvent{}
	}

	out := QuizEvent{Kind: kind, QuestionID: ev.Payload.ProblemID}
	if out.QuestionID != "" {
		return out
	}
	for _, segment := range strings.Split(ev.Type, "/") {
		switch {
		case kind == QuizProblemBlock && strings.Contains(segment, "problem+block"):
			out.QuestionID = segment
		case kind == QuizLegacyProblem && strings.Contains(segment, "_problem;_"):
			out.QuestionID = strings.ReplaceAll(segment, ";_", "/")
		}
		if out.QuestionID != "" {
			break
		}
	}
	return out
}

// ORA verbs that change session counters.
const (
	OraSaveSubmission   = "save_submission"
	OraCreateSubmission = "create_submission"
	OraPeerAssess       = "peer_assess"
	OraSelfAssess       = "self_assess"
)

// OraEvent is the result of ClassifyOra.
type OraEvent struct {
	Verb    string
	Element string
	// Meta marks the slashed handler form, which is logged alongside the dotted event.
	Meta bool
}

// ClassifyOra recognises the dotted (openassessmentblock.<verb>) and slashed
// (.../openassessment+block@<id>/.../<verb>) forms.
func ClassifyOra(eventType, usageKey string) (OraEvent, bool) {
	switch {
	case strings.Contains(eventType, "openassessmentblock"):
		out := OraEvent{}
		if idx := strings.Index(eventType, "."); idx >= 0 {
			out.Verb = eventType[idx+1:]
		}
		out.Element = usageKey[strings.LastIndex(usageKey, "@")+1:]
		return out, true
	case strings.Contains(eventType, "openassessment+block"):
		out := OraEvent{Meta: true}
		out.Verb = eventType[strings.LastIndex(eventType, "/")+1:]
		element := eventType[strings.LastIndex(eventType, "@")+1:]
		if idx := strings.Index(element, "/"); idx >= 0 {
			element = element[:idx]
		}
		out.Element = element
		return out, true
	}
	return OraEvent{}, false
}

// ForumKind tags an event for the forum segmenter.
type ForumKind int

const (
	ForumNone ForumKind = iota
	ForumActivity
	ForumSearch
)

// ClassifyForum recognises edx.forum.* events and discussion page requests.
func ClassifyForum(eventType string) ForumKind {
	switch {
	case eventType == "edx.forum.searched":
		return ForumSearch
	case strings.HasPrefix(eventType, "edx.forum."), strings.Contains(eventType, "/discussion/"):
		return ForumActivity
	}
	return ForumNone
}

// FindRelatedElement looks for a course element reference in the event type,
// path, page and referer, in that order.
func FindRelatedElement(ev eventlog.Event, courseID string) string {
	for _, field := range []string{ev.Type, ev.Path, ev.Page, ev.Referer} {
		if el := elementIn(field, courseID); el != "" {
			return el
		}
	}
	return ""
}

func elementIn(field, courseID string) string {
	if field == "" {
		return ""
	}
	if strings.Contains(field, "+type@") && strings.Contains(field, "block-v1:") {
		found := ""
		for _, segment := range strings.Split(field, "/") {
			if strings.Contains(segment, "+type@") && strings.Contains(segment, "block-v1:") {
				found = segment
			}
		}
		if found != "" {
			return found
		}
	}
	if strings.Contains(field, "courseware/") {
		afterCourseware := false
		for _, segment := range strings.Split(field, "/") {
			if segment == "courseware" {
				afterCourseware = true
				continue
			}
			if afterCourseware && segment != "" {
				return "block-v1:" + eventlog.PrefilterToken(courseID) + "+type@chapter+block@" + segment
			}
		}
	}
	return ""
}
