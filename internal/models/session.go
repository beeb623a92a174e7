package models

import (
	"fmt"
	"time"
)

// Collection names used by the document store.
const (
	CollectionSessions          = "sessions"
	CollectionVideoInteractions = "video_interactions"
	CollectionQuizSessions      = "quiz_sessions"
	CollectionOraSessions       = "ora_sessions"
	CollectionForumSessions     = "forum_sessions"
	CollectionForumInteractions = "forum_interactions"
	CollectionSubmissions       = "submissions"
	CollectionAssessments       = "assessments"
	CollectionQuizQuestions     = "quiz_questions"
	CollectionCourseElements    = "course_elements"
	CollectionMetadata          = "metadata"
	CollectionClickstream       = "clickstream"
)

// Collections lists every collection a run may write to.
var Collections = []string{
	CollectionSessions,
	CollectionVideoInteractions,
	CollectionQuizSessions,
	CollectionOraSessions,
	CollectionForumSessions,
	CollectionForumInteractions,
	CollectionSubmissions,
	CollectionAssessments,
	CollectionQuizQuestions,
	CollectionCourseElements,
	CollectionMetadata,
}

// Document is implemented by every record persisted to a collection.
type Document interface {
	DocumentID() string
}

// GeneralSession is an idle-timeout bounded interval of any learner activity.
type GeneralSession struct {
	SessionID       string    `json:"session_id"`
	CourseLearnerID string    `json:"course_learner_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Duration        float64   `json:"duration"`
}

// DocumentID implements Document.
func (s GeneralSession) DocumentID() string { return s.SessionID }

// VideoInteraction captures one continuous watch of a single video.
type VideoInteraction struct {
	SessionID            string    `json:"session_id"`
	CourseLearnerID      string    `json:"course_learner_id"`
	VideoID              string    `json:"video_id"`
	Type                 string    `json:"type"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	Duration             float64   `json:"duration"`
	TimesForwardSeek     int       `json:"times_forward_seek"`
	DurationForwardSeek  float64   `json:"duration_forward_seek"`
	TimesBackwardSeek    int       `json:"times_backward_seek"`
	DurationBackwardSeek float64   `json:"duration_backward_seek"`
	TimesSpeedUp         int       `json:"times_speed_up"`
	TimesSpeedDown       int       `json:"times_speed_down"`
	TimesPause           int       `json:"times_pause"`
	DurationPause        float64   `json:"duration_pause"`
}

// DocumentID implements Document.
func (v VideoInteraction) DocumentID() string { return v.SessionID }

// QuizSession is a merged interval of activity on problems sharing a parent element.
type QuizSession struct {
	SessionID       string    `json:"session_id"`
	CourseLearnerID string    `json:"course_learner_id"`
	ElementID       string    `json:"element_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Duration        float64   `json:"duration"`
}

// DocumentID implements Document.
func (q QuizSession) DocumentID() string { return q.SessionID }

// OraSession tracks open-response assessment work within one window.
type OraSession struct {
	SessionID       string    `json:"session_id"`
	CourseLearnerID string    `json:"course_learner_id"`
	ElementID       string    `json:"element_id"`
	TimesSave       int       `json:"times_save"`
	TimesPeerAssess int       `json:"times_peer_assess"`
	Submitted       bool      `json:"submitted"`
	SelfAssessed    bool      `json:"self_assessed"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Duration        float64   `json:"duration"`
}

// DocumentID implements Document.
func (o OraSession) DocumentID() string { return o.SessionID }

// ForumSession is a window of discussion activity attributed to a course element.
type ForumSession struct {
	SessionID        string    `json:"session_id"`
	CourseLearnerID  string    `json:"course_learner_id"`
	TimesSearch      int       `json:"times_search"`
	RelatedElementID string    `json:"related_element_id"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Duration         float64   `json:"duration"`
}

// DocumentID implements Document.
func (f ForumSession) DocumentID() string { return f.SessionID }

// ForumPost is a thread, comment or reply a learner wrote in the course forum.
type ForumPost struct {
	PostID          string    `json:"post_id"`
	CourseLearnerID string    `json:"course_learner_id"`
	PostType        string    `json:"post_type"`
	PostTitle       string    `json:"post_title"`
	PostContent     string    `json:"post_content"`
	PostTimestamp   time.Time `json:"post_timestamp"`
	PostParentID    string    `json:"post_parent_id"`
	PostThreadID    string    `json:"post_thread_id"`
}

// DocumentID implements Document.
func (p ForumPost) DocumentID() string { return p.PostID }

// Submission records the latest problem_check of a learner for a question.
type Submission struct {
	SubmissionID        string    `json:"submission_id"`
	CourseLearnerID     string    `json:"course_learner_id"`
	QuestionID          string    `json:"question_id"`
	SubmissionTimestamp time.Time `json:"submission_timestamp"`
}

// DocumentID implements Document.
func (s Submission) DocumentID() string { return s.SubmissionID }

// Assessment is the automatic grade attached to a submission.
type Assessment struct {
	AssessmentID    string  `json:"assessment_id"`
	CourseLearnerID string  `json:"course_learner_id"`
	MaxGrade        float64 `json:"max_grade"`
	Grade           float64 `json:"grade"`
}

// DocumentID implements Document.
func (a Assessment) DocumentID() string { return a.AssessmentID }

// QuizQuestion describes a gradable problem of the course.
type QuizQuestion struct {
	QuestionID     string     `json:"question_id"`
	QuestionType   string     `json:"question_type"`
	QuestionWeight float64    `json:"question_weight"`
	QuestionDue    *time.Time `json:"question_due,omitempty"`
}

// DocumentID implements Document.
func (q QuizQuestion) DocumentID() string { return q.QuestionID }

// CourseElement places an element of the course tree on the course calendar.
type CourseElement struct {
	ElementID   string `json:"element_id"`
	ElementType string `json:"element_type"`
	Week        int    `json:"week"`
	CourseID    string `json:"course_id"`
}

// DocumentID implements Document.
func (c CourseElement) DocumentID() string { return c.ElementID }

// Seconds returns the span between two instants in fractional seconds.
func Seconds(start, end time.Time) float64 {
	return end.Sub(start).Seconds()
}

// SpanID renders the <prefix>_<startMs>_<endMs> natural id shared by session shapes.
func SpanID(prefix string, start, end time.Time) string {
	return fmt.Sprintf("%s_%d_%d", prefix, start.UnixMilli(), end.UnixMilli())
}
