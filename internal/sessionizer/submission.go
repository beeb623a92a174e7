package sessionizer

import (
	"sort"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

const problemCheck = "problem_check"

// SubmissionRecord pairs a submission with its automatic assessment, if graded.
type SubmissionRecord struct {
	Submission models.Submission
	Assessment *models.Assessment
}

// DocumentID implements models.Document.
func (r SubmissionRecord) DocumentID() string { return r.Submission.SubmissionID }

type submissionCarry struct {
	Latest map[string]SubmissionRecord
}

// SubmissionState is the carried state of the submission extractor.
type SubmissionState = State[submissionCarry]

// Submissions keeps the latest server-side problem_check of every learner for
// every question. It has no windows, so events arriving out of order are kept.
type Submissions struct{}

// NewSubmissions builds a submission extractor.
func NewSubmissions() *Submissions { return &Submissions{} }

// Advance folds a chunk of events into the state. Records are emitted by Flush.
func (s *Submissions) Advance(st SubmissionState, events []eventlog.Event) (SubmissionState, []SubmissionRecord) {
	return advance[submissionCarry, SubmissionRecord](st, events, s.newMachine, foldOptions{keepLate: true})
}

// Flush emits one record per learner and question.
func (s *Submissions) Flush(st SubmissionState) []SubmissionRecord {
	return flush[submissionCarry, SubmissionRecord](st, s.newMachine)
}

func (s *Submissions) newMachine(learner string, carry submissionCarry) machine[submissionCarry, SubmissionRecord] {
	latest := make(map[string]SubmissionRecord, len(carry.Latest))
	for k, v := range carry.Latest {
		latest[k] = v
	}
	return &submissionMachine{learner: learner, latest: latest}
}

type submissionMachine struct {
	noUnresolved
	learner string
	latest  map[string]SubmissionRecord
}

func (m *submissionMachine) step(ev eventlog.Event) []SubmissionRecord {
	if ev.Type != problemCheck || !ev.Payload.IsObject || ev.Payload.ProblemID == "" {
		return nil
	}
	question := ev.Payload.ProblemID
	if prev, ok := m.latest[question]; ok && ev.Time.Before(prev.Submission.SubmissionTimestamp) {
		return nil
	}

	id := m.learner + "_" + question
	rec := SubmissionRecord{Submission: models.Submission{
		SubmissionID:        id,
		CourseLearnerID:     m.learner,
		QuestionID:          question,
		SubmissionTimestamp: ev.Time,
	}}
	if ev.Payload.HasGrade {
		rec.Assessment = &models.Assessment{
			AssessmentID:    id,
			CourseLearnerID: m.learner,
			MaxGrade:        ev.Payload.MaxGrade,
			Grade:           ev.Payload.Grade,
		}
	}
	m.latest[question] = rec
	return nil
}

func (m *submissionMachine) flush() []SubmissionRecord {
	questions := make([]string, 0, len(m.latest))
	for q := range m.latest {
		questions = append(questions, q)
	}
	sort.Strings(questions)
	out := make([]SubmissionRecord, 0, len(questions))
	for _, q := range questions {
		out = append(out, m.latest[q])
	}
	return out
}

func (m *submissionMachine) open() bool                   { return false }
func (m *submissionMachine) opened() bool                 { return false }
func (m *submissionMachine) anchorCarry() submissionCarry { return submissionCarry{} }
func (m *submissionMachine) carry() submissionCarry       { return submissionCarry{Latest: m.latest} }
