package sessionizer

import (
	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// Runner drives one segmenter over a whole course run. A runner is owned by a
// single goroutine.
type Runner interface {
	Name() string
	Advance(events []eventlog.Event)
	// Finish flushes the segmenter and returns every record of the run by collection.
	Finish() map[string][]models.Document
	Unresolved() int
	Late() int
	OpenLearners() int
}

type segmenter[C any, S models.Document] interface {
	Advance(st State[C], events []eventlog.Event) (State[C], []S)
	Flush(st State[C]) []S
}

type foldRunner[C any, S models.Document] struct {
	name       string
	collection string
	seg        segmenter[C, S]
	state      State[C]
	out        []S
}

func newFoldRunner[C any, S models.Document](name, collection string, seg segmenter[C, S]) *foldRunner[C, S] {
	return &foldRunner[C, S]{name: name, collection: collection, seg: seg}
}

func (r *foldRunner[C, S]) Name() string { return r.name }

func (r *foldRunner[C, S]) Advance(events []eventlog.Event) {
	var sessions []S
	r.state, sessions = r.seg.Advance(r.state, events)
	r.out = append(r.out, sessions...)
}

func (r *foldRunner[C, S]) Finish() map[string][]models.Document {
	all := uniqueSorted(append(r.out, r.seg.Flush(r.state)...))
	r.out = nil
	r.state = State[C]{}
	return map[string][]models.Document{r.collection: toDocuments(all)}
}

func (r *foldRunner[C, S]) Unresolved() int   { return r.state.Unresolved }
func (r *foldRunner[C, S]) Late() int         { return r.state.Late }
func (r *foldRunner[C, S]) OpenLearners() int { return r.state.OpenLearners() }

// submissionRunner splits submission records into their two collections.
type submissionRunner struct {
	*foldRunner[submissionCarry, SubmissionRecord]
}

func (r submissionRunner) Finish() map[string][]models.Document {
	records := r.foldRunner.Finish()[models.CollectionSubmissions]
	out := map[string][]models.Document{
		models.CollectionSubmissions: make([]models.Document, 0, len(records)),
		models.CollectionAssessments: nil,
	}
	for _, doc := range records {
		rec := doc.(SubmissionRecord)
		out[models.CollectionSubmissions] = append(out[models.CollectionSubmissions], rec.Submission)
		if rec.Assessment != nil {
			out[models.CollectionAssessments] = append(out[models.CollectionAssessments], *rec.Assessment)
		}
	}
	return out
}

// NewRunners builds one runner per segmenter, in the order their collections
// are written.
func NewRunners(cfg Config, model ElementResolver) []Runner {
	return []Runner{
		newFoldRunner[struct{}, models.GeneralSession]("general", models.CollectionSessions, NewGeneral(cfg)),
		newFoldRunner[videoCarry, models.VideoInteraction]("video", models.CollectionVideoInteractions, NewVideo(cfg)),
		submissionRunner{newFoldRunner[submissionCarry, SubmissionRecord]("submissions", models.CollectionSubmissions, NewSubmissions())},
		newFoldRunner[quizCarry, models.QuizSession]("quiz", models.CollectionQuizSessions, NewQuiz(cfg, model)),
		newFoldRunner[struct{}, models.OraSession]("ora", models.CollectionOraSessions, NewOra(cfg, model)),
		newFoldRunner[forumCarry, models.ForumSession]("forum", models.CollectionForumSessions, NewForum(cfg, model)),
	}
}

func toDocuments[S models.Document](in []S) []models.Document {
	out := make([]models.Document, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
