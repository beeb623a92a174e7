package service

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mooc-session-miner/internal/models"
	"github.com/noah-isme/mooc-session-miner/internal/sessionizer"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

const fixtureUser = "42"

func logLine(eventType, at, event string) string {
	line := `{"context":{"user_id":` + fixtureUser + `,"course_id":"` + fixtureCourseID + `"},"event_type":"` + eventType + `","time":"` + at + `"`
	if event != "" {
		line += `,"event":` + event
	}
	return line + `}`
}

func fixtureLines() []string {
	page := "/courses/" + fixtureCourseID + "/courseware/"
	return []string{
		logLine(page, "2017-01-20T10:00:00Z", ""),
		`{"broken" ` + fixtureCourseID,
		logLine(page, "2017-01-20T10:00:30Z", ""),
		logLine("problem_check", "2017-01-20T10:01:00Z", `{"problem_id":"`+fixtureProblem+`","grade":1,"max_grade":2}`),
		`{"context":{"user_id":7,"course_id":"course-v1:Other+X+Y"},"event_type":"page_close","time":"2017-01-20T10:00:00Z"}`,
	}
}

func writeLog(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "tracking.log.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

type publisherStub struct {
	published map[string]int
	err       error
}

func (p *publisherStub) Publish(ctx context.Context, run, collection string, docs []models.Document) error {
	if p.published == nil {
		p.published = make(map[string]int)
	}
	p.published[collection] += len(docs)
	return p.err
}

func newPipelineForTest(store *documentStoreStub, publisher SessionPublisher) *PipelineService {
	courseModels := NewCourseModelService(store, nil, 0, zap.NewNop())
	cfg := PipelineConfig{Session: sessionizer.DefaultConfig(), ChunkSize: 2, Prefilter: true}
	return NewPipelineService(courseModels, store, publisher, NewMetricsService(), cfg, zap.NewNop())
}

func TestPipelineServiceRunFromLogs(t *testing.T) {
	store := newDocumentStoreStub()
	publisher := &publisherStub{}
	svc := newPipelineForTest(store, publisher)
	logPath := writeLog(t, t.TempDir(), fixtureLines()...)

	stats, err := svc.Run(context.Background(), models.RunRequest{
		Name:            "AE1110x-1T2017",
		CourseStructure: writeStructure(t),
		Logs:            []string{logPath},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 3, stats.Events)
	assert.Equal(t, map[string]int{"json": 1}, stats.Malformed)
	assert.Equal(t, 1, stats.Written[models.CollectionSessions])
	assert.Equal(t, 1, stats.Written[models.CollectionSubmissions])
	assert.Equal(t, 1, stats.Written[models.CollectionAssessments])
	assert.Empty(t, stats.Failed)

	sessions := store.stored(models.CollectionSessions)
	require.Len(t, sessions, 1)
	general := sessions[0].(models.GeneralSession)
	assert.Equal(t, fixtureCourseID+"_"+fixtureUser, general.CourseLearnerID)
	assert.Equal(t, 60.0, general.Duration)
	assert.Equal(t, 1, publisher.published[models.CollectionSessions])
}

func TestPipelineServiceWritesForumPosts(t *testing.T) {
	store := newDocumentStoreStub()
	svc := newPipelineForTest(store, nil)
	dir := t.TempDir()
	postsPath := filepath.Join(dir, "DelftX-AE1110x-1T2017-prod.mongo")
	require.NoError(t, os.WriteFile(postsPath, []byte(strings.Join([]string{
		`{"_id":{"$oid":"t1"},"_type":"CommentThread","thread_type":"discussion","author_id":"42","title":"Hi","body":"all","created_at":{"$date":"2017-01-20T10:00:00.000Z"}}`,
		`{"_id":{"$oid":"r1"},"_type":"Comment","author_id":"7","body":"hey","created_at":{"$date":"2017-01-21T10:00:00.000Z"},"parent_id":{"$oid":"c1"},"comment_thread_id":{"$oid":"t1"}}`,
		`{"_id":{"$oid":"late"},"_type":"Comment","author_id":"7","body":"bye","created_at":{"$date":"2017-05-01T00:00:00.000Z"}}`,
		`{"_id":{"$oid":"x"}}`,
	}, "\n")), 0o600))

	stats, err := svc.Run(context.Background(), models.RunRequest{
		Name:            "AE1110x-1T2017",
		CourseStructure: writeStructure(t),
		Logs:            []string{writeLog(t, dir, fixtureLines()...)},
		Posts:           postsPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Posts)
	assert.Equal(t, 3, stats.Events)
	assert.Equal(t, map[string]int{"json": 1, "user_id": 1}, stats.Malformed)
	assert.Equal(t, 2, stats.Written[models.CollectionForumInteractions])

	posts := store.stored(models.CollectionForumInteractions)
	require.Len(t, posts, 2)
	reply := posts[0].(models.ForumPost)
	assert.Equal(t, "r1", reply.PostID)
	assert.Equal(t, "Comment_Reply", reply.PostType)
	assert.Equal(t, fixtureCourseID+"_7", reply.CourseLearnerID)
	assert.Equal(t, "CommentThread_discussion", posts[1].(models.ForumPost).PostType)
}

func TestPipelineServiceFailsOnMissingPosts(t *testing.T) {
	store := newDocumentStoreStub()
	svc := newPipelineForTest(store, nil)

	_, err := svc.Run(context.Background(), models.RunRequest{
		Name:            "AE1110x-1T2017",
		CourseStructure: writeStructure(t),
		Logs:            []string{writeLog(t, t.TempDir(), fixtureLines()...)},
		Posts:           filepath.Join(t.TempDir(), "absent.mongo"),
	})
	require.Error(t, err)
	assert.Empty(t, store.stored(models.CollectionSessions))
}

func TestPipelineServicePartialWrite(t *testing.T) {
	store := newDocumentStoreStub()
	store.fail[models.CollectionSubmissions] = errors.New("disk full")
	svc := newPipelineForTest(store, nil)
	logPath := writeLog(t, t.TempDir(), fixtureLines()...)

	stats, err := svc.Run(context.Background(), models.RunRequest{
		Name:            "AE1110x-1T2017",
		CourseStructure: writeStructure(t),
		Logs:            []string{logPath},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrStorageWrite))
	assert.Equal(t, 1, stats.Failed[models.CollectionSubmissions])
	assert.Equal(t, 1, stats.Written[models.CollectionSessions])
	assert.Equal(t, 1, stats.Written[models.CollectionAssessments])
}

func TestPipelineServicePublishFailureIsNotFatal(t *testing.T) {
	store := newDocumentStoreStub()
	svc := newPipelineForTest(store, &publisherStub{err: errors.New("broker down")})
	logPath := writeLog(t, t.TempDir(), fixtureLines()...)

	_, err := svc.Run(context.Background(), models.RunRequest{
		Name:            "AE1110x-1T2017",
		CourseStructure: writeStructure(t),
		Logs:            []string{logPath},
	})
	require.NoError(t, err)
	assert.Len(t, store.stored(models.CollectionSessions), 1)
}

func TestPipelineServiceRunFromStore(t *testing.T) {
	store := newDocumentStoreStub()
	lines := fixtureLines()
	store.results[models.CollectionClickstream] = []json.RawMessage{
		json.RawMessage(lines[3]),
		json.RawMessage(lines[0]),
		json.RawMessage(`{"context":{"course_id":"` + fixtureCourseID + `"},"event_type":"page_close","time":"2017-01-20T10:00:00Z"}`),
		json.RawMessage(lines[2]),
	}
	svc := newPipelineForTest(store, nil)

	stats, err := svc.Run(context.Background(), models.RunRequest{
		Name:            "AE1110x-1T2017",
		CourseStructure: writeStructure(t),
		FromStore:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Events)
	assert.Equal(t, map[string]int{"user_id": 1}, stats.Malformed)
	assert.Equal(t, 1, stats.Written[models.CollectionSessions])

	var clickstream *storeQuery
	for i := range store.queries {
		if store.queries[i].collection == models.CollectionClickstream {
			clickstream = &store.queries[i]
		}
	}
	require.NotNil(t, clickstream)
	assert.Equal(t, map[string]interface{}{"course_id": fixtureCourseID}, clickstream.filter["context"])
}

func TestPipelineServiceFailsOnMissingLog(t *testing.T) {
	store := newDocumentStoreStub()
	svc := newPipelineForTest(store, nil)

	_, err := svc.Run(context.Background(), models.RunRequest{
		Name:            "AE1110x-1T2017",
		CourseStructure: writeStructure(t),
		Logs:            []string{filepath.Join(t.TempDir(), "absent.log.gz")},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrStorageWrite))
	assert.Empty(t, store.stored(models.CollectionSessions))
}

func TestDedupeKeepsFirstPerID(t *testing.T) {
	docs := []models.Document{
		models.GeneralSession{SessionID: "b", Duration: 1},
		models.GeneralSession{SessionID: "a", Duration: 2},
		models.GeneralSession{SessionID: "b", Duration: 3},
	}
	out := dedupe(docs)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].DocumentID())
	assert.Equal(t, 1.0, out[1].(models.GeneralSession).Duration)
}
