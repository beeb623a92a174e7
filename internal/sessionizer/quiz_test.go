package sessionizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

func foldQuiz(chunks ...[]eventlog.Event) ([]models.QuizSession, QuizState) {
	return foldAll[quizCarry, models.QuizSession](NewQuiz(DefaultConfig(), testResolver()), chunks...)
}

func TestQuizGroupsByParent(t *testing.T) {
	out, _ := foldQuiz([]eventlog.Event{
		problemEvent("problem_check", problemA, 0),
		problemEvent("problem_show", problemA, 100),
		problemEvent("problem_check", problemA, 200),
	})

	require.Len(t, out, 1)
	assert.Equal(t, vertA, out[0].ElementID)
	assert.Equal(t, at(0), out[0].StartTime)
	assert.Equal(t, at(200), out[0].EndTime)
	assert.Equal(t, models.SpanID("quiz_session_"+vertA+"_"+testLearner, at(0), at(200)), out[0].SessionID)
}

func TestQuizMergesSubIntervals(t *testing.T) {
	out, _ := foldQuiz([]eventlog.Event{
		problemEvent("problem_check", problemA, 0),
		problemEvent("problem_check", problemA, 100),
		problemEvent("problem_check", problemB, 150),
		problemEvent("problem_check", problemB, 300),
		problemEvent("problem_check", problemA, 400),
		problemEvent("problem_check", problemA, 500),
		problemEvent("problem_check", problemA, 5000),
		problemEvent("problem_check", problemA, 5010),
	})

	require.Len(t, out, 3)
	byElement := map[string][]models.QuizSession{}
	for _, s := range out {
		byElement[s.ElementID] = append(byElement[s.ElementID], s)
	}
	require.Len(t, byElement[vertA], 2)
	assert.Equal(t, at(0), byElement[vertA][0].StartTime)
	assert.Equal(t, at(500), byElement[vertA][0].EndTime)
	assert.Equal(t, at(5000), byElement[vertA][1].StartTime)
	require.Len(t, byElement[vertB], 1)
	assert.Equal(t, float64(150), byElement[vertB][0].Duration)
}

func TestQuizNonRelevantEventClosesWindow(t *testing.T) {
	out, _ := foldQuiz([]eventlog.Event{
		problemEvent("problem_check", problemA, 0),
		problemEvent("problem_check", problemA, 100),
		event(testLearner, "play_video", 200),
		event(testLearner, "pause_video", 250),
	})

	require.Len(t, out, 1)
	assert.Equal(t, at(200), out[0].EndTime)
}

func TestQuizCountsUnresolvedQuestions(t *testing.T) {
	out, st := foldQuiz([]eventlog.Event{
		problemEvent("problem_check", "block-v1:Other+type@problem+block@zz", 0),
		problemEvent("problem_check", problemA, 10),
		problemEvent("problem_check", problemA, 30),
		problemEvent("problem_check", "block-v1:Other+type@problem+block@zz", 40),
	})

	assert.Equal(t, 2, st.Unresolved)
	require.Len(t, out, 1)
	assert.Equal(t, at(10), out[0].StartTime)
	assert.Equal(t, at(30), out[0].EndTime)
}

func TestQuizQuestionFromEventType(t *testing.T) {
	ev := event(testLearner, "/courses/"+testCourse+"/xblock/"+problemA+"/handler/xmodule_handler/problem_get", 0)
	next := event(testLearner, "/courses/"+testCourse+"/xblock/"+problemA+"/handler/xmodule_handler/problem_check", 60)

	out, _ := foldQuiz([]eventlog.Event{ev, next})

	require.Len(t, out, 1)
	assert.Equal(t, vertA, out[0].ElementID)
}

func TestQuizChunkInvariance(t *testing.T) {
	events := []eventlog.Event{
		problemEvent("problem_check", problemA, 0),
		problemEvent("problem_check", problemA, 40),
		problemEvent("problem_check", problemB, 90),
		event(testLearner, "play_video", 120),
		problemEvent("problem_check", problemB, 200),
		problemEvent("problem_check", "block-v1:Other+type@problem+block@zz", 210),
		problemEvent("problem_check", problemA, 2500),
		problemEvent("problem_check", problemA, 2520),
	}

	whole, st := foldQuiz(events)
	require.NotEmpty(t, whole)
	for _, size := range []int{1, 2, 3} {
		parts, pst := foldQuiz(chunked(events, size)...)
		assert.Equal(t, whole, parts, "chunk size %d", size)
		assert.Equal(t, st.Unresolved, pst.Unresolved, "chunk size %d", size)
	}
}

func TestQuizTimeoutIsExclusive(t *testing.T) {
	within, _ := foldQuiz([]eventlog.Event{
		problemEvent("problem_check", problemA, 0),
		problemEvent("problem_check", problemA, 10),
		problemEvent("problem_check", problemA, 1810),
		problemEvent("problem_check", problemA, 1820),
	})
	require.Len(t, within, 1)
	assert.Equal(t, at(0), within[0].StartTime)
	assert.Equal(t, at(1820), within[0].EndTime)

	beyond, _ := foldQuiz([]eventlog.Event{
		problemEvent("problem_check", problemA, 0),
		problemEvent("problem_check", problemA, 10),
		problemEvent("problem_check", problemA, 1811),
		problemEvent("problem_check", problemA, 1821),
	})
	require.Len(t, beyond, 2)
	assert.Equal(t, at(10), beyond[0].EndTime)
	assert.Equal(t, at(1811), beyond[1].StartTime)
}
