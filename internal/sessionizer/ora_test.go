package sessionizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

func foldOra(chunks ...[]eventlog.Event) ([]models.OraSession, OraState) {
	return foldAll[struct{}, models.OraSession](NewOra(DefaultConfig(), testResolver()), chunks...)
}

func TestOraCounters(t *testing.T) {
	slashed := event(testLearner, "/courses/"+testCourse+"/xblock/"+oraOne+"/handler/peer_assess", 210)

	out, _ := foldOra([]eventlog.Event{
		oraEvent(OraSaveSubmission, "ora1", 0),
		oraEvent(OraSaveSubmission, "ora1", 60),
		oraEvent(OraCreateSubmission, "ora1", 120),
		oraEvent(OraPeerAssess, "ora1", 200),
		slashed,
		event(testLearner, "play_video", 300),
	})

	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, oraOne, got.ElementID)
	assert.Equal(t, 2, got.TimesSave)
	assert.Equal(t, 1, got.TimesPeerAssess)
	assert.True(t, got.Submitted)
	assert.False(t, got.SelfAssessed)
	assert.Equal(t, at(300), got.EndTime)
	assert.Equal(t, models.SpanID("ora_session_"+oraOne+"_"+testLearner, at(0), at(300)), got.SessionID)
}

func TestOraTimeoutStartsNewSession(t *testing.T) {
	out, _ := foldOra([]eventlog.Event{
		oraEvent(OraSaveSubmission, "ora1", 0),
		oraEvent(OraSaveSubmission, "ora1", 10),
		oraEvent(OraSelfAssess, "ora1", 2000),
		oraEvent(OraSaveSubmission, "ora1", 2030),
	})

	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].TimesSave)
	assert.False(t, out[0].SelfAssessed)
	assert.True(t, out[1].SelfAssessed)
	assert.Equal(t, 1, out[1].TimesSave)
}

func TestOraUnresolvedElement(t *testing.T) {
	out, st := foldOra([]eventlog.Event{
		oraEvent(OraSaveSubmission, "missing", 0),
		oraEvent(OraSaveSubmission, "missing", 60),
	})

	assert.Empty(t, out)
	assert.Equal(t, 2, st.Unresolved)
}

func TestOraChunkInvariance(t *testing.T) {
	events := []eventlog.Event{
		oraEvent(OraSaveSubmission, "ora1", 0),
		oraEvent(OraSaveSubmission, "ora1", 30),
		event(testLearner, "play_video", 50),
		oraEvent(OraCreateSubmission, "ora1", 100),
		oraEvent(OraPeerAssess, "ora1", 400),
		oraEvent(OraSelfAssess, "ora1", 4000),
		oraEvent(OraSelfAssess, "ora1", 4010),
	}

	whole, _ := foldOra(events)
	require.Len(t, whole, 3)
	for _, size := range []int{1, 2, 3} {
		parts, _ := foldOra(chunked(events, size)...)
		assert.Equal(t, whole, parts, "chunk size %d", size)
	}
}

func TestOraTimeoutIsExclusive(t *testing.T) {
	within, _ := foldOra([]eventlog.Event{
		oraEvent(OraSaveSubmission, "ora1", 0),
		oraEvent(OraSaveSubmission, "ora1", 10),
		oraEvent(OraSaveSubmission, "ora1", 1810),
		oraEvent(OraSaveSubmission, "ora1", 1820),
	})
	require.Len(t, within, 1)
	assert.Equal(t, 4, within[0].TimesSave)
	assert.Equal(t, at(1820), within[0].EndTime)

	beyond, _ := foldOra([]eventlog.Event{
		oraEvent(OraSaveSubmission, "ora1", 0),
		oraEvent(OraSaveSubmission, "ora1", 10),
		oraEvent(OraSaveSubmission, "ora1", 1811),
		oraEvent(OraSaveSubmission, "ora1", 1821),
	})
	require.Len(t, beyond, 2)
	assert.Equal(t, at(10), beyond[0].EndTime)
	assert.Equal(t, at(1811), beyond[1].StartTime)
}
