package sessionizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

func foldForum(chunks ...[]eventlog.Event) []models.ForumSession {
	out, _ := foldAll[forumCarry, models.ForumSession](NewForum(DefaultConfig(), testResolver()), chunks...)
	return out
}

func forumEvent(eventType string, seconds int, path string) eventlog.Event {
	ev := event(testLearner, eventType, seconds)
	ev.Path = path
	return ev
}

func TestForumSearchSession(t *testing.T) {
	out := foldForum([]eventlog.Event{
		forumEvent("edx.forum.searched", 0, ""),
		forumEvent("edx.forum.thread.viewed", 60, ""),
	})

	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].TimesSearch)
	assert.Equal(t, float64(60), out[0].Duration)
	assert.Equal(t, models.SpanID("forum_session_"+testLearner, at(0), at(60)), out[0].SessionID)
}

func TestForumClosedByOtherActivity(t *testing.T) {
	out := foldForum([]eventlog.Event{
		forumEvent("/courses/"+testCourse+"/discussion/forum/", 0, ""),
		forumEvent("edx.forum.searched", 20, ""),
		forumEvent("play_video", 40, "/courses/"+testCourse+"/courseware/week1/"),
		forumEvent("edx.forum.searched", 50, ""),
	})

	require.Len(t, out, 1)
	assert.Equal(t, at(40), out[0].EndTime)
	assert.Equal(t, 1, out[0].TimesSearch)
	assert.Equal(t, "block-v1:TUDelftX+EX101x+3T2016+type@chapter+block@week1", out[0].RelatedElementID)
}

func TestForumFallsBackToPreviousElement(t *testing.T) {
	out := foldForum([]eventlog.Event{
		forumEvent("edx.forum.thread.created", 0, "/courses/"+testCourse+"/courseware/week1/"),
		forumEvent("edx.forum.thread.viewed", 30, ""),
		forumEvent("edx.forum.thread.viewed", 3000, ""),
		forumEvent("edx.forum.thread.viewed", 3030, ""),
	})

	require.Len(t, out, 2)
	for _, s := range out {
		assert.Equal(t, "block-v1:TUDelftX+EX101x+3T2016+type@chapter+block@week1", s.RelatedElementID)
	}
}

func TestForumChunkInvariance(t *testing.T) {
	events := []eventlog.Event{
		forumEvent("edx.forum.thread.created", 0, "/courses/"+testCourse+"/courseware/week1/"),
		forumEvent("edx.forum.searched", 30, ""),
		forumEvent("play_video", 45, ""),
		forumEvent("edx.forum.thread.viewed", 100, "/courses/"+testCourse+"/courseware/week2/"),
		forumEvent("edx.forum.thread.viewed", 120, ""),
		forumEvent("edx.forum.thread.viewed", 3000, ""),
		forumEvent("edx.forum.searched", 3010, ""),
	}

	whole := foldForum(events)
	require.Len(t, whole, 3)
	assert.Equal(t, "block-v1:TUDelftX+EX101x+3T2016+type@chapter+block@week2", whole[2].RelatedElementID)
	for _, size := range []int{1, 2, 3} {
		assert.Equal(t, whole, foldForum(chunked(events, size)...), "chunk size %d", size)
	}
}

func TestForumTimeoutIsExclusive(t *testing.T) {
	within := foldForum([]eventlog.Event{
		forumEvent("edx.forum.searched", 0, ""),
		forumEvent("edx.forum.thread.viewed", 10, ""),
		forumEvent("edx.forum.thread.viewed", 1810, ""),
		forumEvent("edx.forum.thread.viewed", 1820, ""),
	})
	require.Len(t, within, 1)
	assert.Equal(t, at(1820), within[0].EndTime)

	beyond := foldForum([]eventlog.Event{
		forumEvent("edx.forum.searched", 0, ""),
		forumEvent("edx.forum.thread.viewed", 10, ""),
		forumEvent("edx.forum.thread.viewed", 1811, ""),
		forumEvent("edx.forum.thread.viewed", 1821, ""),
	})
	require.Len(t, beyond, 2)
	assert.Equal(t, at(10), beyond[0].EndTime)
	assert.Equal(t, 1, beyond[0].TimesSearch)
	assert.Equal(t, at(1811), beyond[1].StartTime)
	assert.Equal(t, 0, beyond[1].TimesSearch)
}
