package sessionizer

import (
	"strings"
	"time"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
)

const (
	testCourse  = "course-v1:TUDelftX+EX101x+3T2016"
	testLearner = testCourse + "_42"
)

var epoch = time.Date(2016, 10, 3, 8, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func event(learner, eventType string, seconds int) eventlog.Event {
	return eventlog.Event{
		LearnerID: learner,
		CourseID:  testCourse,
		Type:      eventType,
		Time:      at(seconds),
	}
}

func videoEvent(eventType, videoID string, seconds int) eventlog.Event {
	ev := event(testLearner, eventType, seconds)
	ev.Payload = eventlog.Payload{VideoID: videoID, IsObject: true}
	return ev
}

func seekEvent(videoID string, seconds int, from, to float64) eventlog.Event {
	ev := videoEvent("seek_video", videoID, seconds)
	ev.Payload.OldTime, ev.Payload.NewTime, ev.Payload.HasPosition = from, to, true
	return ev
}

func problemEvent(eventType, problem string, seconds int) eventlog.Event {
	ev := event(testLearner, eventType, seconds)
	ev.Payload = eventlog.Payload{ProblemID: problem, IsObject: true}
	return ev
}

func oraEvent(verb, element string, seconds int) eventlog.Event {
	ev := event(testLearner, "openassessmentblock."+verb, seconds)
	ev.UsageKey = "block-v1:TUDelftX+EX101x+3T2016+type@openassessment+block@" + element
	return ev
}

// chunked splits events into pieces of the given size.
func chunked(events []eventlog.Event, size int) [][]eventlog.Event {
	var out [][]eventlog.Event
	for len(events) > size {
		out = append(out, events[:size])
		events = events[size:]
	}
	return append(out, events)
}

// resolverStub resolves full ids and the hash after the last '@'.
type resolverStub struct {
	courseID string
	parents  map[string]string
}

func (r resolverStub) CourseID() string { return r.courseID }

func (r resolverStub) ResolveElement(ref string) (string, bool) {
	if _, ok := r.parents[ref]; ok {
		return ref, true
	}
	for id := range r.parents {
		if strings.HasSuffix(id, "@"+ref) {
			return id, true
		}
	}
	return "", false
}

func (r resolverStub) Parent(id string) (string, bool) {
	p, ok := r.parents[id]
	return p, ok
}

const (
	problemA = "block-v1:TUDelftX+EX101x+3T2016+type@problem+block@a1"
	problemB = "block-v1:TUDelftX+EX101x+3T2016+type@problem+block@b1"
	vertA    = "block-v1:TUDelftX+EX101x+3T2016+type@vertical+block@va"
	vertB    = "block-v1:TUDelftX+EX101x+3T2016+type@vertical+block@vb"
	oraOne   = "block-v1:TUDelftX+EX101x+3T2016+type@openassessment+block@ora1"
)

func testResolver() resolverStub {
	return resolverStub{
		courseID: testCourse,
		parents: map[string]string{
			problemA: vertA,
			problemB: vertB,
			oraOne:   vertA,
		},
	}
}
