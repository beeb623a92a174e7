package coursemodel

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

const (
	rootID       = "block-v1:DelftX+AE1110x+1T2017+type@course+block@course"
	chapterID    = "block-v1:DelftX+AE1110x+1T2017+type@chapter+block@ch1"
	sequentialID = "block-v1:DelftX+AE1110x+1T2017+type@sequential+block@seq1"
	verticalID   = "block-v1:DelftX+AE1110x+1T2017+type@vertical+block@vert1"
	problemID    = "block-v1:DelftX+AE1110x+1T2017+type@problem+block@p1"
	problem2ID   = "block-v1:DelftX+AE1110x+1T2017+type@problem+block@p2"
)

func str(s string) *string { return &s }

func fixtureBlocks() map[string]Block {
	weight := 2.5
	return map[string]Block{
		rootID: {
			Category: "course",
			Metadata: BlockMetadata{DisplayName: str("Aerospace"), Start: "2017-01-01T00:00:00Z", End: "2017-04-01T00:00:00Z"},
			Children: []string{chapterID},
		},
		chapterID: {
			Category: "chapter",
			Metadata: BlockMetadata{DisplayName: str("Week 3"), Start: "2017-01-15T00:00:00Z"},
			Children: []string{sequentialID},
		},
		sequentialID: {
			Category: "sequential",
			Metadata: BlockMetadata{DisplayName: str("Homework"), Due: "2017-02-01T00:00:00Z"},
			Children: []string{verticalID},
		},
		verticalID: {
			Category: "vertical",
			Children: []string{problemID, problem2ID},
		},
		problemID:  {Category: "problem", Metadata: BlockMetadata{Weight: &weight}},
		problem2ID: {Category: "problem"},
	}
}

func TestBuildResolvesInheritedStart(t *testing.T) {
	m, err := Build(fixtureBlocks())
	require.NoError(t, err)

	chapterStart := time.Date(2017, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{sequentialID, verticalID, problemID, problem2ID} {
		got, ok := m.ElementStart(id)
		require.True(t, ok, id)
		assert.True(t, chapterStart.Equal(got), id)
	}
	assert.Equal(t, len(fixtureBlocks()), m.Len())
}

func TestBuildInheritsFromChapterWhenRootHasNoStart(t *testing.T) {
	blocks := fixtureBlocks()
	root := blocks[rootID]
	root.Metadata.Start = ""
	blocks[rootID] = root

	m, err := Build(blocks)
	require.NoError(t, err)

	chapterStart := time.Date(2017, 1, 15, 0, 0, 0, 0, time.UTC)
	got, ok := m.ElementStart(sequentialID)
	require.True(t, ok)
	assert.True(t, chapterStart.Equal(got))
	got, ok = m.ElementStart(problemID)
	require.True(t, ok)
	assert.True(t, chapterStart.Equal(got))

	rootStart, ok := m.ElementStart(rootID)
	require.True(t, ok)
	assert.True(t, rootStart.IsZero())
	assert.True(t, m.Start().IsZero())
	assert.Equal(t, len(blocks), m.Len())
	for _, el := range m.CourseElements() {
		assert.Equal(t, 0, el.Week, el.ElementID)
	}
}

func TestBuildRootWithoutStartEndsInheritance(t *testing.T) {
	blocks := fixtureBlocks()
	root := blocks[rootID]
	root.Metadata.Start = ""
	blocks[rootID] = root
	chapter := blocks[chapterID]
	chapter.Metadata.Start = ""
	blocks[chapterID] = chapter

	m, err := Build(blocks)
	require.NoError(t, err)
	got, ok := m.ElementStart(verticalID)
	require.True(t, ok)
	assert.True(t, got.IsZero())
}

func TestBuildRecordsStructure(t *testing.T) {
	m, err := Build(fixtureBlocks())
	require.NoError(t, err)

	assert.Equal(t, "course-v1:DelftX+AE1110x+1T2017", m.CourseID())
	assert.Equal(t, "Aerospace", m.CourseName())

	parent, ok := m.Parent(problemID)
	require.True(t, ok)
	assert.Equal(t, verticalID, parent)

	order, _ := m.Order(problem2ID)
	assert.Equal(t, 2, order)

	w, _ := m.QuizWeight(problemID)
	assert.Equal(t, 2.5, w)
	w, _ = m.QuizWeight(problem2ID)
	assert.Equal(t, 1.0, w)

	name, ok := m.BlockDisplayName(sequentialID)
	require.True(t, ok)
	assert.Equal(t, "Homework", name)

	_, ok = m.ElementDue(verticalID)
	assert.False(t, ok, "due dates are not inherited")
}

func TestBuildFailsOnCycle(t *testing.T) {
	blocks := fixtureBlocks()
	a := "block-v1:X+Y+Z+type@vertical+block@a"
	b := "block-v1:X+Y+Z+type@vertical+block@b"
	blocks[a] = Block{Category: "vertical", Children: []string{b}}
	blocks[b] = Block{Category: "vertical", Children: []string{a}}

	_, err := Build(blocks)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMalformedCourseTree))
}

func TestBuildFailsOnDanglingChain(t *testing.T) {
	blocks := fixtureBlocks()
	blocks["block-v1:X+Y+Z+type@html+block@orphan"] = Block{Category: "html"}

	_, err := Build(blocks)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMalformedCourseTree))
}

func TestBuildFailsWithoutRoot(t *testing.T) {
	blocks := fixtureBlocks()
	delete(blocks, rootID)

	_, err := Build(blocks)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRoot)
	assert.True(t, errors.Is(err, appErrors.ErrMalformedCourseTree))
}

func TestNormalizeCourseID(t *testing.T) {
	assert.Equal(t, "course-v1:DelftX+AE1110x+1T2017", NormalizeCourseID(rootID))
	assert.Equal(t, "DelftX/AE1110x/1T2017", NormalizeCourseID("i4x://DelftX/AE1110x/course/1T2017"))
	assert.Equal(t, "plain", NormalizeCourseID("plain"))
}

func TestResolveElement(t *testing.T) {
	m, err := Build(fixtureBlocks())
	require.NoError(t, err)

	id, ok := m.ResolveElement(problemID)
	require.True(t, ok)
	assert.Equal(t, problemID, id)

	id, ok = m.ResolveElement("p2")
	require.True(t, ok)
	assert.Equal(t, problem2ID, id)

	id, ok = m.ResolveElement("block-v1:Other+type@problem+block@p1")
	require.True(t, ok)
	assert.Equal(t, problemID, id)

	_, ok = m.ResolveElement("missing")
	assert.False(t, ok)
	_, ok = m.ResolveElement("")
	assert.False(t, ok)
}

func TestQuizQuestionsAndCourseElements(t *testing.T) {
	m, err := Build(fixtureBlocks())
	require.NoError(t, err)

	questions := m.QuizQuestions()
	require.Len(t, questions, 2)
	assert.Equal(t, problemID, questions[0].QuestionID)
	assert.Equal(t, "Homework", questions[0].QuestionType)
	require.NotNil(t, questions[0].QuestionDue)
	assert.True(t, time.Date(2017, 2, 1, 0, 0, 0, 0, time.UTC).Equal(*questions[0].QuestionDue))

	elements := m.CourseElements()
	require.Len(t, elements, len(fixtureBlocks()))
	byID := map[string]int{}
	for _, el := range elements {
		byID[el.ElementID] = el.Week
		assert.Equal(t, m.CourseID(), el.CourseID)
	}
	assert.Equal(t, 1, byID[rootID])
	assert.Equal(t, 3, byID[chapterID])
}

func TestDocumentRoundTripKeepsLookups(t *testing.T) {
	m, err := Build(fixtureBlocks())
	require.NoError(t, err)

	payload, err := json.Marshal(m.Document("run-1"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(payload), `"name":"run-1"`))

	var doc Document
	require.NoError(t, json.Unmarshal(payload, &doc))
	restored := FromDocument(doc)

	assert.Equal(t, m.CourseID(), restored.CourseID())
	id, ok := restored.ResolveElement("p1")
	require.True(t, ok)
	assert.Equal(t, problemID, id)
	start, ok := restored.ElementStart(problemID)
	require.True(t, ok)
	orig, _ := m.ElementStart(problemID)
	assert.True(t, orig.Equal(start))
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse(strings.NewReader("{not json"))
	require.Error(t, err)
}
