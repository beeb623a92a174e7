package export

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetFromJSONRendersCSV(t *testing.T) {
	docs := []json.RawMessage{
		json.RawMessage(`{"session_id":"s1","duration":65.5,"submitted":true,"start_time":"2016-10-03T08:00:00Z"}`),
		json.RawMessage(`{"session_id":"s2","duration":10,"related_element_id":null,"extra":{"b":1, "a":2}}`),
	}

	data, err := DatasetFromJSON(docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"duration", "extra", "related_element_id", "session_id", "start_time", "submitted"}, data.Headers)

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "duration,extra,related_element_id,session_id,start_time,submitted", lines[0])
	assert.Equal(t, "65.5,,,s1,2016-10-03T08:00:00Z,true", lines[1])
	assert.Equal(t, `10,"{""b"":1,""a"":2}",,s2,,`, lines[2])
}

func TestDatasetFromJSONRejectsNonObjects(t *testing.T) {
	_, err := DatasetFromJSON([]json.RawMessage{json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}
