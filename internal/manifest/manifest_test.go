package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mooc-session-miner/internal/models"
	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

const sample = `
runs:
  - name: EX101x-3T2016
    course_structure: EX101x/course_structure.json
    log_dir: EX101x/logs
    posts: EX101x/TUDelftX-EX101x-3T2016-prod.mongo
  - name: EX101x-1T2017
    course_structure: /data/EX101x-1T2017/course_structure.json
    logs:
      - /data/EX101x-1T2017/b.log.gz
      - /data/EX101x-1T2017/a.log.gz
`

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	m, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, m.Runs, 2)

	assert.Equal(t, filepath.Join(dir, "EX101x/course_structure.json"), m.Runs[0].CourseStructure)
	assert.Equal(t, filepath.Join(dir, "EX101x/logs"), m.Runs[0].LogDir)
	assert.Equal(t, filepath.Join(dir, "EX101x/TUDelftX-EX101x-3T2016-prod.mongo"), m.Runs[0].Posts)
	assert.Empty(t, m.Runs[1].Posts)
	assert.Equal(t, []string{"/data/EX101x-1T2017/b.log.gz", "/data/EX101x-1T2017/a.log.gz"}, m.Runs[1].Logs)
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	tests := map[string]string{
		"empty":         "runs: []\n",
		"missing name":  "runs:\n  - course_structure: c.json\n    log_dir: logs\n",
		"no source":     "runs:\n  - name: a\n    course_structure: c.json\n",
		"two sources":   "runs:\n  - name: a\n    course_structure: c.json\n    log_dir: logs\n    from_store: true\n",
		"duplicate run": "runs:\n  - name: a\n    course_structure: c.json\n    from_store: true\n  - name: a\n    course_structure: c.json\n    from_store: true\n",
		"unknown field": "runs:\n  - name: a\n    course_structure: c.json\n    from_store: true\n    color: red\n",
		"empty log":     "runs:\n  - name: a\n    course_structure: c.json\n    logs: ['']\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrValidation)
		})
	}
}

func TestLogFilesSortsDirectoryListing(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2016-10-05.log.gz", "2016-10-03.log.gz", "notes.txt", "2016-10-04.log.gz"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	files, err := LogFiles(models.RunRequest{LogDir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "2016-10-03.log.gz"),
		filepath.Join(dir, "2016-10-04.log.gz"),
		filepath.Join(dir, "2016-10-05.log.gz"),
	}, files)

	explicit, err := LogFiles(models.RunRequest{Logs: []string{"b", "a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, explicit)
}
