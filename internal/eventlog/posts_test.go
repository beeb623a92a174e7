package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

func TestDecodePost(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Post
	}{
		{
			name: "thread with oid",
			line: `{"_id":{"$oid":"5a1"},"_type":"CommentThread","thread_type":"question","author_id":"42","title":"Lift?","body":"How?","created_at":{"$date":"2017-01-20T10:00:00.000Z"}}`,
			want: Post{ID: "5a1", AuthorID: "42", Type: "CommentThread", ThreadType: "question", Title: "Lift?", Body: "How?", CreatedAt: time.Date(2017, 1, 20, 10, 0, 0, 0, time.UTC)},
		},
		{
			name: "reply with epoch date",
			line: `{"_id":{"$oid":"5a3"},"_type":"Comment","author_id":7,"body":"Agreed","created_at":{"$date":1484906400000},"parent_id":{"$oid":"5a2"},"comment_thread_id":{"$oid":"5a1"}}`,
			want: Post{ID: "5a3", AuthorID: "7", Type: "Comment", Body: "Agreed", CreatedAt: time.Date(2017, 1, 20, 10, 0, 0, 0, time.UTC), ParentID: "5a2", ThreadID: "5a1"},
		},
		{
			name: "plain string fields",
			line: `{"_id":"5a2","_type":"Comment","author_id":"9","body":"b","created_at":"2017-01-20 10:00:00","comment_thread_id":"5a1"}`,
			want: Post{ID: "5a2", AuthorID: "9", Type: "Comment", Body: "b", CreatedAt: time.Date(2017, 1, 20, 10, 0, 0, 0, time.UTC), ThreadID: "5a1"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodePost([]byte(tc.line))
			require.NoError(t, err)
			assert.True(t, tc.want.CreatedAt.Equal(got.CreatedAt))
			got.CreatedAt = tc.want.CreatedAt
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodePostMalformed(t *testing.T) {
	cases := map[string]string{
		ReasonJSON:   `{"_id":`,
		ReasonPostID: `{"author_id":"1","created_at":"2017-01-20T10:00:00Z"}`,
		ReasonUserID: `{"_id":{"$oid":"x"},"created_at":"2017-01-20T10:00:00Z"}`,
		ReasonTime:   `{"_id":{"$oid":"x"},"author_id":"1","created_at":{"$date":"soon"}}`,
	}
	for reason, line := range cases {
		_, err := DecodePost([]byte(line))
		require.Error(t, err, reason)
		assert.Equal(t, reason, Reason(err))
		assert.True(t, errors.Is(err, appErrors.ErrMalformedEvent))
	}
}

func TestReadPostsPlainAndGzip(t *testing.T) {
	lines := []string{
		`{"_id":{"$oid":"5a1"},"_type":"CommentThread","thread_type":"discussion","author_id":"42","body":"hi","created_at":"2017-01-20T10:00:00Z"}`,
		`{"_id":`,
		``,
		`{"_id":{"$oid":"5a2"},"_type":"Comment","author_id":"43","body":"yo","created_at":"2017-01-20T11:00:00Z","comment_thread_id":{"$oid":"5a1"}}`,
	}

	plain := filepath.Join(t.TempDir(), "DelftX-AE1110x-1T2017-prod.mongo")
	require.NoError(t, os.WriteFile(plain, []byte(strings.Join(lines, "\n")), 0o600))

	for _, path := range []string{plain, writeGzip(t, lines...)} {
		posts, stats, err := ReadPosts(path, Options{})
		require.NoError(t, err, path)
		require.Len(t, posts, 2)
		assert.Equal(t, "5a1", posts[0].ID)
		assert.Equal(t, "5a1", posts[1].ThreadID)
		assert.Equal(t, 2, stats.Decoded)
		assert.Equal(t, map[string]int{ReasonJSON: 1}, stats.Malformed)
	}
}

func TestReadPostsMissingFile(t *testing.T) {
	_, _, err := ReadPosts(filepath.Join(t.TempDir(), "absent.mongo"), Options{})
	assert.Error(t, err)
}
