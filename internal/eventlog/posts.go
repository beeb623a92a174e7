package eventlog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mooc-session-miner/internal/coursemodel"
)

// ReasonPostID marks a forum record without a usable _id.
const ReasonPostID = "post_id"

// Post is one record of a forum dump: a thread, a comment or a reply.
type Post struct {
	ID         string
	AuthorID   string
	Type       string // CommentThread or Comment
	ThreadType string // discussion or question, threads only
	Title      string
	Body       string
	CreatedAt  time.Time
	ParentID   string
	ThreadID   string
}

type rawPost struct {
	ID              json.RawMessage `json:"_id"`
	AuthorID        json.RawMessage `json:"author_id"`
	Type            string          `json:"_type"`
	ThreadType      string          `json:"thread_type"`
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	CreatedAt       json.RawMessage `json:"created_at"`
	ParentID        json.RawMessage `json:"parent_id"`
	CommentThreadID json.RawMessage `json:"comment_thread_id"`
}

// DecodePost turns one line of a forum dump into a Post. Ids may be plain
// strings or {"$oid": ...} objects and created_at a string or {"$date": ...}.
func DecodePost(line []byte) (Post, error) {
	var rec rawPost
	if err := json.Unmarshal(line, &rec); err != nil {
		return Post{}, &MalformedError{Reason: ReasonJSON, Err: err}
	}
	id := objectID(rec.ID)
	if id == "" {
		return Post{}, &MalformedError{Reason: ReasonPostID}
	}
	author, ok := scalarString(rec.AuthorID)
	if !ok || author == "" {
		return Post{}, &MalformedError{Reason: ReasonUserID}
	}
	created, err := mongoTime(rec.CreatedAt)
	if err != nil {
		return Post{}, &MalformedError{Reason: ReasonTime, Err: err}
	}
	return Post{
		ID:         id,
		AuthorID:   author,
		Type:       rec.Type,
		ThreadType: rec.ThreadType,
		Title:      rec.Title,
		Body:       rec.Body,
		CreatedAt:  created,
		ParentID:   objectID(rec.ParentID),
		ThreadID:   objectID(rec.CommentThreadID),
	}, nil
}

func objectID(raw json.RawMessage) string {
	if s, ok := scalarString(raw); ok {
		return s
	}
	var wrapped struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return ""
	}
	return wrapped.OID
}

func mongoTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return time.Time{}, err
		}
		raw = bytes.TrimSpace(wrapped.Date)
	}
	if len(raw) > 0 && raw[0] != '"' {
		// epoch milliseconds
		ms, ok := scalarFloat(raw)
		if !ok {
			return time.Time{}, fmt.Errorf("unrecognised time %s", raw)
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	}
	s, _ := scalarString(raw)
	return coursemodel.ParseTime(s)
}

// ReadPosts loads a forum dump. Plain and gzip-compressed files are both
// accepted; malformed records are skipped and counted.
func ReadPosts(path string, opts Options) ([]Post, Stats, error) {
	stats := Stats{Malformed: make(map[string]int)}
	f, err := os.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("open posts %s: %w", path, err)
	}
	defer f.Close()

	src, err := maybeGzip(bufio.NewReader(f))
	if err != nil {
		return nil, stats, fmt.Errorf("read posts %s: %w", path, err)
	}
	if opts.MaxLineSize <= 0 {
		opts.MaxLineSize = DefaultMaxLineSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), opts.MaxLineSize)
	var posts []Post
	for scanner.Scan() {
		stats.Lines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		post, err := DecodePost(line)
		if err != nil {
			reason := Reason(err)
			stats.Malformed[reason]++
			logger.Debug("skipping malformed post",
				zap.String("file", path),
				zap.Int("line", stats.Lines),
				zap.String("reason", reason),
			)
			continue
		}
		stats.Decoded++
		posts = append(posts, post)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("scan posts %s: %w", path, err)
	}
	return posts, stats, nil
}

func maybeGzip(r *bufio.Reader) (io.Reader, error) {
	magic, err := r.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		return r, nil
	}
	return gzip.NewReader(r)
}
