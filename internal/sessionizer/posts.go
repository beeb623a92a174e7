package sessionizer

import (
	"time"

	"github.com/noah-isme/mooc-session-miner/internal/eventlog"
	"github.com/noah-isme/mooc-session-miner/internal/models"
)

// Forum post types.
const (
	postTypeThread = "CommentThread"
	postTypeReply  = "Comment_Reply"
)

// ForumPosts turns the posts of a forum dump into forum interaction records.
// Threads are typed by their thread type and anything with a parent is a
// reply. Posts created at or after courseEnd are dropped; a zero courseEnd
// keeps every post.
func ForumPosts(courseID string, courseEnd time.Time, posts []eventlog.Post) []models.ForumPost {
	out := make([]models.ForumPost, 0, len(posts))
	for _, p := range posts {
		if !courseEnd.IsZero() && !p.CreatedAt.Before(courseEnd) {
			continue
		}
		postType := p.Type
		if postType == postTypeThread {
			postType += "_" + p.ThreadType
		}
		if p.ParentID != "" {
			postType = postTypeReply
		}
		out = append(out, models.ForumPost{
			PostID:          p.ID,
			CourseLearnerID: courseID + "_" + p.AuthorID,
			PostType:        postType,
			PostTitle:       p.Title,
			PostContent:     p.Body,
			PostTimestamp:   p.CreatedAt,
			PostParentID:    p.ParentID,
			PostThreadID:    p.ThreadID,
		})
	}
	return uniqueSorted(out)
}
