package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Author is the public projection of a user embedded in posts and comments.
type Author struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatarUrl"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Post struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Content     string     `json:"content"`
	Summary     string     `json:"summary"`
	Tags        []string   `json:"tags"`
	CoverImage  string     `json:"coverImage"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	AuthorID    string     `json:"authorId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Author     *Author   `json:"author,omitempty"`
	AuthorName string    `json:"authorName,omitempty"`
	Comments   []Comment `json:"comments,omitempty"`
}

// NewPost carries the columns a caller may set on insert.
type NewPost struct {
	Title       string
	Slug        string
	Content     string
	Summary     string
	Tags        []string
	CoverImage  string
	Status      string
	ScheduledAt *time.Time
	AuthorID    string
}

// PostPatch is a partial update; nil fields are left untouched.
type PostPatch struct {
	Title       *string
	Content     *string
	Summary     *string
	Tags        []string
	CoverImage  *string
	Status      *string
	ScheduledAt *time.Time
	// ClearSchedule sets scheduled_at to NULL and wins over ScheduledAt.
	ClearSchedule bool
}

const postSelect = `
SELECT p.id, p.title, p.slug, p.content, COALESCE(p.summary,''), p.tags, COALESCE(p.cover_image,''),
       p.status, p.scheduled_at, p.author_id, p.created_at, p.updated_at,
       u.id, u.name, u.email, u.avatar_url, u.role, u.created_at
FROM posts p JOIN users u ON u.id = p.author_id`

func scanPost(row rowScanner) (Post, error) {
	var (
		p         Post
		a         Author
		tags      pq.StringArray
		scheduled sql.NullTime
		avatar    sql.NullString
	)
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Summary, &tags, &p.CoverImage,
		&p.Status, &scheduled, &p.AuthorID, &p.CreatedAt, &p.UpdatedAt,
		&a.ID, &a.Name, &a.Email, &avatar, &a.Role, &a.CreatedAt)
	if err != nil {
		return Post{}, err
	}
	p.Tags = []string(tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if scheduled.Valid {
		t := scheduled.Time
		p.ScheduledAt = &t
	}
	if avatar.Valid {
		a.AvatarURL = &avatar.String
	}
	p.Author = &a
	p.AuthorName = a.Name
	return p, nil
}

// CreatePost inserts a post and returns it with its author.
func (s *Store) CreatePost(ctx context.Context, in NewPost) (Post, error) {
	if in.Status == "" {
		in.Status = StatusDraft
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO posts (title, slug, content, summary, tags, cover_image, status, scheduled_at, author_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		in.Title, in.Slug, in.Content, in.Summary, pq.Array(in.Tags), nullString(in.CoverImage),
		in.Status, in.ScheduledAt, in.AuthorID).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Post{}, ErrNotFound
		}
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	recordCount(ctx, &postsCounter, 1)
	return s.getPost(ctx, id)
}

func (s *Store) getPost(ctx context.Context, id string) (Post, error) {
	p, err := scanPost(s.DB.QueryRowContext(ctx, postSelect+` WHERE p.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// PostAuthor returns the author id of a post.
func (s *Store) PostAuthor(ctx context.Context, id string) (string, error) {
	var author string
	err := s.DB.QueryRowContext(ctx, `SELECT author_id FROM posts WHERE id=$1`, id).Scan(&author)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("post author: %w", err)
	}
	return author, nil
}

// GetPost returns a post with its comments, newest first.
func (s *Store) GetPost(ctx context.Context, id string) (Post, error) {
	p, err := s.getPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	comments, err := s.ListComments(ctx, id)
	if err != nil {
		return Post{}, err
	}
	p.Comments = comments
	return p, nil
}

// ListPosts returns all posts newest first, each carrying its comments.
func (s *Store) ListPosts(ctx context.Context) ([]Post, error) {
	rows, err := s.DB.QueryContext(ctx, postSelect+` ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	posts := []Post{}
	ids := []string{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Comments = []Comment{}
		posts = append(posts, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return posts, nil
	}
	comments, err := s.commentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if cs, ok := comments[posts[i].ID]; ok {
			posts[i].Comments = cs
		}
	}
	return posts, nil
}

// UpdatePost applies the non-nil fields of patch and returns the updated post.
func (s *Store) UpdatePost(ctx context.Context, id string, patch PostPatch) (Post, error) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Content != nil {
		add("content", *patch.Content)
	}
	if patch.Summary != nil {
		add("summary", *patch.Summary)
	}
	if patch.Tags != nil {
		add("tags", pq.Array(patch.Tags))
	}
	if patch.CoverImage != nil {
		add("cover_image", nullString(*patch.CoverImage))
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.ClearSchedule {
		sets = append(sets, "scheduled_at=NULL")
	} else if patch.ScheduledAt != nil {
		add("scheduled_at", *patch.ScheduledAt)
	}
	if len(sets) == 0 {
		return s.getPost(ctx, id)
	}
	sets = append(sets, "updated_at=NOW()")
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE posts SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Post{}, ErrNotFound
	}
	return s.getPost(ctx, id)
}

// DeletePost removes a post and its comments in one transaction.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id=$1`, id); err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// PublishDuePosts flips SCHEDULED posts whose time has come to PUBLISHED.
func (s *Store) PublishDuePosts(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
UPDATE posts SET status='PUBLISHED', updated_at=NOW()
WHERE status='SCHEDULED' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("publish due posts: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	recordCount(ctx, &publishedCounter, int64(len(ids)))
	return ids, nil
}

// SummaryFix identifies a post whose summary needs regenerating. Summary is
// filled in by FixSummaries.
type SummaryFix struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"-"`
	Summary string `json:"summary"`
}

// ListPostsNeedingSummary returns posts with an empty or placeholder summary.
func (s *Store) ListPostsNeedingSummary(ctx context.Context) ([]SummaryFix, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, content FROM posts
WHERE summary IS NULL OR summary = '' OR summary LIKE '%No summary%'
ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list posts needing summary: %w", err)
	}
	defer rows.Close()
	out := []SummaryFix{}
	for rows.Next() {
		var f SummaryFix
		if err := rows.Scan(&f.ID, &f.Title, &f.Content); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePostSummary(ctx context.Context, id, summary string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE posts SET summary=$1, updated_at=NOW() WHERE id=$2`, summary, id)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FixSummaries regenerates placeholder summaries with derive and returns the
// posts it updated. On failure the posts fixed so far are still returned.
func (s *Store) FixSummaries(ctx context.Context, derive func(string) string) ([]SummaryFix, error) {
	posts, err := s.ListPostsNeedingSummary(ctx)
	if err != nil {
		return nil, err
	}
	fixed := make([]SummaryFix, 0, len(posts))
	for _, p := range posts {
		p.Summary = derive(p.Content)
		if err := s.UpdatePostSummary(ctx, p.ID, p.Summary); err != nil {
			return fixed, err
		}
		fixed = append(fixed, p)
	}
	return fixed, nil
}
