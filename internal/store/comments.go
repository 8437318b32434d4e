package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	Author    *Author   `json:"author,omitempty"`
}

const commentSelect = `
SELECT c.id, c.content, c.post_id, c.author_id, c.created_at,
       u.id, u.name, u.email, u.avatar_url, u.role, u.created_at
FROM comments c JOIN users u ON u.id = c.author_id`

func scanComment(row rowScanner) (Comment, error) {
	var (
		c      Comment
		a      Author
		avatar sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Content, &c.PostID, &c.AuthorID, &c.CreatedAt,
		&a.ID, &a.Name, &a.Email, &avatar, &a.Role, &a.CreatedAt); err != nil {
		return Comment{}, err
	}
	if avatar.Valid {
		a.AvatarURL = &avatar.String
	}
	c.Author = &a
	return c, nil
}

// ListComments returns a post's comments newest first.
func (s *Store) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	rows, err := s.DB.QueryContext(ctx, commentSelect+` WHERE c.post_id=$1 ORDER BY c.created_at DESC`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	out := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) commentsFor(ctx context.Context, postIDs []string) (map[string][]Comment, error) {
	rows, err := s.DB.QueryContext(ctx, commentSelect+` WHERE c.post_id = ANY($1) ORDER BY c.created_at DESC`, pq.Array(postIDs))
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]Comment, len(postIDs))
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out[c.PostID] = append(out[c.PostID], c)
	}
	return out, rows.Err()
}

// CreateComment inserts a comment and returns it with its author.
// A missing post or author yields ErrNotFound.
func (s *Store) CreateComment(ctx context.Context, postID, authorID, content string) (Comment, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO comments (content, post_id, author_id) VALUES ($1,$2,$3) RETURNING id`,
		content, postID, authorID).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Comment{}, ErrNotFound
		}
		return Comment{}, fmt.Errorf("create comment: %w", err)
	}
	c, err := scanComment(s.DB.QueryRowContext(ctx, commentSelect+` WHERE c.id=$1`, id))
	if err != nil {
		return Comment{}, fmt.Errorf("load comment: %w", err)
	}
	return c, nil
}
