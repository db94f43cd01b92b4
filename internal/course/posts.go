package course

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"academy/internal/domain"
	"academy/internal/rowstore"

	"github.com/google/uuid"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// cleanBody trims a post or comment body and enforces the length bounds.
func cleanBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("course: body is empty: %w", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > MaxBodyRunes {
		return "", fmt.Errorf("course: body exceeds %d characters: %w", MaxBodyRunes, domain.ErrInvalidInput)
	}
	return body, nil
}

// Row keys sort ascending, so posts use an inverted timestamp to list
// newest first while comments keep chronological order.
func postRowKey(at time.Time, id string) string {
	return fmt.Sprintf("%019d_%s", math.MaxInt64-at.UnixNano(), id)
}

func commentRowKey(at time.Time, id string) string {
	return fmt.Sprintf("%019d_%s", at.UnixNano(), id)
}

// CreatePost starts a discussion thread on a course.
func (s *Service) CreatePost(ctx context.Context, courseID, userID, authorName, body string) (domain.Post, error) {
	if _, err := s.Course(courseID); err != nil {
		return domain.Post{}, err
	}
	body, err := cleanBody(body)
	if err != nil {
		return domain.Post{}, err
	}
	post := domain.Post{
		ID:         uuid.NewString(),
		CourseID:   courseID,
		AuthorID:   userID,
		AuthorName: strings.TrimSpace(authorName),
		Body:       body,
		Comments:   []domain.Comment{},
		CreatedAt:  s.now().UTC(),
	}
	rowKey := postRowKey(post.CreatedAt, post.ID)
	if _, err := s.store.Upsert(ctx, tablePosts, rowstore.Entity{
		PartitionKey: courseID,
		RowKey:       rowKey,
		Properties: map[string]any{
			"id":          post.ID,
			"author_id":   post.AuthorID,
			"author_name": post.AuthorName,
			"body":        post.Body,
			"created_at":  post.CreatedAt.Format(time.RFC3339Nano),
		},
	}); err != nil {
		return domain.Post{}, fmt.Errorf("course: save post: %w", err)
	}
	if _, err := s.store.Upsert(ctx, tablePostRefs, rowstore.Entity{
		PartitionKey: post.ID,
		RowKey:       refRowKey,
		Properties:   map[string]any{"course_id": courseID, "row_key": rowKey},
	}); err != nil {
		return domain.Post{}, fmt.Errorf("course: save post ref: %w", err)
	}
	return post, nil
}

// ListPosts returns a course's threads newest first with their comments.
func (s *Service) ListPosts(ctx context.Context, courseID string) ([]domain.Post, error) {
	if _, err := s.Course(courseID); err != nil {
		return nil, err
	}
	rows, err := s.store.Query(ctx, tablePosts, courseID)
	if err != nil {
		return nil, fmt.Errorf("course: list posts: %w", err)
	}
	posts := make([]domain.Post, 0, len(rows))
	for _, e := range rows {
		post := postFromEntity(courseID, e)
		comments, err := s.listComments(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		post.Comments = comments
		posts = append(posts, post)
	}
	return posts, nil
}

// CreateComment replies to an existing post.
func (s *Service) CreateComment(ctx context.Context, postID, userID, authorName, body string) (domain.Comment, error) {
	if _, err := s.store.Get(ctx, tablePostRefs, postID, refRowKey); err != nil {
		return domain.Comment{}, err
	}
	body, err := cleanBody(body)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:         uuid.NewString(),
		PostID:     postID,
		AuthorID:   userID,
		AuthorName: strings.TrimSpace(authorName),
		Body:       body,
		CreatedAt:  s.now().UTC(),
	}
	if _, err := s.store.Upsert(ctx, tableComments, rowstore.Entity{
		PartitionKey: postID,
		RowKey:       commentRowKey(c.CreatedAt, c.ID),
		Properties: map[string]any{
			"id":          c.ID,
			"author_id":   c.AuthorID,
			"author_name": c.AuthorName,
			"body":        c.Body,
			"created_at":  c.CreatedAt.Format(time.RFC3339Nano),
		},
	}); err != nil {
		return domain.Comment{}, fmt.Errorf("course: save comment: %w", err)
	}
	return c, nil
}

// DeletePost removes a thread and its comments. Only the author may delete.
func (s *Service) DeletePost(ctx context.Context, postID, userID string) error {
	ref, err := s.store.Get(ctx, tablePostRefs, postID, refRowKey)
	if err != nil {
		return err
	}
	courseID, rowKey := ref.String("course_id"), ref.String("row_key")
	e, err := s.store.Get(ctx, tablePosts, courseID, rowKey)
	if err != nil {
		return err
	}
	if e.String("author_id") != userID {
		return fmt.Errorf("course: delete post %s: %w", postID, domain.ErrUnauthorized)
	}

	comments, err := s.store.Query(ctx, tableComments, postID)
	if err != nil {
		return fmt.Errorf("course: list comments: %w", err)
	}
	for _, c := range comments {
		if err := s.store.Delete(ctx, tableComments, postID, c.RowKey); err != nil && !isNotFound(err) {
			return fmt.Errorf("course: delete comment: %w", err)
		}
	}
	if err := s.store.Delete(ctx, tablePosts, courseID, rowKey); err != nil && !isNotFound(err) {
		return fmt.Errorf("course: delete post: %w", err)
	}
	if err := s.store.Delete(ctx, tablePostRefs, postID, refRowKey); err != nil && !isNotFound(err) {
		return fmt.Errorf("course: delete post ref: %w", err)
	}
	s.logger.Info().Str("post_id", postID).Str("user_id", userID).Msg("post deleted")
	return nil
}

func (s *Service) listComments(ctx context.Context, postID string) ([]domain.Comment, error) {
	rows, err := s.store.Query(ctx, tableComments, postID)
	if err != nil {
		return nil, fmt.Errorf("course: list comments: %w", err)
	}
	out := make([]domain.Comment, 0, len(rows))
	for _, e := range rows {
		out = append(out, domain.Comment{
			ID:         e.String("id"),
			PostID:     postID,
			AuthorID:   e.String("author_id"),
			AuthorName: e.String("author_name"),
			Body:       e.String("body"),
			CreatedAt:  e.Time("created_at"),
		})
	}
	return out, nil
}

func postFromEntity(courseID string, e rowstore.Entity) domain.Post {
	return domain.Post{
		ID:         e.String("id"),
		CourseID:   courseID,
		AuthorID:   e.String("author_id"),
		AuthorName: e.String("author_name"),
		Body:       e.String("body"),
		CreatedAt:  e.Time("created_at"),
	}
}
