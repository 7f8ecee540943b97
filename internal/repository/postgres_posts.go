package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pixora/backend/internal/domain"
)

const postColumns = `id, user_id, caption, content_url, created_at, likes, comments`

// CreatePost creates a new post
func (r *PostgresRepository) CreatePost(ctx context.Context, params domain.CreatePostParams) (*domain.Post, error) {
	query := `
		INSERT INTO posts (id, user_id, caption, content_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + postColumns

	row := r.db.QueryRow(ctx, query,
		params.ID,
		params.UserID,
		params.Caption,
		params.ContentURL,
		params.CreatedAt,
	)
	post, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// GetPost retrieves a post by ID
func (r *PostgresRepository) GetPost(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	return scanPost(r.db.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
}

// ListPosts returns a page of posts, newest first
func (r *PostgresRepository) ListPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return collectPosts(rows)
}

// ListPostsByAuthor returns every post by authorID, newest first
func (r *PostgresRepository) ListPostsByAuthor(ctx context.Context, authorID uuid.UUID) ([]*domain.Post, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE user_id = $1 ORDER BY created_at DESC, id`,
		authorID)
	if err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	return collectPosts(rows)
}

// AddLike appends userID's like unless one is already present
func (r *PostgresRepository) AddLike(ctx context.Context, postID, userID uuid.UUID) (*domain.Post, error) {
	elem, err := element("like", userID)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE posts SET likes = likes || $2::jsonb
		WHERE id = $1 AND NOT likes @> $2::jsonb
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRow(ctx, query, postID, elem))
	if errors.Is(err, domain.ErrPostNotFound) {
		return nil, r.postGuardError(ctx, postID, domain.ErrAlreadyLiked)
	}
	return post, err
}

// RemoveLike removes userID's like
func (r *PostgresRepository) RemoveLike(ctx context.Context, postID, userID uuid.UUID) (*domain.Post, error) {
	guard, err := element("like", userID)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE posts SET likes = ` + pulled("likes", "like", 2) + `
		WHERE id = $1 AND likes @> $3::jsonb
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRow(ctx, query, postID, userID.String(), guard))
	if errors.Is(err, domain.ErrPostNotFound) {
		return nil, r.postGuardError(ctx, postID, domain.ErrNotLiked)
	}
	return post, err
}

// AddComment appends a comment
func (r *PostgresRepository) AddComment(ctx context.Context, postID uuid.UUID, comment domain.Comment) (*domain.Post, error) {
	elem, err := elementOf(comment)
	if err != nil {
		return nil, err
	}

	query := `UPDATE posts SET comments = comments || $2::jsonb WHERE id = $1 RETURNING ` + postColumns
	return scanPost(r.db.QueryRow(ctx, query, postID, elem))
}

// RemoveComment deletes commentID if authorID wrote it
func (r *PostgresRepository) RemoveComment(ctx context.Context, postID, commentID, authorID uuid.UUID) (*domain.Post, error) {
	guard, err := element("id", commentID)
	if err != nil {
		return nil, err
	}
	owned, err := elementOf(map[string]any{"id": commentID, "userId": authorID})
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE posts SET comments = ` + pulled("comments", "id", 2) + `
		WHERE id = $1 AND comments @> $3::jsonb
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRow(ctx, query, postID, commentID.String(), owned))
	if !errors.Is(err, domain.ErrPostNotFound) {
		return post, err
	}

	// Nothing matched: find out which part of the guard failed.
	var exists, hasComment bool
	err = r.db.QueryRow(ctx,
		`SELECT TRUE, comments @> $2::jsonb FROM posts WHERE id = $1`,
		postID, guard).Scan(&exists, &hasComment)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, domain.ErrPostNotFound
	case err != nil:
		return nil, fmt.Errorf("check comment: %w", err)
	case !hasComment:
		return nil, domain.ErrCommentNotFound
	default:
		return nil, domain.ErrNotCommentAuthor
	}
}

// postGuardError reports guardErr for an existing post and ErrPostNotFound otherwise.
func (r *PostgresRepository) postGuardError(ctx context.Context, postID uuid.UUID, guardErr error) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists); err != nil {
		return fmt.Errorf("check post: %w", err)
	}
	if !exists {
		return domain.ErrPostNotFound
	}
	return guardErr
}

func scanPost(row pgx.Row) (*domain.Post, error) {
	var p domain.Post
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Caption,
		&p.ContentURL,
		&p.CreatedAt,
		&p.Likes,
		&p.Comments,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collectPosts(rows pgx.Rows) ([]*domain.Post, error) {
	defer rows.Close()

	posts := make([]*domain.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}
