package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Post is a published image with its likes and comments embedded.
type Post struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"userId"`
	Caption    string    `json:"caption"`
	ContentURL string    `json:"post"`
	CreatedAt  time.Time `json:"createdAt"`
	Likes      []Like    `json:"likes"`
	Comments   []Comment `json:"comments"`
}

// Like is unique per (post, account).
type Like struct {
	UserID uuid.UUID `json:"like"`
}

type Comment struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *Post) IsLikedBy(userID uuid.UUID) bool {
	for _, l := range p.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

func (p *Post) FindComment(id uuid.UUID) (Comment, bool) {
	for _, c := range p.Comments {
		if c.ID == id {
			return c, true
		}
	}
	return Comment{}, false
}

type CreatePostParams struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Caption    string
	ContentURL string
	CreatedAt  time.Time
}

// PostRepository stores post records. Like and comment mutations are guarded
// single-record updates: the guard and the change happen in one write.
type PostRepository interface {
	CreatePost(ctx context.Context, params CreatePostParams) (*Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	ListPosts(ctx context.Context, limit, offset int) ([]*Post, error)
	ListPostsByAuthor(ctx context.Context, authorID uuid.UUID) ([]*Post, error)

	// AddLike fails with ErrPostNotFound or ErrAlreadyLiked.
	AddLike(ctx context.Context, postID, userID uuid.UUID) (*Post, error)
	// RemoveLike fails with ErrPostNotFound or ErrNotLiked.
	RemoveLike(ctx context.Context, postID, userID uuid.UUID) (*Post, error)
	AddComment(ctx context.Context, postID uuid.UUID, comment Comment) (*Post, error)
	// RemoveComment deletes the comment only if authorID wrote it. It fails
	// with ErrPostNotFound, ErrCommentNotFound or ErrNotCommentAuthor.
	RemoveComment(ctx context.Context, postID, commentID, authorID uuid.UUID) (*Post, error)
}
