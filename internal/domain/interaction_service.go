package domain

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// InteractionService publishes posts and applies likes and comments.
// Events are emitted only after the write has been persisted.
type InteractionService struct {
	posts    PostRepository
	accounts AccountRepository
	events   EventEmitter
	now      Clock
}

func NewInteractionService(posts PostRepository, accounts AccountRepository, events EventEmitter, now Clock) *InteractionService {
	if events == nil {
		events = NopEmitter{}
	}
	if now == nil {
		now = SystemClock
	}
	return &InteractionService{
		posts:    posts,
		accounts: accounts,
		events:   events,
		now:      now,
	}
}

// PublishPost creates a post and broadcasts post-created to every observer.
func (s *InteractionService) PublishPost(ctx context.Context, actor uuid.UUID, contentURL, caption string) (*Post, error) {
	if contentURL == "" {
		return nil, &ValidationError{Field: "post", Message: "content url is required"}
	}
	if _, err := s.accounts.GetAccountByID(ctx, actor); err != nil {
		return nil, err
	}

	post, err := s.posts.CreatePost(ctx, CreatePostParams{
		ID:         uuid.New(),
		UserID:     actor,
		Caption:    strings.TrimSpace(caption),
		ContentURL: contentURL,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.events.Emit(ctx, EventPostCreated, PostCreatedPayload{Post: post})
	return post, nil
}

func (s *InteractionService) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	return s.posts.GetPost(ctx, id)
}

// ListPosts returns posts newest first
func (s *InteractionService) ListPosts(ctx context.Context, limit, offset int) ([]*Post, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.posts.ListPosts(ctx, limit, offset)
}

func (s *InteractionService) ListPostsByAuthor(ctx context.Context, author uuid.UUID) ([]*Post, error) {
	if _, err := s.accounts.GetAccountByID(ctx, author); err != nil {
		return nil, err
	}
	return s.posts.ListPostsByAuthor(ctx, author)
}

func (s *InteractionService) ListMyPosts(ctx context.Context, actor uuid.UUID) ([]*Post, error) {
	return s.posts.ListPostsByAuthor(ctx, actor)
}

// Like adds actor's like. A second like by the same account fails with
// ErrAlreadyLiked.
func (s *InteractionService) Like(ctx context.Context, actor, postID uuid.UUID) (*Post, error) {
	post, err := s.posts.AddLike(ctx, postID, actor)
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, EventPostLiked, likePayload(post))
	return post, nil
}

// Unlike removes actor's like, failing with ErrNotLiked if there is none.
func (s *InteractionService) Unlike(ctx context.Context, actor, postID uuid.UUID) (*Post, error) {
	post, err := s.posts.RemoveLike(ctx, postID, actor)
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, EventPostUnliked, likePayload(post))
	return post, nil
}

func likePayload(post *Post) LikeEventPayload {
	return LikeEventPayload{
		PostID:     post.ID,
		LikesCount: len(post.Likes),
		Likes:      nonNil(post.Likes),
	}
}

func (s *InteractionService) IsLiked(ctx context.Context, actor, postID uuid.UUID) (bool, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return false, err
	}
	return post.IsLikedBy(actor), nil
}

// AddComment appends a comment authored by actor.
func (s *InteractionService) AddComment(ctx context.Context, actor, postID uuid.UUID, text string) (*Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Field: "comment", Message: "comment text is required"}
	}

	return s.posts.AddComment(ctx, postID, Comment{
		ID:        uuid.New(),
		UserID:    actor,
		Comment:   text,
		CreatedAt: s.now(),
	})
}

// RemoveComment deletes a comment. Only its author may do so.
func (s *InteractionService) RemoveComment(ctx context.Context, actor, postID, commentID uuid.UUID) (*Post, error) {
	return s.posts.RemoveComment(ctx, postID, commentID, actor)
}
