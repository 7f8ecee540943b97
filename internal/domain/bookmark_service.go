package domain

import (
	"context"

	"github.com/google/uuid"
)

// SaveResult is returned by Save. A repeated save is reported here rather
// than as an error so clients can render it as a normal outcome.
type SaveResult struct {
	AlreadySaved bool        `json:"alreadySaved"`
	Saved        []SavedPost `json:"saved"`
}

type BookmarkService struct {
	accounts AccountRepository
	posts    PostRepository
}

func NewBookmarkService(accounts AccountRepository, posts PostRepository) *BookmarkService {
	return &BookmarkService{
		accounts: accounts,
		posts:    posts,
	}
}

func (s *BookmarkService) Save(ctx context.Context, actor, postID uuid.UUID) (SaveResult, error) {
	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return SaveResult{}, err
	}

	account, err := s.accounts.GetAccountByID(ctx, actor)
	if err != nil {
		return SaveResult{}, err
	}
	if account.HasSaved(postID) {
		return SaveResult{AlreadySaved: true, Saved: nonNil(account.Saved)}, nil
	}

	changed, err := s.accounts.AddSaved(ctx, actor, postID)
	if err != nil {
		return SaveResult{}, err
	}

	saved, err := s.ListSaved(ctx, actor)
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{AlreadySaved: !changed, Saved: saved}, nil
}

// Unsave fails with ErrNotSaved if the post is not in the saved list.
func (s *BookmarkService) Unsave(ctx context.Context, actor, postID uuid.UUID) error {
	changed, err := s.accounts.RemoveSaved(ctx, actor, postID)
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotSaved
	}
	return nil
}

func (s *BookmarkService) IsSaved(ctx context.Context, actor, postID uuid.UUID) (bool, error) {
	account, err := s.accounts.GetAccountByID(ctx, actor)
	if err != nil {
		return false, err
	}
	return account.HasSaved(postID), nil
}

func (s *BookmarkService) ListSaved(ctx context.Context, actor uuid.UUID) ([]SavedPost, error) {
	account, err := s.accounts.GetAccountByID(ctx, actor)
	if err != nil {
		return nil, err
	}
	return nonNil(account.Saved), nil
}
