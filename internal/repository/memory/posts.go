package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/domain"
)

func (s *Store) CreatePost(_ context.Context, params domain.CreatePostParams) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	p := &domain.Post{
		ID:         id,
		UserID:     params.UserID,
		Caption:    params.Caption,
		ContentURL: params.ContentURL,
		CreatedAt:  createdAt,
		Likes:      []domain.Like{},
		Comments:   []domain.Comment{},
	}
	s.posts[id] = p
	return clonePost(p), nil
}

func (s *Store) GetPost(_ context.Context, id uuid.UUID) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, domain.ErrPostNotFound
	}
	return clonePost(p), nil
}

func (s *Store) ListPosts(_ context.Context, limit, offset int) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.sortedPosts(func(*domain.Post) bool { return true })
	if offset >= len(out) {
		return []*domain.Post{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListPostsByAuthor(_ context.Context, authorID uuid.UUID) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedPosts(func(p *domain.Post) bool { return p.UserID == authorID }), nil
}

func (s *Store) sortedPosts(match func(*domain.Post) bool) []*domain.Post {
	out := make([]*domain.Post, 0)
	for _, p := range s.posts {
		if match(p) {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) mutatePost(id uuid.UUID, fn func(p *domain.Post) error) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, domain.ErrPostNotFound
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	return clonePost(p), nil
}

func (s *Store) AddLike(_ context.Context, postID, userID uuid.UUID) (*domain.Post, error) {
	return s.mutatePost(postID, func(p *domain.Post) error {
		if p.IsLikedBy(userID) {
			return domain.ErrAlreadyLiked
		}
		p.Likes = append(p.Likes, domain.Like{UserID: userID})
		return nil
	})
}

func (s *Store) RemoveLike(_ context.Context, postID, userID uuid.UUID) (*domain.Post, error) {
	return s.mutatePost(postID, func(p *domain.Post) error {
		for i, l := range p.Likes {
			if l.UserID == userID {
				p.Likes = append(p.Likes[:i:i], p.Likes[i+1:]...)
				return nil
			}
		}
		return domain.ErrNotLiked
	})
}

func (s *Store) AddComment(_ context.Context, postID uuid.UUID, comment domain.Comment) (*domain.Post, error) {
	return s.mutatePost(postID, func(p *domain.Post) error {
		p.Comments = append(p.Comments, comment)
		return nil
	})
}

func (s *Store) RemoveComment(_ context.Context, postID, commentID, authorID uuid.UUID) (*domain.Post, error) {
	return s.mutatePost(postID, func(p *domain.Post) error {
		for i, c := range p.Comments {
			if c.ID != commentID {
				continue
			}
			if c.UserID != authorID {
				return domain.ErrNotCommentAuthor
			}
			p.Comments = append(p.Comments[:i:i], p.Comments[i+1:]...)
			return nil
		}
		return domain.ErrCommentNotFound
	})
}

func clonePost(p *domain.Post) *domain.Post {
	c := *p
	c.Likes = append([]domain.Like{}, p.Likes...)
	c.Comments = append([]domain.Comment{}, p.Comments...)
	return &c
}
