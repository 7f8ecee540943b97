// Package memory is an in-process implementation of the account and post
// stores. Each method holds the store lock for its whole read-check-write,
// which gives it the same single-record atomicity as the database backends.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	policy   domain.StoryPolicy
	accounts map[uuid.UUID]*domain.Account
	posts    map[uuid.UUID]*domain.Post
}

// New creates an empty store. policy decides which stories are pruned on write.
func New(policy domain.StoryPolicy) *Store {
	return &Store{
		policy:   policy,
		accounts: make(map[uuid.UUID]*domain.Account),
		posts:    make(map[uuid.UUID]*domain.Post),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

func (s *Store) CreateAccount(_ context.Context, params domain.CreateAccountParams) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := domain.NormalizeHandle(params.Handle)
	for _, a := range s.accounts {
		if a.Handle == handle {
			return nil, domain.ErrHandleTaken
		}
		if a.Subject == params.Subject {
			return nil, domain.ErrSubjectTaken
		}
	}

	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	a := &domain.Account{
		ID:            id,
		Subject:       params.Subject,
		DisplayName:   params.DisplayName,
		Handle:        handle,
		ProfilePicURL: params.ProfilePicURL,
		Saved:         []domain.SavedPost{},
		Followers:     []domain.FollowRef{},
		Following:     []domain.FollowRef{},
		Story:         []domain.StoryItem{},
		CreatedAt:     createdAt,
	}
	if params.Token != "" {
		a.Tokens = []domain.TokenRef{{Token: params.Token}}
	}
	s.accounts[id] = a
	return cloneAccount(a), nil
}

func (s *Store) GetAccountByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (s *Store) GetAccountBySubject(_ context.Context, subject string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.Subject == subject {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *Store) GetAccountByToken(_ context.Context, fingerprint string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.HasToken(fingerprint) {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *Store) GetAccountsByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := s.accounts[id]; ok {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

func (s *Store) ListAccounts(_ context.Context, limit int) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedAccounts(func(*domain.Account) bool { return true }, limit), nil
}

func (s *Store) SearchAccounts(_ context.Context, query string, limit int) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	return s.sortedAccounts(func(a *domain.Account) bool {
		return strings.Contains(a.Handle, q) || strings.Contains(strings.ToLower(a.DisplayName), q)
	}, limit), nil
}

func (s *Store) sortedAccounts(match func(*domain.Account) bool, limit int) []*domain.Account {
	out := make([]*domain.Account, 0)
	for _, a := range s.accounts {
		if match(a) {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) ScanAccounts(ctx context.Context, fn func(*domain.Account) error) error {
	s.mu.RLock()
	snapshot := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		snapshot = append(snapshot, cloneAccount(a))
	}
	s.mu.RUnlock()

	for _, a := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// mutate runs fn on the stored account under the write lock, after dropping
// its expired stories.
func (s *Store) mutate(id uuid.UUID, fn func(a *domain.Account) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return false, domain.ErrAccountNotFound
	}
	s.policy.Filter(a)
	return fn(a), nil
}

func (s *Store) SetProfilePicture(_ context.Context, id uuid.UUID, url string) error {
	_, err := s.mutate(id, func(a *domain.Account) bool {
		a.ProfilePicURL = url
		return true
	})
	return err
}

func (s *Store) PushToken(_ context.Context, id uuid.UUID, fingerprint string) error {
	_, err := s.mutate(id, func(a *domain.Account) bool {
		a.Tokens = append(a.Tokens, domain.TokenRef{Token: fingerprint})
		return true
	})
	return err
}

func (s *Store) PullToken(_ context.Context, id uuid.UUID, fingerprint string) error {
	_, err := s.mutate(id, func(a *domain.Account) bool {
		kept := a.Tokens[:0]
		for _, t := range a.Tokens {
			if t.Token != fingerprint {
				kept = append(kept, t)
			}
		}
		a.Tokens = kept
		return true
	})
	return err
}

func (s *Store) AddFollowing(_ context.Context, id, target uuid.UUID) (bool, error) {
	return s.mutate(id, func(a *domain.Account) bool {
		if a.IsFollowing(target) {
			return false
		}
		a.Following = append(a.Following, domain.FollowRef{UserID: target})
		return true
	})
}

func (s *Store) RemoveFollowing(_ context.Context, id, target uuid.UUID) (bool, error) {
	return s.mutate(id, func(a *domain.Account) bool {
		var changed bool
		a.Following, changed = removeFollow(a.Following, target)
		return changed
	})
}

func (s *Store) AddFollower(_ context.Context, id, follower uuid.UUID) (bool, error) {
	return s.mutate(id, func(a *domain.Account) bool {
		if a.HasFollower(follower) {
			return false
		}
		a.Followers = append(a.Followers, domain.FollowRef{UserID: follower})
		return true
	})
}

func (s *Store) RemoveFollower(_ context.Context, id, follower uuid.UUID) (bool, error) {
	return s.mutate(id, func(a *domain.Account) bool {
		var changed bool
		a.Followers, changed = removeFollow(a.Followers, follower)
		return changed
	})
}

func removeFollow(refs []domain.FollowRef, id uuid.UUID) ([]domain.FollowRef, bool) {
	out := make([]domain.FollowRef, 0, len(refs))
	for _, r := range refs {
		if r.UserID != id {
			out = append(out, r)
		}
	}
	return out, len(out) != len(refs)
}

func (s *Store) AddSaved(_ context.Context, id, postID uuid.UUID) (bool, error) {
	return s.mutate(id, func(a *domain.Account) bool {
		if a.HasSaved(postID) {
			return false
		}
		a.Saved = append(a.Saved, domain.SavedPost{PostID: postID})
		return true
	})
}

func (s *Store) RemoveSaved(_ context.Context, id, postID uuid.UUID) (bool, error) {
	return s.mutate(id, func(a *domain.Account) bool {
		out := make([]domain.SavedPost, 0, len(a.Saved))
		for _, sp := range a.Saved {
			if sp.PostID != postID {
				out = append(out, sp)
			}
		}
		changed := len(out) != len(a.Saved)
		a.Saved = out
		return changed
	})
}

func (s *Store) PushStory(_ context.Context, id uuid.UUID, item domain.StoryItem) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	s.policy.Filter(a)
	a.Story = append(a.Story, item)
	return cloneAccount(a), nil
}

func (s *Store) PullExpiredStories(_ context.Context, cutoff time.Time) (domain.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result domain.SweepResult
	for _, a := range s.accounts {
		kept := make([]domain.StoryItem, 0, len(a.Story))
		for _, item := range a.Story {
			if item.CreatedAt.After(cutoff) {
				kept = append(kept, item)
			}
		}
		if removed := len(a.Story) - len(kept); removed > 0 {
			result.Matched++
			result.Modified++
			result.Removed += int64(removed)
			a.Story = kept
		}
	}
	return result, nil
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	c.Tokens = append([]domain.TokenRef(nil), a.Tokens...)
	c.Saved = append([]domain.SavedPost{}, a.Saved...)
	c.Followers = append([]domain.FollowRef{}, a.Followers...)
	c.Following = append([]domain.FollowRef{}, a.Following...)
	c.Story = append([]domain.StoryItem{}, a.Story...)
	return &c
}
