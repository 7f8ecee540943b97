package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultProfilePicURL is assigned to accounts that never uploaded an avatar.
const DefaultProfilePicURL = "https://superst.ac/_next/image?url=%2FIMG_8692.PNG&w=128&q=75"

// Account is the directory record for a registered user. Followers and
// Following are two views of the same relation and are kept mirrored by
// GraphService.
type Account struct {
	ID            uuid.UUID   `json:"id"`
	Subject       string      `json:"-"`
	DisplayName   string      `json:"displayName"`
	Handle        string      `json:"handle"`
	ProfilePicURL string      `json:"profilePicURL"`
	Tokens        []TokenRef  `json:"-"`
	Saved         []SavedPost `json:"saved"`
	Followers     []FollowRef `json:"followers"`
	Following     []FollowRef `json:"following"`
	Story         []StoryItem `json:"story"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// TokenRef holds the fingerprint of a bearer token registered for a session.
type TokenRef struct {
	Token string `json:"token"`
}

type SavedPost struct {
	PostID uuid.UUID `json:"postId"`
}

type FollowRef struct {
	UserID uuid.UUID `json:"userId"`
}

// StoryItem is ephemeral content attached to its parent account.
type StoryItem struct {
	ID        uuid.UUID `json:"id"`
	Story     string    `json:"story"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsFollowing reports whether target is in the account's following list.
func (a *Account) IsFollowing(target uuid.UUID) bool {
	for _, f := range a.Following {
		if f.UserID == target {
			return true
		}
	}
	return false
}

// HasFollower reports whether follower is in the account's followers list.
func (a *Account) HasFollower(follower uuid.UUID) bool {
	for _, f := range a.Followers {
		if f.UserID == follower {
			return true
		}
	}
	return false
}

func (a *Account) HasSaved(postID uuid.UUID) bool {
	for _, s := range a.Saved {
		if s.PostID == postID {
			return true
		}
	}
	return false
}

func (a *Account) HasToken(fingerprint string) bool {
	for _, t := range a.Tokens {
		if t.Token == fingerprint {
			return true
		}
	}
	return false
}

// FollowingIDs returns the followed account ids in list order.
func (a *Account) FollowingIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(a.Following))
	for _, f := range a.Following {
		ids = append(ids, f.UserID)
	}
	return ids
}

// AccountResponse is the public representation of an account
type AccountResponse struct {
	ID             uuid.UUID   `json:"id"`
	DisplayName    string      `json:"displayName"`
	Handle         string      `json:"handle"`
	ProfilePicURL  string      `json:"profilePicURL"`
	Saved          []SavedPost `json:"saved"`
	Followers      []FollowRef `json:"followers"`
	Following      []FollowRef `json:"following"`
	FollowersCount int         `json:"followersCount"`
	FollowingCount int         `json:"followingCount"`
	Story          []StoryItem `json:"story"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// ToResponse converts an Account to an AccountResponse
func (a *Account) ToResponse() *AccountResponse {
	return &AccountResponse{
		ID:             a.ID,
		DisplayName:    a.DisplayName,
		Handle:         a.Handle,
		ProfilePicURL:  a.ProfilePicURL,
		Saved:          nonNil(a.Saved),
		Followers:      nonNil(a.Followers),
		Following:      nonNil(a.Following),
		FollowersCount: len(a.Followers),
		FollowingCount: len(a.Following),
		Story:          nonNil(a.Story),
		CreatedAt:      a.CreatedAt,
	}
}

// AccountSummary is the compact form used in search results and follow lists.
type AccountSummary struct {
	ID             uuid.UUID `json:"id"`
	DisplayName    string    `json:"displayName"`
	Handle         string    `json:"handle"`
	ProfilePicURL  string    `json:"profilePicURL"`
	FollowersCount int       `json:"followersCount"`
}

func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:             a.ID,
		DisplayName:    a.DisplayName,
		Handle:         a.Handle,
		ProfilePicURL:  a.ProfilePicURL,
		FollowersCount: len(a.Followers),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// NormalizeHandle lowercases and trims a handle so uniqueness is case-insensitive.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// CreateAccountParams holds parameters for account creation
type CreateAccountParams struct {
	ID            uuid.UUID
	Subject       string
	DisplayName   string
	Handle        string
	ProfilePicURL string
	Token         string
	CreatedAt     time.Time
}

// SweepResult reports one pass of expired story removal.
type SweepResult struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"modified"`
	Removed  int64 `json:"removed"`
}

// AccountRepository is the Account Directory contract. Every list mutation is
// a single-record atomic push or pull; implementations never replace a whole
// list read earlier by the caller. Each mutation also drops the record's
// expired story items in the same write.
type AccountRepository interface {
	CreateAccount(ctx context.Context, params CreateAccountParams) (*Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountBySubject(ctx context.Context, subject string) (*Account, error)
	GetAccountByToken(ctx context.Context, fingerprint string) (*Account, error)
	GetAccountsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Account, error)
	ListAccounts(ctx context.Context, limit int) ([]*Account, error)
	SearchAccounts(ctx context.Context, query string, limit int) ([]*Account, error)
	ScanAccounts(ctx context.Context, fn func(*Account) error) error

	SetProfilePicture(ctx context.Context, id uuid.UUID, url string) error
	PushToken(ctx context.Context, id uuid.UUID, fingerprint string) error
	PullToken(ctx context.Context, id uuid.UUID, fingerprint string) error

	// The follow and saved mutations report whether the record changed.
	// A missing record yields ErrAccountNotFound.
	AddFollowing(ctx context.Context, id, target uuid.UUID) (bool, error)
	RemoveFollowing(ctx context.Context, id, target uuid.UUID) (bool, error)
	AddFollower(ctx context.Context, id, follower uuid.UUID) (bool, error)
	RemoveFollower(ctx context.Context, id, follower uuid.UUID) (bool, error)
	AddSaved(ctx context.Context, id, postID uuid.UUID) (bool, error)
	RemoveSaved(ctx context.Context, id, postID uuid.UUID) (bool, error)

	PushStory(ctx context.Context, id uuid.UUID, item StoryItem) (*Account, error)
	PullExpiredStories(ctx context.Context, cutoff time.Time) (SweepResult, error)

	Ping(ctx context.Context) error
}
