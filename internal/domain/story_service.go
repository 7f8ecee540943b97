package domain

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoryFeed groups the active stories of the accounts a viewer follows.
type StoryFeed struct {
	Users        []StoryGroup `json:"users"`
	TotalUsers   int          `json:"totalUsers"`
	TotalStories int          `json:"totalStories"`
}

type StoryGroup struct {
	UserID        uuid.UUID    `json:"userId"`
	Handle        string       `json:"handle"`
	DisplayName   string       `json:"displayName"`
	ProfilePicURL string       `json:"profilePicURL"`
	Stories       []StoryEntry `json:"stories"`
}

type StoryEntry struct {
	StoryID   uuid.UUID `json:"storyId"`
	Content   string    `json:"content"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StoryService appends stories, builds the viewer feed and runs the sweep.
type StoryService struct {
	repo     AccountRepository
	policy   StoryPolicy
	recorder Recorder
	logger   *zap.Logger
}

func NewStoryService(repo AccountRepository, policy StoryPolicy, recorder Recorder, logger *zap.Logger) *StoryService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoryService{
		repo:     repo,
		policy:   policy,
		recorder: recorder,
		logger:   logger.Named("stories"),
	}
}

// PublishStory appends a story item stamped with the current time.
func (s *StoryService) PublishStory(ctx context.Context, owner uuid.UUID, contentURL, text string) (*StoryItem, error) {
	if contentURL == "" {
		return nil, &ValidationError{Field: "story", Message: "content url is required"}
	}

	item := StoryItem{
		ID:        uuid.New(),
		Story:     contentURL,
		Text:      text,
		CreatedAt: s.policy.now(),
	}
	if _, err := s.repo.PushStory(ctx, owner, item); err != nil {
		return nil, err
	}
	return &item, nil
}

// FeedFor builds the story feed of everything viewer follows.
func (s *StoryService) FeedFor(ctx context.Context, viewer uuid.UUID) (*StoryFeed, error) {
	account, err := s.repo.GetAccountByID(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return s.ListActiveStoriesFor(ctx, account.FollowingIDs())
}

// ListActiveStoriesFor groups the non-expired stories of the given accounts.
// Groups are ordered by their newest item and items newest first. Accounts
// without active stories are left out.
func (s *StoryService) ListActiveStoriesFor(ctx context.Context, following []uuid.UUID) (*StoryFeed, error) {
	feed := &StoryFeed{Users: []StoryGroup{}}
	if len(following) == 0 {
		return feed, nil
	}

	accounts, err := s.repo.GetAccountsByIDs(ctx, following)
	if err != nil {
		return nil, err
	}

	for _, a := range accounts {
		active := s.policy.Active(a.Story)
		if len(active) == 0 {
			continue
		}

		entries := make([]StoryEntry, 0, len(active))
		for _, item := range active {
			entries = append(entries, StoryEntry{
				StoryID:   item.ID,
				Content:   item.Story,
				Text:      item.Text,
				CreatedAt: item.CreatedAt,
			})
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		})

		feed.Users = append(feed.Users, StoryGroup{
			UserID:        a.ID,
			Handle:        a.Handle,
			DisplayName:   a.DisplayName,
			ProfilePicURL: a.ProfilePicURL,
			Stories:       entries,
		})
		feed.TotalStories += len(entries)
	}

	sort.SliceStable(feed.Users, func(i, j int) bool {
		a, b := feed.Users[i].Stories[0].CreatedAt, feed.Users[j].Stories[0].CreatedAt
		if a.Equal(b) {
			return feed.Users[i].UserID.String() < feed.Users[j].UserID.String()
		}
		return a.After(b)
	})
	feed.TotalUsers = len(feed.Users)
	return feed, nil
}

// Sweep physically removes every expired story item. Running it again with
// no new expirations modifies nothing.
func (s *StoryService) Sweep(ctx context.Context) (SweepResult, error) {
	cutoff := s.policy.Cutoff()
	result, err := s.repo.PullExpiredStories(ctx, cutoff)
	s.recorder.StoriesSwept(result.Removed, err)
	if err != nil {
		s.logger.Error("story sweep failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return result, err
	}

	s.logger.Info("story sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int64("matched", result.Matched),
		zap.Int64("modified", result.Modified),
		zap.Int64("removed", result.Removed),
	)
	return result, nil
}
