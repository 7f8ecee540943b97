package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryService_FeedAcrossExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stories := f.stories()
	a, b := f.account(t, "alice"), f.account(t, "bob")

	require.NoError(t, f.graph().Follow(ctx, a.ID, b.ID))
	item, err := stories.PublishStory(ctx, b.ID, "https://cdn/story/1.png", "hello")
	require.NoError(t, err)

	f.clock.Advance(23 * time.Hour)
	feed, err := stories.FeedFor(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, feed.Users, 1)
	assert.Equal(t, b.ID, feed.Users[0].UserID)
	assert.Equal(t, item.ID, feed.Users[0].Stories[0].StoryID)
	assert.Equal(t, "hello", feed.Users[0].Stories[0].Text)
	assert.Equal(t, 1, feed.TotalStories)

	f.clock.Advance(2 * time.Hour)
	feed, err = stories.FeedFor(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, feed.Users)
	assert.Zero(t, feed.TotalUsers)

	before := len(f.reload(t, b.ID).Story)
	result, err := stories.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Removed)
	assert.Equal(t, before-1, len(f.reload(t, b.ID).Story))
	assert.Equal(t, int64(1), f.recorder.sweptRemoved)
}

func TestStoryService_ExactlyTTLIsExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stories := f.stories()
	b := f.account(t, "bob")

	_, err := stories.PublishStory(ctx, b.ID, "u", "")
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour - time.Nanosecond)
	feed, err := stories.ListActiveStoriesFor(ctx, []uuid.UUID{b.ID})
	require.NoError(t, err)
	assert.Len(t, feed.Users, 1)

	f.clock.Advance(time.Nanosecond)
	feed, err = stories.ListActiveStoriesFor(ctx, []uuid.UUID{b.ID})
	require.NoError(t, err)
	assert.Empty(t, feed.Users)
}

func TestStoryService_SweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stories := f.stories()
	a, b := f.account(t, "a"), f.account(t, "b")

	for _, id := range []uuid.UUID{a.ID, a.ID, b.ID} {
		_, err := stories.PublishStory(ctx, id, "u", "")
		require.NoError(t, err)
	}
	f.clock.Advance(25 * time.Hour)

	first, err := stories.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Modified)
	assert.Equal(t, int64(3), first.Removed)

	second, err := stories.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Modified)
	assert.Zero(t, second.Removed)
}

func TestStoryService_WriteDropsExpiredBeforeSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stories := f.stories()
	b := f.account(t, "bob")

	_, err := stories.PublishStory(ctx, b.ID, "old", "")
	require.NoError(t, err)
	f.clock.Advance(25 * time.Hour)

	_, err = stories.PublishStory(ctx, b.ID, "new", "")
	require.NoError(t, err)

	stored := f.reload(t, b.ID)
	require.Len(t, stored.Story, 1)
	assert.Equal(t, "new", stored.Story[0].Story)

	result, err := stories.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Removed)
}

func TestStoryService_FeedOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stories := f.stories()
	a, b, c := f.account(t, "a"), f.account(t, "b"), f.account(t, "c")
	quiet := f.account(t, "quiet")

	_, err := stories.PublishStory(ctx, b.ID, "b1", "")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = stories.PublishStory(ctx, c.ID, "c1", "")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = stories.PublishStory(ctx, b.ID, "b2", "")
	require.NoError(t, err)

	feed, err := stories.ListActiveStoriesFor(ctx, []uuid.UUID{c.ID, quiet.ID, b.ID, a.ID})
	require.NoError(t, err)

	require.Len(t, feed.Users, 2)
	assert.Equal(t, b.ID, feed.Users[0].UserID)
	assert.Equal(t, c.ID, feed.Users[1].UserID)
	require.Len(t, feed.Users[0].Stories, 2)
	assert.Equal(t, "b2", feed.Users[0].Stories[0].Content)
	assert.Equal(t, "b1", feed.Users[0].Stories[1].Content)
	assert.Equal(t, 2, feed.TotalUsers)
	assert.Equal(t, 3, feed.TotalStories)
}

func TestStoryService_PublishValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stories := f.stories()

	_, err := stories.PublishStory(ctx, uuid.New(), "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = stories.PublishStory(ctx, uuid.New(), "u", "")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStoryPolicy(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p := domain.NewStoryPolicy(0, func() time.Time { return now })

	assert.Equal(t, domain.DefaultStoryTTL, p.TTL)
	assert.Equal(t, now.Add(-24*time.Hour), p.Cutoff())
	assert.True(t, p.Expired(domain.StoryItem{CreatedAt: now.Add(-24 * time.Hour)}))
	assert.False(t, p.Expired(domain.StoryItem{CreatedAt: now.Add(-23 * time.Hour)}))

	items := []domain.StoryItem{
		{Story: "keep-1", CreatedAt: now.Add(-time.Minute)},
		{Story: "drop", CreatedAt: now.Add(-30 * time.Hour)},
		{Story: "keep-2", CreatedAt: now},
	}
	active := p.Active(items)
	require.Len(t, active, 2)
	assert.Equal(t, "keep-1", active[0].Story)
	assert.Equal(t, "keep-2", active[1].Story)
	assert.Len(t, items, 3)
}
