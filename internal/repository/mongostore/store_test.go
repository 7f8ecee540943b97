package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var (
	_ domain.AccountRepository = (*Store)(nil)
	_ domain.PostRepository    = (*Store)(nil)
)

func TestAccountDocToDomain(t *testing.T) {
	id, other, post := uuid.New(), uuid.New(), uuid.New()
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	doc := accountDoc{
		ID:        id.String(),
		Subject:   "sub",
		Handle:    "alice",
		Tokens:    []tokenDoc{{Token: "fp"}},
		Saved:     []savedDoc{{PostID: post.String()}},
		Followers: []followDoc{{UserID: other.String()}},
		Story:     []storyDoc{{ID: other.String(), Story: "u", CreatedAt: created}},
		CreatedAt: created,
	}

	a := doc.toDomain()
	assert.Equal(t, id, a.ID)
	assert.True(t, a.HasToken("fp"))
	assert.True(t, a.HasSaved(post))
	assert.True(t, a.HasFollower(other))
	assert.NotNil(t, a.Following)
	require.Len(t, a.Story, 1)
	assert.Equal(t, created, a.Story[0].CreatedAt)
}

func TestPostDocToDomain(t *testing.T) {
	author, fan, comment := uuid.New(), uuid.New(), uuid.New()
	doc := postDoc{
		ID:       uuid.New().String(),
		UserID:   author.String(),
		Post:     "https://cdn/p.png",
		Likes:    []likeDoc{{Like: fan.String()}},
		Comments: []commentDoc{{ID: comment.String(), UserID: fan.String(), Comment: "nice"}},
	}

	p := doc.toDomain()
	assert.Equal(t, "https://cdn/p.png", p.ContentURL)
	assert.True(t, p.IsLikedBy(fan))
	c, ok := p.FindComment(comment)
	require.True(t, ok)
	assert.Equal(t, fan, c.UserID)
}

func TestStore_AddLikeGuards(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	postID, userID := uuid.New(), uuid.New()
	policy := domain.NewStoryPolicy(0, nil)

	mt.Run("already liked", func(mt *mtest.T) {
		s := New(mt.Client, "test", policy)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
		)

		_, err := s.AddLike(context.Background(), postID, userID)
		assert.ErrorIs(mt, err, domain.ErrAlreadyLiked)
	})

	mt.Run("missing post", func(mt *mtest.T) {
		s := New(mt.Client, "test", policy)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch),
		)

		_, err := s.AddLike(context.Background(), postID, userID)
		assert.ErrorIs(mt, err, domain.ErrPostNotFound)
	})

	mt.Run("liked", func(mt *mtest.T) {
		s := New(mt.Client, "test", policy)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: postID.String()},
			{Key: "userId", Value: uuid.NewString()},
			{Key: "post", Value: "u"},
			{Key: "likes", Value: bson.A{bson.D{{Key: "like", Value: userID.String()}}}},
			{Key: "comments", Value: bson.A{}},
		}}))

		post, err := s.AddLike(context.Background(), postID, userID)
		require.NoError(mt, err)
		assert.Equal(mt, postID, post.ID)
		assert.True(mt, post.IsLikedBy(userID))
	})
}

func TestStore_FollowMutationReportsNoop(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	policy := domain.NewStoryPolicy(0, nil)

	mt.Run("changed", func(mt *mtest.T) {
		s := New(mt.Client, "test", policy)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		changed, err := s.AddFollowing(context.Background(), uuid.New(), uuid.New())
		require.NoError(mt, err)
		assert.True(mt, changed)
	})

	mt.Run("already present", func(mt *mtest.T) {
		s := New(mt.Client, "test", policy)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
		)

		changed, err := s.AddFollowing(context.Background(), uuid.New(), uuid.New())
		require.NoError(mt, err)
		assert.False(mt, changed)
	})

	mt.Run("missing account", func(mt *mtest.T) {
		s := New(mt.Client, "test", policy)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch),
		)

		_, err := s.AddFollowing(context.Background(), uuid.New(), uuid.New())
		assert.ErrorIs(mt, err, domain.ErrAccountNotFound)
	})
}
