package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreatePost(ctx context.Context, params domain.CreatePostParams) (*domain.Post, error) {
	doc := postDoc{
		ID:        params.ID.String(),
		UserID:    params.UserID.String(),
		Caption:   params.Caption,
		Post:      params.ContentURL,
		CreatedAt: params.CreatedAt,
		Likes:     []likeDoc{},
		Comments:  []commentDoc{},
	}
	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) GetPost(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	var doc postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPostNotFound
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) ListPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	opts := options.Find().SetSort(newestFirst).SetSkip(int64(offset)).SetLimit(int64(limit))
	return s.findPosts(ctx, bson.M{}, opts)
}

func (s *Store) ListPostsByAuthor(ctx context.Context, authorID uuid.UUID) ([]*domain.Post, error) {
	return s.findPosts(ctx, bson.M{"userId": authorID.String()}, options.Find().SetSort(newestFirst))
}

func (s *Store) findPosts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Post, error) {
	cursor, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	var docs []postDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	out := make([]*domain.Post, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// updatePost applies update to the post matching filter and returns the new
// version. A miss is reported as mongo.ErrNoDocuments for the caller to classify.
func (s *Store) updatePost(ctx context.Context, filter, update bson.M) (*domain.Post, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc postDoc
	if err := s.posts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (s *Store) AddLike(ctx context.Context, postID, userID uuid.UUID) (*domain.Post, error) {
	post, err := s.updatePost(ctx,
		bson.M{"_id": postID.String(), "likes.like": bson.M{"$ne": userID.String()}},
		bson.M{"$push": bson.M{"likes": likeDoc{Like: userID.String()}}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.guardError(ctx, postID, domain.ErrAlreadyLiked)
	}
	if err != nil {
		return nil, fmt.Errorf("add like: %w", err)
	}
	return post, nil
}

func (s *Store) RemoveLike(ctx context.Context, postID, userID uuid.UUID) (*domain.Post, error) {
	post, err := s.updatePost(ctx,
		bson.M{"_id": postID.String(), "likes.like": userID.String()},
		bson.M{"$pull": bson.M{"likes": bson.M{"like": userID.String()}}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.guardError(ctx, postID, domain.ErrNotLiked)
	}
	if err != nil {
		return nil, fmt.Errorf("remove like: %w", err)
	}
	return post, nil
}

func (s *Store) AddComment(ctx context.Context, postID uuid.UUID, comment domain.Comment) (*domain.Post, error) {
	post, err := s.updatePost(ctx,
		bson.M{"_id": postID.String()},
		bson.M{"$push": bson.M{"comments": commentDoc{
			ID:        comment.ID.String(),
			UserID:    comment.UserID.String(),
			Comment:   comment.Comment,
			CreatedAt: comment.CreatedAt,
		}}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return post, nil
}

func (s *Store) RemoveComment(ctx context.Context, postID, commentID, authorID uuid.UUID) (*domain.Post, error) {
	post, err := s.updatePost(ctx,
		bson.M{
			"_id":      postID.String(),
			"comments": bson.M{"$elemMatch": bson.M{"id": commentID.String(), "userId": authorID.String()}},
		},
		bson.M{"$pull": bson.M{"comments": bson.M{"id": commentID.String()}}})
	if err == nil {
		return post, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("remove comment: %w", err)
	}

	current, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if _, ok := current.FindComment(commentID); !ok {
		return nil, domain.ErrCommentNotFound
	}
	return nil, domain.ErrNotCommentAuthor
}

func (s *Store) guardError(ctx context.Context, postID uuid.UUID, guardErr error) error {
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": postID.String()}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check post: %w", err)
	}
	if n == 0 {
		return domain.ErrPostNotFound
	}
	return guardErr
}
