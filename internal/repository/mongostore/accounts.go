// Package mongostore implements the account and post stores on MongoDB using
// the driver's array operators ($push, $pull and guarded filters), so every
// list mutation is a single-document atomic update.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	accountsCollection = "users"
	postsCollection    = "posts"
)

type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
	posts    *mongo.Collection
	policy   domain.StoryPolicy
}

// Connect dials uri and returns a store on database.
func Connect(ctx context.Context, uri, database string, policy domain.StoryPolicy) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database, policy), nil
}

func New(client *mongo.Client, database string, policy domain.StoryPolicy) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		accounts: db.Collection(accountsCollection),
		posts:    db.Collection(postsCollection),
		policy:   policy,
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "handle", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "identity", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "tokens.token", Value: 1}}},
		{Keys: bson.D{{Key: "story.createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create account indexes: %w", err)
	}
	_, err = s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create post indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}

func (s *Store) CreateAccount(ctx context.Context, params domain.CreateAccountParams) (*domain.Account, error) {
	doc := accountDoc{
		ID:            params.ID.String(),
		Subject:       params.Subject,
		DisplayName:   params.DisplayName,
		Handle:        domain.NormalizeHandle(params.Handle),
		ProfilePicURL: params.ProfilePicURL,
		Tokens:        []tokenDoc{},
		Saved:         []savedDoc{},
		Followers:     []followDoc{},
		Following:     []followDoc{},
		Story:         []storyDoc{},
		CreatedAt:     params.CreatedAt,
	}
	if params.Token != "" {
		doc.Tokens = append(doc.Tokens, tokenDoc{Token: params.Token})
	}

	if _, err := s.accounts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "identity") {
				return nil, domain.ErrSubjectTaken
			}
			return nil, domain.ErrHandleTaken
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var doc accountDoc
	if err := s.accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": id.String()})
}

func (s *Store) GetAccountBySubject(ctx context.Context, subject string) (*domain.Account, error) {
	return s.findAccount(ctx, bson.M{"identity": subject})
}

func (s *Store) GetAccountByToken(ctx context.Context, fingerprint string) (*domain.Account, error) {
	return s.findAccount(ctx, bson.M{"tokens.token": fingerprint})
}

func (s *Store) GetAccountsByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Account, error) {
	if len(ids) == 0 {
		return []*domain.Account{}, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	found, err := s.findAccounts(ctx, bson.M{"_id": bson.M{"$in": keys}}, nil)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*domain.Account, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}

	out := make([]*domain.Account, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
			delete(byID, id)
		}
	}
	return out, nil
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}

func (s *Store) ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	opts := options.Find().SetSort(newestFirst).SetLimit(int64(limit))
	return s.findAccounts(ctx, bson.M{}, opts)
}

// SearchAccounts quotes query so it is matched literally.
func (s *Store) SearchAccounts(ctx context.Context, query string, limit int) ([]*domain.Account, error) {
	pattern := bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"handle": pattern},
		bson.M{"displayName": pattern},
	}}
	opts := options.Find().SetSort(newestFirst).SetLimit(int64(limit))
	return s.findAccounts(ctx, filter, opts)
}

func (s *Store) findAccounts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Account, error) {
	cursor, err := s.accounts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find accounts: %w", err)
	}
	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	out := make([]*domain.Account, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

func (s *Store) ScanAccounts(ctx context.Context, fn func(*domain.Account) error) error {
	cursor, err := s.accounts.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("scan accounts: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc accountDoc
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}
		if err := fn(doc.toDomain()); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// expiredStories is the $pull condition dropping stories past the cutoff.
func (s *Store) expiredStories() bson.M {
	return bson.M{"createdAt": bson.M{"$lte": s.policy.Cutoff()}}
}

func (s *Store) SetProfilePicture(ctx context.Context, id uuid.UUID, url string) error {
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{
			"$set":  bson.M{"profilePicURL": url},
			"$pull": bson.M{"story": s.expiredStories()},
		})
	if err != nil {
		return fmt.Errorf("set profile picture: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (s *Store) PushToken(ctx context.Context, id uuid.UUID, fingerprint string) error {
	_, err := s.push(ctx, id, "tokens", "token", fingerprint)
	return err
}

func (s *Store) PullToken(ctx context.Context, id uuid.UUID, fingerprint string) error {
	_, err := s.pull(ctx, id, "tokens", "token", fingerprint)
	return err
}

func (s *Store) AddFollowing(ctx context.Context, id, target uuid.UUID) (bool, error) {
	return s.push(ctx, id, "following", "userId", target.String())
}

func (s *Store) RemoveFollowing(ctx context.Context, id, target uuid.UUID) (bool, error) {
	return s.pull(ctx, id, "following", "userId", target.String())
}

func (s *Store) AddFollower(ctx context.Context, id, follower uuid.UUID) (bool, error) {
	return s.push(ctx, id, "followers", "userId", follower.String())
}

func (s *Store) RemoveFollower(ctx context.Context, id, follower uuid.UUID) (bool, error) {
	return s.pull(ctx, id, "followers", "userId", follower.String())
}

func (s *Store) AddSaved(ctx context.Context, id, postID uuid.UUID) (bool, error) {
	return s.push(ctx, id, "saved", "postId", postID.String())
}

func (s *Store) RemoveSaved(ctx context.Context, id, postID uuid.UUID) (bool, error) {
	return s.pull(ctx, id, "saved", "postId", postID.String())
}

// push appends {field: value} to array unless an element with that value exists.
func (s *Store) push(ctx context.Context, id uuid.UUID, array, field, value string) (bool, error) {
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": id.String(), array + "." + field: bson.M{"$ne": value}},
		bson.M{
			"$push": bson.M{array: bson.M{field: value}},
			"$pull": bson.M{"story": s.expiredStories()},
		})
	if err != nil {
		return false, fmt.Errorf("push %s: %w", array, err)
	}
	return s.changed(ctx, id, res)
}

// pull removes every {field: value} element from array.
func (s *Store) pull(ctx context.Context, id uuid.UUID, array, field, value string) (bool, error) {
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": id.String(), array + "." + field: value},
		bson.M{"$pull": bson.M{
			array:   bson.M{field: value},
			"story": s.expiredStories(),
		}})
	if err != nil {
		return false, fmt.Errorf("pull %s: %w", array, err)
	}
	return s.changed(ctx, id, res)
}

// changed tells a guarded no-op apart from a missing document.
func (s *Store) changed(ctx context.Context, id uuid.UUID, res *mongo.UpdateResult) (bool, error) {
	if res.MatchedCount > 0 {
		return true, nil
	}
	n, err := s.accounts.CountDocuments(ctx, bson.M{"_id": id.String()}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	if n == 0 {
		return false, domain.ErrAccountNotFound
	}
	return false, nil
}

// PushStory drops expired items and appends item in one pipeline update;
// $push and $pull cannot target the same array in a classic update.
func (s *Store) PushStory(ctx context.Context, id uuid.UUID, item domain.StoryItem) (*domain.Account, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"story": bson.M{"$concatArrays": bson.A{
				bson.M{"$filter": bson.M{
					"input": "$story",
					"cond":  bson.M{"$gt": bson.A{"$$this.createdAt", s.policy.Cutoff()}},
				}},
				bson.A{storyToDoc(item)},
			}},
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc accountDoc
	err := s.accounts.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, pipeline, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("push story: %w", err)
	}
	return doc.toDomain(), nil
}

// PullExpiredStories removes items created at or before cutoff from every
// account. Removed is counted just before the pull.
func (s *Store) PullExpiredStories(ctx context.Context, cutoff time.Time) (domain.SweepResult, error) {
	expired := bson.M{"story.createdAt": bson.M{"$lte": cutoff}}

	removed, err := s.countExpired(ctx, cutoff)
	if err != nil {
		return domain.SweepResult{}, err
	}

	res, err := s.accounts.UpdateMany(ctx, expired,
		bson.M{"$pull": bson.M{"story": bson.M{"createdAt": bson.M{"$lte": cutoff}}}})
	if err != nil {
		return domain.SweepResult{}, fmt.Errorf("pull expired stories: %w", err)
	}

	return domain.SweepResult{
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
		Removed:  removed,
	}, nil
}

func (s *Store) countExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	match := bson.D{{Key: "$match", Value: bson.M{"story.createdAt": bson.M{"$lte": cutoff}}}}
	pipeline := mongo.Pipeline{
		match,
		{{Key: "$unwind", Value: "$story"}},
		match,
		{{Key: "$count", Value: "removed"}},
	}

	cursor, err := s.accounts.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("count expired stories: %w", err)
	}
	var out []struct {
		Removed int64 `bson:"removed"`
	}
	if err := cursor.All(ctx, &out); err != nil {
		return 0, fmt.Errorf("decode expired count: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Removed, nil
}
