package mongostore

import (
	"time"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/domain"
)

// Documents keep the persisted field names of the original collections.
// Ids are stored as canonical UUID strings.

type accountDoc struct {
	ID            string      `bson:"_id"`
	Subject       string      `bson:"identity"`
	DisplayName   string      `bson:"displayName"`
	Handle        string      `bson:"handle"`
	ProfilePicURL string      `bson:"profilePicURL"`
	Tokens        []tokenDoc  `bson:"tokens"`
	Saved         []savedDoc  `bson:"saved"`
	Followers     []followDoc `bson:"followers"`
	Following     []followDoc `bson:"following"`
	Story         []storyDoc  `bson:"story"`
	CreatedAt     time.Time   `bson:"createdAt"`
}

type tokenDoc struct {
	Token string `bson:"token"`
}

type savedDoc struct {
	PostID string `bson:"postId"`
}

type followDoc struct {
	UserID string `bson:"userId"`
}

type storyDoc struct {
	ID        string    `bson:"id"`
	Story     string    `bson:"story"`
	Text      string    `bson:"text,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

type postDoc struct {
	ID        string       `bson:"_id"`
	UserID    string       `bson:"userId"`
	Caption   string       `bson:"caption"`
	Post      string       `bson:"post"`
	CreatedAt time.Time    `bson:"createdAt"`
	Likes     []likeDoc    `bson:"likes"`
	Comments  []commentDoc `bson:"comments"`
}

type likeDoc struct {
	Like string `bson:"like"`
}

type commentDoc struct {
	ID        string    `bson:"id"`
	UserID    string    `bson:"userId"`
	Comment   string    `bson:"comment"`
	CreatedAt time.Time `bson:"createdAt"`
}

func parseID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}

func (d *accountDoc) toDomain() *domain.Account {
	a := &domain.Account{
		ID:            parseID(d.ID),
		Subject:       d.Subject,
		DisplayName:   d.DisplayName,
		Handle:        d.Handle,
		ProfilePicURL: d.ProfilePicURL,
		Tokens:        make([]domain.TokenRef, 0, len(d.Tokens)),
		Saved:         make([]domain.SavedPost, 0, len(d.Saved)),
		Followers:     make([]domain.FollowRef, 0, len(d.Followers)),
		Following:     make([]domain.FollowRef, 0, len(d.Following)),
		Story:         make([]domain.StoryItem, 0, len(d.Story)),
		CreatedAt:     d.CreatedAt.UTC(),
	}
	for _, t := range d.Tokens {
		a.Tokens = append(a.Tokens, domain.TokenRef{Token: t.Token})
	}
	for _, s := range d.Saved {
		a.Saved = append(a.Saved, domain.SavedPost{PostID: parseID(s.PostID)})
	}
	for _, f := range d.Followers {
		a.Followers = append(a.Followers, domain.FollowRef{UserID: parseID(f.UserID)})
	}
	for _, f := range d.Following {
		a.Following = append(a.Following, domain.FollowRef{UserID: parseID(f.UserID)})
	}
	for _, s := range d.Story {
		a.Story = append(a.Story, domain.StoryItem{
			ID:        parseID(s.ID),
			Story:     s.Story,
			Text:      s.Text,
			CreatedAt: s.CreatedAt.UTC(),
		})
	}
	return a
}

func storyToDoc(item domain.StoryItem) storyDoc {
	return storyDoc{
		ID:        item.ID.String(),
		Story:     item.Story,
		Text:      item.Text,
		CreatedAt: item.CreatedAt,
	}
}

func (d *postDoc) toDomain() *domain.Post {
	p := &domain.Post{
		ID:         parseID(d.ID),
		UserID:     parseID(d.UserID),
		Caption:    d.Caption,
		ContentURL: d.Post,
		CreatedAt:  d.CreatedAt.UTC(),
		Likes:      make([]domain.Like, 0, len(d.Likes)),
		Comments:   make([]domain.Comment, 0, len(d.Comments)),
	}
	for _, l := range d.Likes {
		p.Likes = append(p.Likes, domain.Like{UserID: parseID(l.Like)})
	}
	for _, c := range d.Comments {
		p.Comments = append(p.Comments, domain.Comment{
			ID:        parseID(c.ID),
			UserID:    parseID(c.UserID),
			Comment:   c.Comment,
			CreatedAt: c.CreatedAt.UTC(),
		})
	}
	return p
}
