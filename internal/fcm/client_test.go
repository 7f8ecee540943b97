package fcm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/fanout"
)

type fakeMessenger struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.sent = append(f.sent, m)
	return "projects/p/messages/1", f.err
}

func TestClient_DeliverSendsCompactDataMessage(t *testing.T) {
	postID := uuid.New()
	likes := make([]domain.Like, 500)
	for i := range likes {
		likes[i] = domain.Like{UserID: uuid.New()}
	}

	tests := []struct {
		name    string
		typ     string
		payload any
		postID  string
	}{
		{"created", domain.EventPostCreated, domain.PostCreatedPayload{Post: &domain.Post{ID: postID, Caption: strings.Repeat("x", 2200)}}, postID.String()},
		{"liked", domain.EventPostLiked, domain.LikeEventPayload{PostID: postID, LikesCount: len(likes), Likes: likes}, postID.String()},
		{"unknown payload", "other", map[string]string{"k": "v"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMessenger{}
			c := newClient(fake, "posts", zap.NewNop())

			id := uuid.New()
			msg := fanout.Message{
				Event: fanout.Event{EventID: id, Type: tt.typ, Payload: tt.payload},
				Data:  []byte(strings.Repeat("y", 8192)),
			}
			require.NoError(t, c.Deliver(context.Background(), msg))

			require.Len(t, fake.sent, 1)
			want := map[string]string{"type": tt.typ, "eventId": id.String()}
			if tt.postID != "" {
				want["postId"] = tt.postID
			}
			assert.Equal(t, "posts", fake.sent[0].Topic)
			assert.Equal(t, want, fake.sent[0].Data)
			assert.Nil(t, fake.sent[0].Notification)
		})
	}
}

func TestClient_DeliverReturnsSendError(t *testing.T) {
	fake := &fakeMessenger{err: errors.New("quota")}
	c := newClient(fake, "posts", zap.NewNop())

	err := c.Deliver(context.Background(), fanout.Message{Event: fanout.Event{Type: "post-liked"}})
	assert.EqualError(t, err, "quota")
}
