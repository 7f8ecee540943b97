package domain

import (
	"context"

	"github.com/google/uuid"
)

// Event names broadcast to every connected observer.
const (
	EventPostLiked   = "post-liked"
	EventPostUnliked = "post-unliked"
	EventPostCreated = "post-created"
)

// LikeEventPayload is sent with post-liked and post-unliked.
type LikeEventPayload struct {
	PostID     uuid.UUID `json:"postId"`
	LikesCount int       `json:"likesCount"`
	Likes      []Like    `json:"likes"`
}

// PostCreatedPayload is sent with post-created.
type PostCreatedPayload struct {
	Post *Post `json:"post"`
}

// EventEmitter is the broadcast channel. Emit is best-effort and must not
// block on slow observers; callers only emit after the write succeeded.
type EventEmitter interface {
	Emit(ctx context.Context, name string, payload any)
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}

// Recorder receives the counters the services report. The metrics package
// provides the Prometheus-backed implementation.
type Recorder interface {
	ConsistencyFailure(op string)
	FollowRepaired(action string, n int)
	StoriesSwept(removed int64, err error)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) ConsistencyFailure(string)  {}
func (NopRecorder) FollowRepaired(string, int) {}
func (NopRecorder) StoriesSwept(int64, error)  {}
