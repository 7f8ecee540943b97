package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	msgs []Message
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m.Event.Type)
	}
	return out
}

type blockingSink struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(context.Context, Message) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	return nil
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) EventDelivered(event, sink, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[sink+"/"+result]++
}

func (o *countingObserver) count(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[key]
}

func TestBroadcaster_DeliversEnvelopeInOrder(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	b := NewBroadcaster(zap.NewNop(), nil, 8, sink)

	b.Emit(context.Background(), "post-liked", map[string]any{"likesCount": 1})
	b.Emit(context.Background(), "post-unliked", map[string]any{"likesCount": 0})
	b.Close()

	require.Equal(t, []string{"post-liked", "post-unliked"}, sink.types())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(sink.msgs[0].Data, &decoded))
	assert.Equal(t, "post-liked", decoded["type"])
	assert.NotEmpty(t, decoded["eventId"])
	assert.NotEmpty(t, decoded["timestamp"])
	assert.Equal(t, map[string]any{"likesCount": float64(1)}, decoded["payload"])
}

func TestBroadcaster_FailingSinkDoesNotAffectOthers(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("down")}
	good := &recordingSink{name: "good"}
	obs := &countingObserver{}
	b := NewBroadcaster(zap.NewNop(), obs, 8, bad, good)

	b.Emit(context.Background(), "post-created", nil)
	b.Close()

	assert.Equal(t, []string{"post-created"}, good.types())
	assert.Equal(t, 1, obs.count("bad/error"))
	assert.Equal(t, 1, obs.count("good/ok"))
}

func TestBroadcaster_DropsWhenQueueFull(t *testing.T) {
	slow := &blockingSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	obs := &countingObserver{}
	b := NewBroadcaster(zap.NewNop(), obs, 1, slow)

	b.Emit(context.Background(), "post-liked", nil)
	<-slow.started

	b.Emit(context.Background(), "post-liked", nil) // queued
	b.Emit(context.Background(), "post-liked", nil) // dropped

	close(slow.release)
	b.Close()

	assert.Equal(t, 1, obs.count("blocking/dropped"))
	assert.Equal(t, 2, obs.count("blocking/ok"))
}

func TestBroadcaster_EmitAfterCloseIsIgnored(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	b := NewBroadcaster(zap.NewNop(), nil, 1, sink)
	b.Close()
	b.Close()

	b.Emit(context.Background(), "post-created", nil)
	assert.Empty(t, sink.types())
}
