package domain_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type emitted struct {
	name    string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(_ context.Context, name string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{name: name, payload: payload})
}

func (e *recordingEmitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.name)
	}
	return out
}

type countingRecorder struct {
	mu           sync.Mutex
	consistency  map[string]int
	repaired     map[string]int
	sweptRemoved int64
	sweepErrors  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{consistency: map[string]int{}, repaired: map[string]int{}}
}

func (r *countingRecorder) ConsistencyFailure(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consistency[op]++
}

func (r *countingRecorder) FollowRepaired(action string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repaired[action] += n
}

func (r *countingRecorder) StoriesSwept(removed int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweptRemoved += removed
	if err != nil {
		r.sweepErrors++
	}
}

type fixture struct {
	clock    *fakeClock
	policy   domain.StoryPolicy
	store    *memory.Store
	recorder *countingRecorder
	events   *recordingEmitter
}

func newFixture() *fixture {
	clock := newFakeClock()
	policy := domain.NewStoryPolicy(24*time.Hour, clock.Now)
	return &fixture{
		clock:    clock,
		policy:   policy,
		store:    memory.New(policy),
		recorder: newCountingRecorder(),
		events:   &recordingEmitter{},
	}
}

func (f *fixture) account(t *testing.T, handle string) *domain.Account {
	t.Helper()
	a, err := f.store.CreateAccount(context.Background(), domain.CreateAccountParams{
		ID:          uuid.New(),
		Subject:     "subject-" + handle,
		DisplayName: handle,
		Handle:      handle,
		CreatedAt:   f.clock.Now(),
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *domain.Account {
	t.Helper()
	a, err := f.store.GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *fixture) graph() *domain.GraphService {
	return domain.NewGraphService(f.store, f.recorder, nil)
}

func (f *fixture) stories() *domain.StoryService {
	return domain.NewStoryService(f.store, f.policy, f.recorder, nil)
}

func (f *fixture) interactions() *domain.InteractionService {
	return domain.NewInteractionService(f.store, f.store, f.events, f.clock.Now)
}

func (f *fixture) bookmarks() *domain.BookmarkService {
	return domain.NewBookmarkService(f.store, f.store)
}
