package domain

import "time"

// DefaultStoryTTL is how long a story item stays visible.
const DefaultStoryTTL = 24 * time.Hour

// Clock returns the current time. Services take one so expiry can be tested.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// StoryPolicy owns the story expiry rule. An item is expired once its age is
// at least TTL. Expiry is always recomputed from the clock, never stored.
type StoryPolicy struct {
	TTL time.Duration
	Now Clock
}

// NewStoryPolicy returns a policy, falling back to the defaults for zero values.
func NewStoryPolicy(ttl time.Duration, now Clock) StoryPolicy {
	if ttl <= 0 {
		ttl = DefaultStoryTTL
	}
	if now == nil {
		now = SystemClock
	}
	return StoryPolicy{TTL: ttl, Now: now}
}

// Cutoff is the newest creation time that counts as expired right now.
func (p StoryPolicy) Cutoff() time.Time {
	return p.now().Add(-p.ttl())
}

// Expired reports whether the item's age is at least TTL.
func (p StoryPolicy) Expired(item StoryItem) bool {
	return !item.CreatedAt.After(p.Cutoff())
}

// Active returns the non-expired items in their original order.
func (p StoryPolicy) Active(items []StoryItem) []StoryItem {
	cutoff := p.Cutoff()
	active := make([]StoryItem, 0, len(items))
	for _, item := range items {
		if item.CreatedAt.After(cutoff) {
			active = append(active, item)
		}
	}
	return active
}

// Filter drops expired items from a loaded account in place.
func (p StoryPolicy) Filter(a *Account) {
	if a == nil {
		return
	}
	a.Story = p.Active(a.Story)
}

func (p StoryPolicy) now() time.Time {
	if p.Now == nil {
		return SystemClock()
	}
	return p.Now()
}

func (p StoryPolicy) ttl() time.Duration {
	if p.TTL <= 0 {
		return DefaultStoryTTL
	}
	return p.TTL
}
