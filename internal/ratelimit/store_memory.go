package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// InMemoryWindow keeps request timestamps per key. Not shared between
// instances.
type InMemoryWindow struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	clock   func() time.Time
}

func NewInMemoryWindow(clock func() time.Time) *InMemoryWindow {
	if clock == nil {
		clock = time.Now
	}
	return &InMemoryWindow{buckets: make(map[string][]time.Time), clock: clock}
}

// Allow records a request under key when fewer than limit.Requests fall in
// the trailing window.
func (s *InMemoryWindow) Allow(_ context.Context, key string, limit Limit) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	stamps := trim(s.buckets[key], now.Add(-limit.Window))

	if len(stamps) >= limit.Requests {
		s.buckets[key] = stamps
		resetAt := stamps[0].Add(limit.Window)
		return &Result{
			Allowed:    false,
			Limit:      limit.Requests,
			ResetAt:    resetAt,
			RetryAfter: int(math.Ceil(resetAt.Sub(now).Seconds())),
		}, nil
	}

	stamps = append(stamps, now)
	s.buckets[key] = stamps
	return &Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(stamps),
		ResetAt:   stamps[0].Add(limit.Window),
	}, nil
}

// trim drops timestamps at or before cutoff.
func trim(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
