package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(limit, window)
	l.now = clock.Now
	l.lastCleanup = clock.Now()
	return l, clock
}

func TestLimiter_Burst(t *testing.T) {
	l, _ := newTestLimiter(10, 100*time.Millisecond)

	allowed, limited := 0, 0
	for i := 0; i < 20; i++ {
		if l.Allow("alice") {
			allowed++
		} else {
			limited++
		}
	}

	assert.Equal(t, 10, allowed)
	assert.Equal(t, 10, limited)
}

func TestLimiter_WindowRefill(t *testing.T) {
	l, clock := newTestLimiter(5, 100*time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("alice"), "event %d", i+1)
	}
	assert.False(t, l.Allow("alice"))

	clock.Advance(110 * time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("alice"), "event %d after refill", i+1)
	}
}

func TestLimiter_PartialRefill(t *testing.T) {
	l, clock := newTestLimiter(3, 90*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("alice"))
	}
	assert.False(t, l.Allow("alice"))

	clock.Advance(35 * time.Millisecond)
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(2, time.Second)

	for _, key := range []string{"alice", "bob", "carol"} {
		assert.True(t, l.Allow(key), key)
		assert.True(t, l.Allow(key), key)
		assert.False(t, l.Allow(key), key)
	}
}

func TestLimiter_NonPositiveLimitDeniesAll(t *testing.T) {
	for _, limit := range []int{0, -1} {
		l := New(limit, time.Second)
		assert.False(t, l.Allow("alice"), "limit %d", limit)
	}
}

func TestLimiter_TinyWindowAllowsAll(t *testing.T) {
	l := New(1000, time.Nanosecond)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("alice"))
	}
}

func TestLimiter_LongWindowStaysLimited(t *testing.T) {
	l, clock := newTestLimiter(2, 24*time.Hour)

	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))

	clock.Advance(time.Minute)
	assert.False(t, l.Allow("alice"))
}

func TestLimiter_CleanupIdleEntries(t *testing.T) {
	l, clock := newTestLimiter(1, 50*time.Millisecond)

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	assert.Equal(t, 100, l.Len())

	clock.Advance(60 * time.Millisecond)
	l.Allow("10.0.0.200")
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_SetLimitResetsBuckets(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))

	l.SetLimit(3, time.Minute)
	limit, window := l.Limit()
	assert.Equal(t, 3, limit)
	assert.Equal(t, time.Minute, window)

	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
}

func TestLimiter_Forget(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))

	l.Forget("alice")
	assert.True(t, l.Allow("alice"))
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(10, time.Minute)

	var wg sync.WaitGroup
	var allowed, denied atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("user-%d", id%10)
			for j := 0; j < 20; j++ {
				if l.Allow(key) {
					allowed.Add(1)
				} else {
					denied.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(100), allowed.Load())
	assert.Equal(t, int32(900), denied.Load())
}
