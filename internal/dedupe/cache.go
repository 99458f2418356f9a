// ABOUTME: Generic TTL and size bounded set used to drop redelivered webhook updates.
// ABOUTME: Keys are kept in arrival order so the oldest one is evicted first.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL covers the window in which Telegram redelivers an unacknowledged update.
const DefaultTTL = 10 * time.Minute

// DefaultSize bounds memory when a flood of distinct update ids arrives.
const DefaultSize = 10000

type entry[K comparable] struct {
	seenAt time.Time
	elem   *list.Element
}

// Cache remembers keys for a fixed TTL. At most size keys are kept.
type Cache[K comparable] struct {
	mu    sync.Mutex
	seen  map[K]*entry[K]
	order *list.List // oldest at front
	ttl   time.Duration
	size  int
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts the sweeper that drops expired keys.
// Non-positive ttl or size fall back to DefaultTTL and DefaultSize.
func New[K comparable](ttl time.Duration, size int) *Cache[K] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if size <= 0 {
		size = DefaultSize
	}
	c := &Cache[K]{
		seen:  make(map[K]*entry[K]),
		order: list.New(),
		ttl:   ttl,
		size:  size,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

// Seen reports whether key was marked within the TTL.
func (c *Cache[K]) Seen(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && c.now().Sub(e.seenAt) < c.ttl
}

// CheckAndMark reports whether key is a duplicate. A new (or expired) key is
// marked in the same critical section, so two concurrent deliveries of the
// same update can never both be treated as new.
func (c *Cache[K]) CheckAndMark(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.seen[key]; ok {
		if now.Sub(e.seenAt) < c.ttl {
			return true
		}
		e.seenAt = now
		c.order.MoveToBack(e.elem)
		return false
	}

	if len(c.seen) >= c.size {
		if front := c.order.Front(); front != nil {
			delete(c.seen, front.Value.(K))
			c.order.Remove(front)
		}
	}

	c.seen[key] = &entry[K]{seenAt: now, elem: c.order.PushBack(key)}
	return false
}

// Forget drops key so the next delivery is processed again.
func (c *Cache[K]) Forget(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok {
		c.order.Remove(e.elem)
		delete(c.seen, key)
	}
}

// Len returns the number of tracked keys, expired ones included until swept.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache[K]) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep walks from the oldest key and stops at the first live one.
func (c *Cache[K]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key := front.Value.(K)
		if now.Sub(c.seen[key].seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache[K]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
