package chat

import (
	"sync"
	"time"
)

// Cache keeps the most recent messages of every room in a fixed-size ring.
type Cache struct {
	mu    sync.Mutex
	size  int
	rooms map[string]*ring
	now   func() time.Time
}

type ring struct {
	buf     []Message
	head    int // oldest entry
	n       int
	primed  bool
	touched time.Time
}

// NewCache returns a cache bounded to size messages per room.
// Sizes outside 1..MaxCacheSize fall back to MaxCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 || size > MaxCacheSize {
		size = MaxCacheSize
	}
	return &Cache{size: size, rooms: make(map[string]*ring), now: time.Now}
}

// Size is the per-room bound.
func (c *Cache) Size() int { return c.size }

// Append records m as the newest message of the room, evicting the oldest
// one once the bound is reached.
func (c *Cache) Append(roomID string, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.ringFor(roomID)
	r.push(m)
	r.touched = c.now()
}

// Snapshot returns the cached messages of the room, oldest first.
func (c *Cache) Snapshot(roomID string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[roomID]
	if !ok {
		return []Message{}
	}
	r.touched = c.now()
	return r.items()
}

// Len returns the number of cached messages for a room.
func (c *Cache) Len(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[roomID]; ok {
		return r.n
	}
	return 0
}

// Primed reports whether history from storage was already loaded for the room.
func (c *Cache) Primed(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	return ok && r.primed
}

// Prime seeds a room with history loaded from storage. Messages appended
// since the load stay newest; duplicates (same record id) are dropped.
// Only the first call per room has any effect.
func (c *Cache) Prime(roomID string, older []Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.ringFor(roomID)
	if r.primed {
		return false
	}
	r.primed = true
	r.touched = c.now()

	existing := r.items()
	seen := make(map[int64]struct{}, len(existing))
	for _, m := range existing {
		if m.Stored() {
			seen[m.RecordID] = struct{}{}
		}
	}

	r.head, r.n = 0, 0
	for _, m := range older {
		if _, dup := seen[m.RecordID]; dup && m.Stored() {
			continue
		}
		r.push(m)
	}
	for _, m := range existing {
		r.push(m)
	}
	return true
}

// Sweep drops rooms that have not been touched for maxIdle and returns how
// many were evicted. A dropped room is primed again from storage on next use.
func (c *Cache) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxIdle)
	evicted := 0
	for id, r := range c.rooms {
		if r.touched.Before(cutoff) {
			delete(c.rooms, id)
			evicted++
		}
	}
	return evicted
}

// Rooms returns the number of rooms currently held.
func (c *Cache) Rooms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// ringFor must be called with c.mu held.
func (c *Cache) ringFor(roomID string) *ring {
	r, ok := c.rooms[roomID]
	if !ok {
		r = &ring{buf: make([]Message, c.size)}
		c.rooms[roomID] = r
	}
	return r
}

func (r *ring) push(m Message) {
	size := len(r.buf)
	if r.n < size {
		r.buf[(r.head+r.n)%size] = m
		r.n++
		return
	}
	r.buf[r.head] = m
	r.head = (r.head + 1) % size
}

func (r *ring) items() []Message {
	out := make([]Message, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
