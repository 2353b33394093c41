package tutor

import (
	"context"
	"sync"
	"time"
)

// PendingReplies caches the last assistant reply per user so a voice answer
// can be re-read as text on request. Entries expire after a TTL and the
// cache is capacity-bounded: inserting past capacity evicts the oldest
// entry, so the map cannot grow with the number of users ever seen.
type PendingReplies struct {
	mu       sync.Mutex
	entries  map[int64]pendingEntry
	ttl      time.Duration
	capacity int
	onChange func(size int)
	now      func() time.Time
}

type pendingEntry struct {
	text     string
	storedAt time.Time
}

func NewPendingReplies(ttl time.Duration, capacity int) *PendingReplies {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &PendingReplies{
		entries:  make(map[int64]pendingEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetChangeHook registers a callback invoked with the cache size after
// every mutation, including janitor sweeps.
func (p *PendingReplies) SetChangeHook(hook func(size int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = hook
}

func (p *PendingReplies) Set(userID int64, text string) {
	p.mu.Lock()
	if _, exists := p.entries[userID]; !exists && len(p.entries) >= p.capacity {
		p.evictOldestLocked()
	}
	p.entries[userID] = pendingEntry{text: text, storedAt: p.now()}
	hook, size := p.onChange, len(p.entries)
	p.mu.Unlock()

	if hook != nil {
		hook(size)
	}
}

// Take returns and removes the pending reply for the user. Expired entries
// count as a miss.
func (p *PendingReplies) Take(userID int64) (string, bool) {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	if ok {
		delete(p.entries, userID)
	}
	hook, size := p.onChange, len(p.entries)
	p.mu.Unlock()

	if hook != nil {
		hook(size)
	}
	if !ok || p.now().Sub(entry.storedAt) > p.ttl {
		return "", false
	}
	return entry.text, true
}

func (p *PendingReplies) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *PendingReplies) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.sweepExpired()
			}
		}
	}()
}

func (p *PendingReplies) sweepExpired() {
	now := p.now()

	p.mu.Lock()
	for userID, entry := range p.entries {
		if now.Sub(entry.storedAt) > p.ttl {
			delete(p.entries, userID)
		}
	}
	hook, size := p.onChange, len(p.entries)
	p.mu.Unlock()

	if hook != nil {
		hook(size)
	}
}

func (p *PendingReplies) evictOldestLocked() {
	var oldestUser int64
	var oldestAt time.Time
	first := true
	for userID, entry := range p.entries {
		if first || entry.storedAt.Before(oldestAt) {
			oldestUser, oldestAt = userID, entry.storedAt
			first = false
		}
	}
	if !first {
		delete(p.entries, oldestUser)
	}
}
