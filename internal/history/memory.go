package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps history in process memory. It backs tests and
// database-less runs; contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[int64][]Turn
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns: make(map[int64][]Turn),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Recent(_ context.Context, userID int64, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 6
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[userID]
	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

func (s *MemoryStore) AppendExchange(_ context.Context, userID int64, userText, assistantText string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[userID] = append(s.turns[userID],
		Turn{ID: uuid.NewString(), UserID: userID, Role: RoleUser, Content: userText, CreatedAt: now},
		Turn{ID: uuid.NewString(), UserID: userID, Role: RoleAssistant, Content: assistantText, CreatedAt: now.Add(time.Millisecond)},
	)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
