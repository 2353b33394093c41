package history

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryStoreRecentWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 5; i++ {
		if err := store.AppendExchange(ctx, 42, fmt.Sprintf("pregunta %d", i), fmt.Sprintf("respuesta %d", i)); err != nil {
			t.Fatalf("AppendExchange() error = %v", err)
		}
	}

	turns, err := store.Recent(ctx, 42, 6)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 6 {
		t.Fatalf("len(turns) = %d, want 6", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].CreatedAt.Before(turns[i-1].CreatedAt) {
			t.Fatalf("turns not ascending by created_at at index %d", i)
		}
	}
	// Most recent exchange is the tail, in user-then-assistant order.
	if turns[4].Role != RoleUser || turns[4].Content != "pregunta 4" {
		t.Errorf("turns[4] = %+v, want user turn 'pregunta 4'", turns[4])
	}
	if turns[5].Role != RoleAssistant || turns[5].Content != "respuesta 4" {
		t.Errorf("turns[5] = %+v, want assistant turn 'respuesta 4'", turns[5])
	}
}

func TestMemoryStoreRecentShortHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.AppendExchange(ctx, 7, "hola", "¡Hola! ¿Cómo estás?"); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}

	turns, err := store.Recent(ctx, 7, 6)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
}

func TestMemoryStoreExchangeNeverPartiallyVisible(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const exchanges = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < exchanges; i++ {
			if err := store.AppendExchange(ctx, 9, fmt.Sprintf("pregunta %d", i), fmt.Sprintf("respuesta %d", i)); err != nil {
				t.Errorf("AppendExchange() error = %v", err)
				return
			}
		}
	}()

	// A reader racing the appender must only ever observe whole exchanges:
	// an even number of turns, alternating user/assistant, ending on the
	// assistant row.
	for {
		select {
		case <-done:
			return
		default:
		}

		turns, err := store.Recent(ctx, 9, 6)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(turns)%2 != 0 {
			t.Fatalf("len(turns) = %d, want even (half of an exchange is visible)", len(turns))
		}
		for i, turn := range turns {
			want := RoleUser
			if i%2 == 1 {
				want = RoleAssistant
			}
			if turn.Role != want {
				t.Fatalf("turns[%d].Role = %q, want %q", i, turn.Role, want)
			}
		}
	}
}

func TestMemoryStoreIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.AppendExchange(ctx, 1, "uno", "one"); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}

	turns, err := store.Recent(ctx, 2, 6)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("len(turns) = %d for untouched user, want 0", len(turns))
	}
}
