package tutor

import (
	"testing"
	"time"
)

func TestPendingRepliesSetAndTake(t *testing.T) {
	p := NewPendingReplies(time.Hour, 16)
	p.Set(42, "respuesta")

	text, ok := p.Take(42)
	if !ok || text != "respuesta" {
		t.Fatalf("Take = %q, %v", text, ok)
	}
	if _, ok := p.Take(42); ok {
		t.Fatalf("second Take should miss; entries are read-once")
	}
}

func TestPendingRepliesOverwrite(t *testing.T) {
	p := NewPendingReplies(time.Hour, 16)
	p.Set(42, "primera")
	p.Set(42, "segunda")

	text, ok := p.Take(42)
	if !ok || text != "segunda" {
		t.Fatalf("Take = %q, %v, want latest reply", text, ok)
	}
}

func TestPendingRepliesTTLExpiry(t *testing.T) {
	p := NewPendingReplies(time.Minute, 16)
	now := time.Now().UTC()
	p.now = func() time.Time { return now }

	p.Set(42, "vieja")
	now = now.Add(2 * time.Minute)

	if _, ok := p.Take(42); ok {
		t.Fatalf("expired entry served")
	}
}

func TestPendingRepliesCapacityEvictsOldest(t *testing.T) {
	p := NewPendingReplies(time.Hour, 3)
	now := time.Now().UTC()
	p.now = func() time.Time { return now }

	for i := int64(1); i <= 4; i++ {
		p.Set(i, "texto")
		now = now.Add(time.Second)
	}

	if got := p.Len(); got != 3 {
		t.Fatalf("Len = %d, want capacity 3", got)
	}
	if _, ok := p.Take(1); ok {
		t.Fatalf("oldest entry survived past capacity")
	}
	if _, ok := p.Take(4); !ok {
		t.Fatalf("newest entry evicted")
	}
}

func TestPendingRepliesSweepExpired(t *testing.T) {
	p := NewPendingReplies(time.Minute, 16)
	now := time.Now().UTC()
	p.now = func() time.Time { return now }

	var sizes []int
	p.SetChangeHook(func(size int) { sizes = append(sizes, size) })

	p.Set(1, "a")
	now = now.Add(2 * time.Minute)
	p.Set(2, "b")
	p.sweepExpired()

	if got := p.Len(); got != 1 {
		t.Fatalf("Len = %d after sweep, want 1", got)
	}
	if _, ok := p.Take(2); !ok {
		t.Fatalf("fresh entry swept")
	}
	if len(sizes) == 0 || sizes[len(sizes)-2] != 1 {
		t.Fatalf("change hook sizes = %v, want sweep reported size 1", sizes)
	}
}
