package chatbot

import (
	"testing"
	"time"
)

func TestIDSourceStrictlyIncreasing(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	s := &idSource{now: func() time.Time { return now }}

	first := s.next()
	if first != now.UnixMilli() {
		t.Errorf("expected timestamp id %d, got %d", now.UnixMilli(), first)
	}

	// same millisecond
	if id := s.next(); id != first+1 {
		t.Errorf("expected %d for a collision, got %d", first+1, id)
	}

	// clock moved backwards
	now = now.Add(-time.Second)
	if id := s.next(); id != first+2 {
		t.Errorf("expected %d after clock went backwards, got %d", first+2, id)
	}

	now = now.Add(time.Hour)
	if id := s.next(); id != now.UnixMilli() {
		t.Errorf("expected timestamp id %d, got %d", now.UnixMilli(), id)
	}
}
