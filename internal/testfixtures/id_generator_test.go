package testfixtures

import "testing"

func TestIDGenerator(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator("room")
	next := gen.NextFunc()
	if first, second := next(), next(); first != "room-1" || second != "room-2" {
		t.Fatalf("unexpected sequence %q %q", first, second)
	}

	gen.Reset()
	if got := gen.Next(); got != "room-1" {
		t.Fatalf("expected reset sequence, got %q", got)
	}

	if got := NewIDGenerator("").Next(); got != "id-1" {
		t.Fatalf("expected default prefix, got %q", got)
	}
}
