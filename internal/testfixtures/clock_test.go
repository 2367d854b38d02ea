package testfixtures

import (
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	t.Parallel()

	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected reference time, got %v", clock.Now())
	}

	if got := clock.Advance(90 * time.Minute); !got.Equal(ReferenceTime().Add(90 * time.Minute)) {
		t.Fatalf("unexpected advanced time %v", got)
	}

	tokyo := time.FixedZone("JST", 9*60*60)
	clock.Set(time.Date(2024, 6, 1, 9, 0, 0, 0, tokyo))
	if clock.Now().Location() != time.UTC || clock.Now().Hour() != 0 {
		t.Fatalf("expected UTC normalisation, got %v", clock.Now())
	}

	now := clock.NowFunc()
	if !now().Equal(clock.Now()) {
		t.Fatalf("NowFunc should track the clock")
	}
}
