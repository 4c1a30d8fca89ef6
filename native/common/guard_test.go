package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauseSet(t *testing.T) {
	pauses := NewPauseSet("gauge")
	if err := Guard(pauses, "gauge"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(pauses, "minter"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	pauses.Set("gauge", false)
	if err := Guard(pauses, "gauge"); err != nil {
		t.Fatalf("expected gauge to be resumed, got %v", err)
	}
	if err := Guard(nil, "gauge"); err != nil {
		t.Fatalf("nil pause view must not block: %v", err)
	}
}

func TestManualClockAndWeekStart(t *testing.T) {
	clock := NewManualClock(Week*10 + 5)
	if got := WeekStart(clock.Now()); got != Week*10 {
		t.Fatalf("unexpected week start: %d", got)
	}
	clock.Sleep(Week)
	if got := clock.Now(); got != Week*11+5 {
		t.Fatalf("unexpected time after sleep: %d", got)
	}
	clock.Set(1)
	if got := clock.Now(); got != Week*11+5 {
		t.Fatalf("clock moved backwards to %d", got)
	}
}
