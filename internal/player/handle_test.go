package player

import (
	"testing"
	"time"
)

func TestPositionClockSkipsPausedTime(t *testing.T) {
	start := time.Now()
	pos := newPositionClock(5000, start)

	if got := pos.advance(start.Add(2*time.Second), false); got != 7000 {
		t.Errorf("position after 2s playing = %d, want 7000", got)
	}
	// Ten seconds stopped must not move the position.
	if got := pos.advance(start.Add(12*time.Second), true); got != 7000 {
		t.Errorf("position after 10s paused = %d, want 7000", got)
	}
	if got := pos.advance(start.Add(13*time.Second), false); got != 8000 {
		t.Errorf("position after resume = %d, want 8000", got)
	}
}
