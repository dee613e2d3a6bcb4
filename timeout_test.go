package serial

import (
	"testing"
	"time"
)

func TestTimeoutInfinite(t *testing.T) {
	to := newTimeout(TimeoutInfinite)

	if !to.infinite() {
		t.Error("Expected infinite timeout")
	}
	if to.expired() {
		t.Error("Infinite timeout must never expire")
	}
	if got := to.pollMillis(); got != -1 {
		t.Errorf("pollMillis() = %d, want -1", got)
	}
}

func TestTimeoutNonBlocking(t *testing.T) {
	to := newTimeout(TimeoutNonBlocking)

	if !to.nonBlocking() {
		t.Error("Expected non-blocking timeout")
	}
	if !to.expired() {
		t.Error("Non-blocking timeout is expired from the start")
	}
	if got := to.pollMillis(); got != 0 {
		t.Errorf("pollMillis() = %d, want 0", got)
	}
}

func TestTimeoutFinite(t *testing.T) {
	to := newTimeout(50 * time.Millisecond)

	if to.infinite() || to.nonBlocking() {
		t.Fatal("Expected a finite timeout")
	}
	if to.expired() {
		t.Error("Fresh 50ms timeout must not be expired")
	}
	if got := to.pollMillis(); got <= 0 || got > 50 {
		t.Errorf("pollMillis() = %d, want within (0, 50]", got)
	}

	time.Sleep(60 * time.Millisecond)

	if !to.expired() {
		t.Error("Timeout should be expired after its duration")
	}
	if got := to.remaining(); got != 0 {
		t.Errorf("remaining() = %v, want 0", got)
	}
	if got := to.pollMillis(); got != 0 {
		t.Errorf("pollMillis() = %d, want 0", got)
	}
}

func TestTimeoutRoundsUp(t *testing.T) {
	to := newTimeout(1500 * time.Microsecond)
	if got := to.pollMillis(); got < 1 || got > 2 {
		t.Errorf("pollMillis() = %d, want 1 or 2", got)
	}
}
