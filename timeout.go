package serial

import "time"

// timeout tracks the budget of a single Read or Write call. The deadline is
// fixed when the call starts; every poll recomputes what is left of it.
type timeout struct {
	duration time.Duration
	target   time.Time
}

func newTimeout(d time.Duration) timeout {
	t := timeout{duration: d}
	if d >= 0 {
		t.target = time.Now().Add(d)
	}
	return t
}

func (t timeout) infinite() bool {
	return t.duration < 0
}

func (t timeout) nonBlocking() bool {
	return t.duration == 0
}

// remaining is never negative. Infinite timeouts report zero.
func (t timeout) remaining() time.Duration {
	if t.infinite() {
		return 0
	}
	left := time.Until(t.target)
	if left < 0 {
		return 0
	}
	return left
}

func (t timeout) expired() bool {
	if t.infinite() {
		return false
	}
	return t.remaining() <= 0
}

// pollMillis converts the remaining budget into a poll(2) timeout, rounding
// up so a sub-millisecond remainder still waits instead of busy looping.
func (t timeout) pollMillis() int {
	if t.infinite() {
		return -1
	}
	left := t.remaining()
	return int((left + time.Millisecond - 1) / time.Millisecond)
}
