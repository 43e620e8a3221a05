package util

import "time"

// Timer measures a run and the stages within it.
type Timer struct {
	start time.Time
	lap   time.Time
}

// StartTimer creates a new timer starting at current time.
func StartTimer() Timer {
	now := time.Now()
	return Timer{start: now, lap: now}
}

// Elapsed returns the time since start, or zero for an unstarted timer.
func (t Timer) Elapsed() time.Duration {
	if t.start.IsZero() {
		return 0
	}
	return time.Since(t.start)
}

// ElapsedMs returns the elapsed milliseconds since start.
func (t Timer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}

// Lap returns the time since the previous lap (or the start) and begins a new one.
func (t *Timer) Lap() time.Duration {
	if t.start.IsZero() {
		return 0
	}
	now := time.Now()
	d := now.Sub(t.lap)
	t.lap = now
	return d
}
