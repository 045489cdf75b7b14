package reconnect

import "time"

// Backoff yields the wait before the next connection attempt.
type Backoff interface {
	Next() time.Duration
}

// ScheduleFunc creates a fresh Backoff for one outage.
type ScheduleFunc func() Backoff

var initialWaits = [...]time.Duration{
	5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second,
	5 * time.Second, 5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	40 * time.Second,
	50 * time.Second,
	60 * time.Second,
}

// steadyWait repeats forever once initialWaits is exhausted.
const steadyWait = 60 * time.Second

// Schedule is a cursor over the standard reconnect sequence.
// The zero value is ready to use.
type Schedule struct {
	pos int
}

// NewSchedule returns a cursor positioned at the first wait.
func NewSchedule() *Schedule {
	return &Schedule{}
}

// Next returns the next wait and advances the cursor.
func (s *Schedule) Next() time.Duration {
	if s.pos < len(initialWaits) {
		d := initialWaits[s.pos]
		s.pos++
		return d
	}
	return steadyWait
}

// Standard is the ScheduleFunc used unless a component is configured
// otherwise.
func Standard() Backoff {
	return NewSchedule()
}
