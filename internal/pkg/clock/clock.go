// Package clock supplies the current calendar day for quota-reset comparisons.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current calendar day.
type Clock interface {
	Today() time.Time
}

// Day truncates t to midnight UTC of its calendar date in t's location,
// so that dates compare with == regardless of the zone they came from.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// System is a Clock backed by time.Now in a fixed location.
type System struct {
	Location *time.Location
}

// NewSystem creates a System clock. A nil location means time.Local.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{Location: loc}
}

// Today returns the current date in the clock's location.
func (s *System) Today() time.Time {
	return Day(time.Now().In(s.Location))
}

// Fixed is a settable Clock for tests and replays.
type Fixed struct {
	mu  sync.Mutex
	day time.Time
}

// NewFixed returns a Fixed clock set to the date of t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{day: Day(t)}
}

// Today returns the configured day.
func (f *Fixed) Today() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.day
}

// Set moves the clock to the date of t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.day = Day(t)
	f.mu.Unlock()
}

// AdvanceDays moves the clock forward n days.
func (f *Fixed) AdvanceDays(n int) {
	f.mu.Lock()
	f.day = f.day.AddDate(0, 0, n)
	f.mu.Unlock()
}
