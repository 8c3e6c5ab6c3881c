package attendance

import "time"

// State is the daily lifecycle position of one student's record.
type State int

const (
	NotStarted State = iota
	CheckedIn
	CheckedOut
)

func (s State) String() string {
	switch s {
	case CheckedIn:
		return "checked_in"
	case CheckedOut:
		return "checked_out"
	default:
		return "not_started"
	}
}

// Record is the attendance of one student for one calendar day.
type Record struct {
	ID               int64
	StudentID        int64
	Day              time.Time
	CheckInAt        *time.Time
	CheckOutAt       *time.Time
	CheckInPoint     *GeoPoint
	CheckOutPoint    *GeoPoint
	CheckInDistance  *float64
	CheckOutDistance *float64
}

// State derives the lifecycle state. A nil record is NotStarted.
func (r *Record) State() State {
	switch {
	case r == nil || r.CheckInAt == nil:
		return NotStarted
	case r.CheckOutAt == nil:
		return CheckedIn
	default:
		return CheckedOut
	}
}

// Status is the answer to "where is this student today".
type Status struct {
	Day        time.Time
	CheckedIn  bool
	CheckedOut bool
	Record     *Record
}

func statusOf(day time.Time, rec *Record) Status {
	st := rec.State()
	return Status{
		Day:        day,
		CheckedIn:  st != NotStarted,
		CheckedOut: st == CheckedOut,
		Record:     rec,
	}
}

// DayOf returns the calendar date of t in loc, as midnight UTC.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Clock supplies the server time used for transitions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
