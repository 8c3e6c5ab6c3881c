package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Directory resolves a student to the location of their enrolled college.
// It returns ErrCollegeNotFound when the student or college is missing.
type Directory interface {
	CollegeLocation(ctx context.Context, studentID int64) (CollegeLocation, error)
}

// Store persists one record per (student, day). Create must return
// ErrDuplicateDay when the pair already exists and CompleteCheckout must
// return ErrCheckoutConflict when the record is already checked out.
type Store interface {
	FindByDay(ctx context.Context, studentID int64, day time.Time) (*Record, error)
	Create(ctx context.Context, studentID int64, day, at time.Time, point GeoPoint, distance float64) (Record, error)
	CompleteCheckout(ctx context.Context, recordID int64, at time.Time, point GeoPoint, distance float64) (Record, error)
	ListByStudent(ctx context.Context, studentID int64) ([]Record, error)
}

// Service runs the daily check-in/check-out state machine.
type Service struct {
	store     Store
	directory Directory
	fence     *Geofence
	clock     Clock
	loc       *time.Location
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLocation sets the time zone whose calendar date keys records.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// NewService creates a service backed by a store and a directory.
func NewService(store Store, directory Directory, fence *Geofence, opts ...Option) *Service {
	if fence == nil {
		fence = NewGeofence(RadiusPolicy{Default: DefaultRadiusMeters})
	}
	s := &Service{
		store:     store,
		directory: directory,
		fence:     fence,
		clock:     SystemClock,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the time zone whose calendar date keys records.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today returns the calendar day the service is currently keying records by.
func (s *Service) Today() time.Time {
	return DayOf(s.clock.Now(), s.loc)
}

// CheckIn creates today's record when the student is inside the geofence and
// has no record yet.
func (s *Service) CheckIn(ctx context.Context, studentID int64, point GeoPoint) (Record, error) {
	distance, err := s.admit(ctx, studentID, point)
	if err != nil {
		return Record{}, err
	}

	now := s.clock.Now()
	day := DayOf(now, s.loc)

	existing, err := s.store.FindByDay(ctx, studentID, day)
	if err != nil {
		return Record{}, fmt.Errorf("find attendance: %w", err)
	}
	if existing != nil {
		return Record{}, ErrAlreadyCheckedIn
	}

	rec, err := s.store.Create(ctx, studentID, day, now, point, distance)
	if errors.Is(err, ErrDuplicateDay) {
		// lost the race against a concurrent check-in
		return Record{}, ErrAlreadyCheckedIn
	}
	if err != nil {
		return Record{}, fmt.Errorf("create attendance: %w", err)
	}
	return rec, nil
}

// CheckOut completes today's record when the student is inside the geofence
// and checked in but not yet out.
func (s *Service) CheckOut(ctx context.Context, studentID int64, point GeoPoint) (Record, error) {
	distance, err := s.admit(ctx, studentID, point)
	if err != nil {
		return Record{}, err
	}

	now := s.clock.Now()
	day := DayOf(now, s.loc)

	existing, err := s.store.FindByDay(ctx, studentID, day)
	if err != nil {
		return Record{}, fmt.Errorf("find attendance: %w", err)
	}
	switch existing.State() {
	case NotStarted:
		return Record{}, ErrNotCheckedIn
	case CheckedOut:
		return Record{}, ErrAlreadyCheckedOut
	}

	rec, err := s.store.CompleteCheckout(ctx, existing.ID, now, point, distance)
	if errors.Is(err, ErrCheckoutConflict) {
		return Record{}, ErrAlreadyCheckedOut
	}
	if err != nil {
		return Record{}, fmt.Errorf("update attendance: %w", err)
	}
	return rec, nil
}

// Status reports today's state for the student.
func (s *Service) Status(ctx context.Context, studentID int64) (Status, error) {
	return s.StatusOn(ctx, studentID, s.Today())
}

// StatusOn reports the state for the student on day. The calendar date is
// taken in day's own zone.
func (s *Service) StatusOn(ctx context.Context, studentID int64, day time.Time) (Status, error) {
	day = DayOf(day, day.Location())
	rec, err := s.store.FindByDay(ctx, studentID, day)
	if err != nil {
		return Status{}, fmt.Errorf("find attendance: %w", err)
	}
	return statusOf(day, rec), nil
}

// History returns every record of the student, newest day first.
func (s *Service) History(ctx context.Context, studentID int64) ([]Record, error) {
	records, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Day.After(records[j].Day)
	})
	return records, nil
}

// admit validates the point and the geofence of the student's college.
func (s *Service) admit(ctx context.Context, studentID int64, point GeoPoint) (float64, error) {
	if err := point.Validate(); err != nil {
		return 0, err
	}
	college, err := s.directory.CollegeLocation(ctx, studentID)
	if errors.Is(err, ErrCollegeNotFound) {
		return 0, ErrCollegeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve college: %w", err)
	}
	return s.fence.Validate(point, college)
}
