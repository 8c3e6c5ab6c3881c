package attendance

import (
	"errors"
	"fmt"
)

// Domain outcomes returned by Service. Anything else coming out of the
// service is an infrastructure failure.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrCollegeNotFound   = errors.New("college not found")
	ErrOutsideGeofence   = errors.New("outside geofence")
	ErrAlreadyCheckedIn  = errors.New("already checked in today")
	ErrNotCheckedIn      = errors.New("you have not checked in today")
	ErrAlreadyCheckedOut = errors.New("already checked out")
)

// Store-level signals. Service translates them into domain outcomes.
var (
	// ErrDuplicateDay means a record for (student, day) already exists.
	ErrDuplicateDay = errors.New("attendance record already exists for day")
	// ErrCheckoutConflict means the record was checked out by someone else
	// between the read and the conditional update.
	ErrCheckoutConflict = errors.New("attendance record already checked out")
)

// OutsideGeofenceError carries the measured distance and the radius that was
// exceeded. It matches ErrOutsideGeofence with errors.Is.
type OutsideGeofenceError struct {
	Distance float64
	Radius   float64
}

func (e *OutsideGeofenceError) Error() string {
	return fmt.Sprintf("outside geofence: %.1fm from college, allowed %.1fm", e.Distance, e.Radius)
}

func (e *OutsideGeofenceError) Is(target error) bool {
	return target == ErrOutsideGeofence
}

// IsDomainError reports whether err is one of the expected outcomes of a
// check-in or check-out rather than a system failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidCoordinate,
		ErrCollegeNotFound,
		ErrOutsideGeofence,
		ErrAlreadyCheckedIn,
		ErrNotCheckedIn,
		ErrAlreadyCheckedOut,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
