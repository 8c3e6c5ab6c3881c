package directory

import "errors"

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")

	ErrRegisterNumberTaken  = errors.New("register number already registered")
	ErrUnknownCollege       = errors.New("college not found")
	ErrUnknownCourse        = errors.New("course not found")
	ErrCourseNotInCollege   = errors.New("course does not belong to the specified college")
	ErrInvalidFileType      = errors.New("invalid file type, only JPEG and PNG are allowed")
	ErrInvalidFileExtension = errors.New("invalid file extension, only .jpg, .jpeg and .png are allowed")
	ErrFileTooLarge         = errors.New("file size exceeds the 5MB limit")
	ErrInvalidCredentials   = errors.New("incorrect register number or password")
	ErrMissingSignupField   = errors.New("name, register number and password are required")
)

var signupRejections = []error{
	ErrRegisterNumberTaken,
	ErrUnknownCollege,
	ErrUnknownCourse,
	ErrCourseNotInCollege,
	ErrInvalidFileType,
	ErrInvalidFileExtension,
	ErrFileTooLarge,
	ErrMissingSignupField,
}

// IsSignupRejection reports whether err is a client-side signup problem.
func IsSignupRejection(err error) bool {
	for _, target := range signupRejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
