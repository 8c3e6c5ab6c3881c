package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/idcard"
)

// MaxIDCardBytes caps the uploaded ID card size.
const MaxIDCardBytes = 5 << 20

var (
	allowedContentTypes = map[string]bool{"image/jpeg": true, "image/png": true, "image/jpg": true}
	allowedExtensions   = map[string]bool{"jpg": true, "jpeg": true, "png": true}
)

// Store is the persistence the directory service needs. Repository and
// MemoryDirectory both satisfy it.
type Store interface {
	attendance.Directory
	auth.Subjects
	GetStudent(ctx context.Context, id int64) (Student, error)
	GetStudentByRegisterNumber(ctx context.Context, registerNumber string) (Student, error)
	GetCollege(ctx context.Context, id int64) (College, error)
	GetCourse(ctx context.Context, id int64) (Course, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	StudentProfile(ctx context.Context, studentID int64) (Profile, error)
	SeedColleges(ctx context.Context, seed Seed) error
}

type SignupInput struct {
	Name           string
	RegisterNumber string
	CollegeID      int64
	CourseID       int64
	Password       string
}

// IDCard is the uploaded identity card image.
type IDCard struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service handles student registration and login.
type Service struct {
	store Store
	cards idcard.Storage
}

func NewService(store Store, cards idcard.Storage) *Service {
	return &Service{store: store, cards: cards}
}

// Signup validates the enrolment, stores the ID card and creates the student.
func (s *Service) Signup(ctx context.Context, in SignupInput, card IDCard) (Student, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.RegisterNumber = strings.TrimSpace(in.RegisterNumber)
	if in.Name == "" || in.RegisterNumber == "" || in.Password == "" {
		return Student{}, ErrMissingSignupField
	}

	if _, err := s.store.GetStudentByRegisterNumber(ctx, in.RegisterNumber); err == nil {
		return Student{}, ErrRegisterNumberTaken
	} else if !errors.Is(err, ErrNotFound) {
		return Student{}, fmt.Errorf("lookup register number: %w", err)
	}

	college, err := s.store.GetCollege(ctx, in.CollegeID)
	if errors.Is(err, ErrNotFound) {
		return Student{}, ErrUnknownCollege
	}
	if err != nil {
		return Student{}, fmt.Errorf("lookup college: %w", err)
	}
	course, err := s.store.GetCourse(ctx, in.CourseID)
	if errors.Is(err, ErrNotFound) {
		return Student{}, ErrUnknownCourse
	}
	if err != nil {
		return Student{}, fmt.Errorf("lookup course: %w", err)
	}
	if course.CollegeID != college.ID {
		return Student{}, ErrCourseNotInCollege
	}

	ext, err := checkIDCard(card)
	if err != nil {
		return Student{}, err
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return Student{}, fmt.Errorf("hash password: %w", err)
	}

	name := fmt.Sprintf("%s_%s.%s", safeName(in.RegisterNumber), strings.ReplaceAll(uuid.NewString(), "-", ""), ext)
	location, err := s.cards.Save(ctx, name, card.ContentType, card.Data)
	if err != nil {
		return Student{}, fmt.Errorf("store id card: %w", err)
	}

	student, err := s.store.CreateStudent(ctx, Student{
		Name:           in.Name,
		RegisterNumber: in.RegisterNumber,
		CollegeID:      college.ID,
		CourseID:       course.ID,
		IDCardPath:     &location,
		HashedPassword: hashed,
	})
	if err != nil {
		if rmErr := s.cards.Remove(ctx, location); rmErr != nil {
			log.Printf("signup: remove orphaned id card %s: %v", location, rmErr)
		}
		if errors.Is(err, ErrRegisterNumberTaken) {
			return Student{}, ErrRegisterNumberTaken
		}
		return Student{}, fmt.Errorf("create student: %w", err)
	}
	return student, nil
}

// Authenticate checks a register number and password pair.
func (s *Service) Authenticate(ctx context.Context, registerNumber, password string) (Student, error) {
	student, err := s.store.GetStudentByRegisterNumber(ctx, strings.TrimSpace(registerNumber))
	if errors.Is(err, ErrNotFound) {
		return Student{}, ErrInvalidCredentials
	}
	if err != nil {
		return Student{}, fmt.Errorf("lookup student: %w", err)
	}
	if !auth.VerifyPassword(password, student.HashedPassword) {
		return Student{}, ErrInvalidCredentials
	}
	return student, nil
}

func (s *Service) Profile(ctx context.Context, studentID int64) (Profile, error) {
	return s.store.StudentProfile(ctx, studentID)
}

func checkIDCard(card IDCard) (string, error) {
	if !allowedContentTypes[strings.ToLower(card.ContentType)] {
		return "", ErrInvalidFileType
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(card.Filename), "."))
	if !allowedExtensions[ext] {
		return "", ErrInvalidFileExtension
	}
	if len(card.Data) > MaxIDCardBytes {
		return "", ErrFileTooLarge
	}
	return ext, nil
}

// safeName keeps register numbers usable as a file name prefix.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
