package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/attendance"
)

type memCards struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func newMemCards() *memCards { return &memCards{saved: map[string][]byte{}} }

func (m *memCards) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc := "mem://" + name
	m.saved[loc] = data
	return loc, nil
}

func (m *memCards) Remove(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, location)
	return nil
}

type failingCreate struct {
	*MemoryDirectory
	err error
}

func (f failingCreate) CreateStudent(context.Context, Student) (Student, error) {
	return Student{}, f.err
}

func seededDirectory() *MemoryDirectory {
	d := NewMemoryDirectory()
	radius := 350.0
	d.AddCollege(College{ID: 1, Name: "Guindy Engineering", Latitude: 13.0108, Longitude: 80.2354, CollegeType: Engineering, GeofenceRadiusM: &radius})
	d.AddCollege(College{ID: 2, Name: "Presidency", Latitude: 13.0690, Longitude: 80.2817, CollegeType: Degree})
	d.AddCourse(Course{ID: 10, Name: "B.E. CSE", Duration: 4, CollegeID: 1})
	d.AddCourse(Course{ID: 20, Name: "B.Sc Physics", Duration: 3, CollegeID: 2})
	return d
}

func validInput() SignupInput {
	return SignupInput{Name: "Asha", RegisterNumber: "REG001", CollegeID: 1, CourseID: 10, Password: "s3cret"}
}

func pngCard() IDCard {
	return IDCard{Filename: "card.PNG", ContentType: "image/png", Data: []byte("png")}
}

func TestSignupAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	dir := seededDirectory()
	cards := newMemCards()
	svc := NewService(dir, cards)

	st, err := svc.Signup(ctx, validInput(), pngCard())
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.ID)
	require.NotNil(t, st.IDCardPath)
	assert.True(t, strings.HasPrefix(*st.IDCardPath, "mem://REG001_"))
	assert.True(t, strings.HasSuffix(*st.IDCardPath, ".png"))
	assert.Len(t, cards.saved, 1)
	assert.NotEqual(t, "s3cret", st.HashedPassword)

	got, err := svc.Authenticate(ctx, "REG001", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)

	_, err = svc.Authenticate(ctx, "REG001", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "NOPE", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	profile, err := svc.Profile(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "Guindy Engineering", profile.College.Name)
	assert.Equal(t, "B.E. CSE", profile.Course.Name)

	loc, err := dir.CollegeLocation(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 350.0, loc.RadiusMeters)
	assert.Equal(t, int64(1), loc.CollegeID)

	_, err = dir.CollegeLocation(ctx, 99)
	assert.ErrorIs(t, err, attendance.ErrCollegeNotFound)
}

func TestSignupRejections(t *testing.T) {
	ctx := context.Background()
	dir := seededDirectory()
	svc := NewService(dir, newMemCards())
	_, err := svc.Signup(ctx, validInput(), pngCard())
	require.NoError(t, err)

	big := pngCard()
	big.Data = make([]byte, MaxIDCardBytes+1)

	tests := []struct {
		name string
		mod  func(*SignupInput, *IDCard)
		want error
	}{
		{"duplicate register", func(in *SignupInput, _ *IDCard) {}, ErrRegisterNumberTaken},
		{"unknown college", func(in *SignupInput, _ *IDCard) { in.RegisterNumber = "R2"; in.CollegeID = 9 }, ErrUnknownCollege},
		{"unknown course", func(in *SignupInput, _ *IDCard) { in.RegisterNumber = "R2"; in.CourseID = 99 }, ErrUnknownCourse},
		{"course of other college", func(in *SignupInput, _ *IDCard) { in.RegisterNumber = "R2"; in.CourseID = 20 }, ErrCourseNotInCollege},
		{"gif content type", func(in *SignupInput, c *IDCard) { in.RegisterNumber = "R2"; c.ContentType = "image/gif" }, ErrInvalidFileType},
		{"pdf extension", func(in *SignupInput, c *IDCard) { in.RegisterNumber = "R2"; c.Filename = "card.pdf" }, ErrInvalidFileExtension},
		{"too large", func(in *SignupInput, c *IDCard) { in.RegisterNumber = "R2"; *c = big }, ErrFileTooLarge},
		{"blank name", func(in *SignupInput, _ *IDCard) { in.RegisterNumber = "R2"; in.Name = "  " }, ErrMissingSignupField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, card := validInput(), pngCard()
			tt.mod(&in, &card)
			_, err := svc.Signup(ctx, in, card)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsSignupRejection(err))
		})
	}
}

func TestSignupRemovesCardWhenInsertFails(t *testing.T) {
	ctx := context.Background()
	cards := newMemCards()

	svc := NewService(failingCreate{MemoryDirectory: seededDirectory(), err: errors.New("db down")}, cards)
	_, err := svc.Signup(ctx, validInput(), pngCard())
	require.Error(t, err)
	assert.False(t, IsSignupRejection(err))
	assert.Empty(t, cards.saved)

	svc = NewService(failingCreate{MemoryDirectory: seededDirectory(), err: ErrRegisterNumberTaken}, cards)
	_, err = svc.Signup(ctx, validInput(), pngCard())
	assert.ErrorIs(t, err, ErrRegisterNumberTaken)
	assert.Empty(t, cards.saved)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "REG_01_2024", safeName("REG/01 2024"))
	assert.Equal(t, "a-b_c", safeName("a-b_c"))
}

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(`
colleges:
  - id: 1
    name: Guindy Engineering
    latitude: 13.0108
    longitude: 80.2354
    district: Chennai
    college_type: Engineering
    geofence_radius_m: 300
    courses:
      - {id: 10, name: B.E. CSE, duration: 4}
  - id: 2
    name: Presidency
    latitude: 13.0690
    longitude: 80.2817
`))
	require.NoError(t, err)
	require.Len(t, seed.Colleges, 2)
	c := seed.Colleges[0]
	assert.Equal(t, "Guindy Engineering", c.Name)
	require.NotNil(t, c.District)
	assert.Equal(t, "Chennai", *c.District)
	require.NotNil(t, c.GeofenceRadiusM)
	assert.Equal(t, 300.0, *c.GeofenceRadiusM)
	require.Len(t, c.Courses, 1)
	assert.Equal(t, 4, c.Courses[0].Duration)
	assert.Equal(t, Others, seed.Colleges[1].CollegeType)

	dir := NewMemoryDirectory()
	require.NoError(t, dir.SeedColleges(context.Background(), seed))
	course, err := dir.GetCourse(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), course.CollegeID)

	_, err = ParseSeed([]byte("colleges:\n  - id: 3\n    name: Far\n    latitude: 123\n    longitude: 0\n"))
	assert.ErrorIs(t, err, attendance.ErrInvalidCoordinate)
	_, err = ParseSeed([]byte("colleges:\n  - name: NoID\n"))
	assert.Error(t, err)
}
