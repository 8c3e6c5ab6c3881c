package directory

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"geoattend/internal/attendance"
	"geoattend/internal/store"
)

const (
	collegeColumns = `id, name, latitude, longitude, district, college_type, department_count, remarks, geofence_radius_m`
	studentColumns = `id, name, register_number, college_id, course_id, id_card_path, hashed_password`
)

// Repository reads and writes colleges, courses and students in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CollegeLocation resolves the college a student is enrolled in.
func (r *Repository) CollegeLocation(ctx context.Context, studentID int64) (attendance.CollegeLocation, error) {
	var (
		loc    attendance.CollegeLocation
		radius sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.latitude, c.longitude, c.geofence_radius_m
		FROM students s
		JOIN colleges c ON c.id = s.college_id
		WHERE s.id = $1
	`, studentID).Scan(&loc.CollegeID, &loc.Point.Lat, &loc.Point.Lon, &radius)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.CollegeLocation{}, attendance.ErrCollegeNotFound
	}
	if err != nil {
		return attendance.CollegeLocation{}, errors.Wrap(err, "selecting college location")
	}
	if radius.Valid {
		loc.RadiusMeters = radius.Float64
	}
	return loc, nil
}

// SubjectExists reports whether a token subject still names a student.
func (r *Repository) SubjectExists(ctx context.Context, studentID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, studentID).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking student")
	}
	return exists, nil
}

func (r *Repository) GetStudent(ctx context.Context, id int64) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	return scanStudent(row, "selecting student")
}

func (r *Repository) GetStudentByRegisterNumber(ctx context.Context, registerNumber string) (Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE register_number = $1`, registerNumber)
	return scanStudent(row, "selecting student by register number")
}

func (r *Repository) GetCollege(ctx context.Context, id int64) (College, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+collegeColumns+` FROM colleges WHERE id = $1`, id)
	c, err := scanCollege(row)
	if errors.Is(err, sql.ErrNoRows) {
		return College{}, ErrNotFound
	}
	if err != nil {
		return College{}, errors.Wrap(err, "selecting college")
	}
	return c, nil
}

func (r *Repository) GetCourse(ctx context.Context, id int64) (Course, error) {
	var c Course
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, duration, college_id FROM courses WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Duration, &c.CollegeID)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrNotFound
	}
	if err != nil {
		return Course{}, errors.Wrap(err, "selecting course")
	}
	return c, nil
}

// CreateStudent inserts a student; a taken register number yields ErrRegisterNumberTaken.
func (r *Repository) CreateStudent(ctx context.Context, s Student) (Student, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO students (name, register_number, college_id, course_id, id_card_path, hashed_password)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, s.Name, s.RegisterNumber, s.CollegeID, s.CourseID, s.IDCardPath, s.HashedPassword).Scan(&s.ID)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Student{}, ErrRegisterNumberTaken
		}
		return Student{}, errors.Wrap(err, "creating student")
	}
	return s, nil
}

// StudentProfile loads the student together with their college and course.
func (r *Repository) StudentProfile(ctx context.Context, studentID int64) (Profile, error) {
	s, err := r.GetStudent(ctx, studentID)
	if err != nil {
		return Profile{}, err
	}
	college, err := r.GetCollege(ctx, s.CollegeID)
	if err != nil {
		return Profile{}, err
	}
	course, err := r.GetCourse(ctx, s.CourseID)
	if err != nil {
		return Profile{}, err
	}
	return newProfile(s, college, course), nil
}

// SeedColleges upserts colleges and their courses in one transaction.
func (r *Repository) SeedColleges(ctx context.Context, seed Seed) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning seed transaction")
	}
	defer tx.Rollback()

	for _, sc := range seed.Colleges {
		c := sc.College
		_, err := tx.ExecContext(ctx, `
			INSERT INTO colleges (`+collegeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				district = EXCLUDED.district,
				college_type = EXCLUDED.college_type,
				department_count = EXCLUDED.department_count,
				remarks = EXCLUDED.remarks,
				geofence_radius_m = EXCLUDED.geofence_radius_m
		`, c.ID, c.Name, c.Latitude, c.Longitude, c.District, string(c.CollegeType), c.DepartmentCount, c.Remarks, c.GeofenceRadiusM)
		if err != nil {
			return errors.Wrapf(err, "seeding college %d", c.ID)
		}
		for _, course := range sc.Courses {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO courses (id, name, duration, college_id)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					duration = EXCLUDED.duration,
					college_id = EXCLUDED.college_id
			`, course.ID, course.Name, course.Duration, c.ID)
			if err != nil {
				return errors.Wrapf(err, "seeding course %d", course.ID)
			}
		}
	}

	for _, table := range []string{"colleges", "courses"} {
		_, err := tx.ExecContext(ctx, `
			SELECT setval(pg_get_serial_sequence('`+table+`', 'id'), COALESCE((SELECT MAX(id) FROM `+table+`), 0) + 1, false)
		`)
		if err != nil {
			return errors.Wrapf(err, "resetting %s sequence", table)
		}
	}
	return errors.Wrap(tx.Commit(), "committing seed")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(s scanner, op string) (Student, error) {
	var (
		st     Student
		idCard sql.NullString
	)
	err := s.Scan(&st.ID, &st.Name, &st.RegisterNumber, &st.CollegeID, &st.CourseID, &idCard, &st.HashedPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	if err != nil {
		return Student{}, errors.Wrap(err, op)
	}
	if idCard.Valid {
		st.IDCardPath = &idCard.String
	}
	return st, nil
}

func scanCollege(s scanner) (College, error) {
	var (
		c         College
		collType  string
		district  sql.NullString
		remarks   sql.NullString
		deptCount sql.NullInt64
		radius    sql.NullFloat64
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Latitude, &c.Longitude, &district, &collType, &deptCount, &remarks, &radius); err != nil {
		return College{}, err
	}
	c.CollegeType = CollegeType(collType)
	if district.Valid {
		c.District = &district.String
	}
	if remarks.Valid {
		c.Remarks = &remarks.String
	}
	if deptCount.Valid {
		n := int(deptCount.Int64)
		c.DepartmentCount = &n
	}
	if radius.Valid {
		c.GeofenceRadiusM = &radius.Float64
	}
	return c, nil
}
