package attendance

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"geoattend/internal/store"
)

const recordColumns = `id, student_id, date, check_in_time, check_out_time,
	check_in_lat, check_in_lon, check_out_lat, check_out_lon,
	check_in_distance_m, check_out_distance_m`

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByDay returns the student's record for day, or nil when there is none.
func (r *Repository) FindByDay(ctx context.Context, studentID int64, day time.Time) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance
		WHERE student_id = $1 AND date = $2
	`, studentID, day)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting attendance by day")
	}
	return &rec, nil
}

// Create inserts the check-in. The uq_attendance_student_date constraint is
// what serialises concurrent check-ins; its violation becomes ErrDuplicateDay.
func (r *Repository) Create(ctx context.Context, studentID int64, day, at time.Time, point GeoPoint, distance float64) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (student_id, date, check_in_time, check_in_lat, check_in_lon, check_in_distance_m)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+recordColumns,
		studentID, day, at, point.Lat, point.Lon, distance)
	rec, err := scanRecord(row)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return Record{}, ErrDuplicateDay
		}
		return Record{}, errors.Wrap(err, "creating attendance")
	}
	return rec, nil
}

// CompleteCheckout sets the check-out fields unless they are already set.
func (r *Repository) CompleteCheckout(ctx context.Context, recordID int64, at time.Time, point GeoPoint, distance float64) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance
		SET check_out_time = $2, check_out_lat = $3, check_out_lon = $4, check_out_distance_m = $5
		WHERE id = $1 AND check_in_time IS NOT NULL AND check_out_time IS NULL
		RETURNING `+recordColumns,
		recordID, at, point.Lat, point.Lon, distance)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrCheckoutConflict
	}
	if err != nil {
		return Record{}, errors.Wrap(err, "updating attendance checkout")
	}
	return rec, nil
}

// ListByStudent returns all records of the student, newest day first.
func (r *Repository) ListByStudent(ctx context.Context, studentID int64) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance
		WHERE student_id = $1
		ORDER BY date DESC
	`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting attendance list")
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning attendance list")
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec                          Record
		checkIn, checkOut            sql.NullTime
		inLat, inLon, outLat, outLon sql.NullFloat64
		inDist, outDist              sql.NullFloat64
	)
	if err := s.Scan(&rec.ID, &rec.StudentID, &rec.Day, &checkIn, &checkOut,
		&inLat, &inLon, &outLat, &outLon, &inDist, &outDist); err != nil {
		return Record{}, err
	}
	rec.Day = DayOf(rec.Day, time.UTC)
	if checkIn.Valid {
		t := checkIn.Time.UTC()
		rec.CheckInAt = &t
	}
	if checkOut.Valid {
		t := checkOut.Time.UTC()
		rec.CheckOutAt = &t
	}
	if inLat.Valid && inLon.Valid {
		rec.CheckInPoint = &GeoPoint{Lat: inLat.Float64, Lon: inLon.Float64}
	}
	if outLat.Valid && outLon.Valid {
		rec.CheckOutPoint = &GeoPoint{Lat: outLat.Float64, Lon: outLon.Float64}
	}
	if inDist.Valid {
		rec.CheckInDistance = &inDist.Float64
	}
	if outDist.Valid {
		rec.CheckOutDistance = &outDist.Float64
	}
	return rec, nil
}
