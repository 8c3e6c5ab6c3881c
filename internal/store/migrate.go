package store

import (
	"context"
	"database/sql"
	"log"
	"sort"

	"github.com/pkg/errors"
)

// Migration is one schema step. Versions are applied in ascending order and
// recorded in schema_migrations.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the full schema history.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "colleges and courses",
		SQL: `
			CREATE TABLE IF NOT EXISTS colleges (
				id               SERIAL PRIMARY KEY,
				name             VARCHAR(255) NOT NULL,
				latitude         DOUBLE PRECISION NOT NULL,
				longitude        DOUBLE PRECISION NOT NULL,
				district         VARCHAR(255),
				college_type     VARCHAR(32) NOT NULL DEFAULT 'Others'
					CHECK (college_type IN ('Engineering', 'Degree', 'Others')),
				department_count INTEGER,
				remarks          VARCHAR(512)
			);

			CREATE TABLE IF NOT EXISTS courses (
				id         SERIAL PRIMARY KEY,
				name       VARCHAR(255) NOT NULL,
				duration   INTEGER NOT NULL,
				college_id INTEGER NOT NULL REFERENCES colleges(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_courses_college ON courses(college_id);
		`,
	},
	{
		Version: 2,
		Name:    "students",
		SQL: `
			CREATE TABLE IF NOT EXISTS students (
				id              SERIAL PRIMARY KEY,
				name            VARCHAR(255) NOT NULL,
				register_number VARCHAR(100) NOT NULL UNIQUE,
				college_id      INTEGER NOT NULL REFERENCES colleges(id) ON DELETE CASCADE,
				course_id       INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
				id_card_path    VARCHAR(1024),
				hashed_password VARCHAR(255) NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_students_college ON students(college_id);
			CREATE INDEX IF NOT EXISTS idx_students_course ON students(course_id);
		`,
	},
	{
		Version: 3,
		Name:    "attendance",
		SQL: `
			CREATE TABLE IF NOT EXISTS attendance (
				id             SERIAL PRIMARY KEY,
				student_id     INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
				date           DATE NOT NULL,
				check_in_time  TIMESTAMPTZ,
				check_out_time TIMESTAMPTZ,
				check_in_lat   DOUBLE PRECISION,
				check_in_lon   DOUBLE PRECISION,
				check_out_lat  DOUBLE PRECISION,
				check_out_lon  DOUBLE PRECISION,
				CONSTRAINT uq_attendance_student_date UNIQUE (student_id, date),
				CONSTRAINT ck_attendance_checkout_after_checkin
					CHECK (check_out_time IS NULL OR check_in_time IS NOT NULL)
			);
			CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date);
		`,
	},
	{
		Version: 4,
		Name:    "geofence distances and per-college radius",
		SQL: `
			ALTER TABLE attendance ADD COLUMN IF NOT EXISTS check_in_distance_m DOUBLE PRECISION;
			ALTER TABLE attendance ADD COLUMN IF NOT EXISTS check_out_distance_m DOUBLE PRECISION;
			ALTER TABLE colleges ADD COLUMN IF NOT EXISTS geofence_radius_m DOUBLE PRECISION
				CHECK (geofence_radius_m IS NULL OR geofence_radius_m > 0);
		`,
	},
	{
		Version: 5,
		Name:    "attendance events",
		SQL: `
			CREATE TABLE IF NOT EXISTS attendance_events (
				id          TEXT PRIMARY KEY,
				kind        VARCHAR(32) NOT NULL,
				student_id  INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
				record_id   INTEGER NOT NULL REFERENCES attendance(id) ON DELETE CASCADE,
				occurred_at TIMESTAMPTZ NOT NULL,
				latitude    DOUBLE PRECISION NOT NULL,
				longitude   DOUBLE PRECISION NOT NULL,
				distance_m  DOUBLE PRECISION NOT NULL,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
			);
			CREATE INDEX IF NOT EXISTS idx_attendance_events_student ON attendance_events(student_id, occurred_at DESC);
		`,
	},
}

// Migrate applies every migration newer than the recorded version, each in
// its own transaction. It returns the number of steps applied.
func Migrate(ctx context.Context, db *sql.DB, migrations []Migration) (int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return 0, errors.Wrap(err, "creating schema_migrations")
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, errors.Wrap(err, "reading schema version")
	}

	applied := 0
	for _, m := range Pending(migrations, current) {
		if err := apply(ctx, db, m); err != nil {
			return applied, err
		}
		log.Printf("migration %d (%s) applied", m.Version, m.Name)
		applied++
	}
	return applied, nil
}

// Pending returns the migrations above version, in ascending order.
func Pending(migrations []Migration, version int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > version {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "migration %d: begin", m.Version)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return errors.Wrapf(err, "migration %d (%s)", m.Version, m.Name)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return errors.Wrapf(err, "migration %d: record version", m.Version)
	}
	return errors.Wrapf(tx.Commit(), "migration %d: commit", m.Version)
}
