package attendance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Event kinds, also used as queue message types.
const (
	EventCheckIn  = "attendance.checkin"
	EventCheckOut = "attendance.checkout"
)

// Event is an audit entry for an accepted transition.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	StudentID  int64     `json:"student_id"`
	RecordID   int64     `json:"record_id"`
	Date       string    `json:"date"`
	OccurredAt time.Time `json:"occurred_at"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	DistanceM  float64   `json:"distance_m"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// NewEvent describes the transition that produced rec.
func NewEvent(kind string, rec Record) Event {
	evt := Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		StudentID: rec.StudentID,
		RecordID:  rec.ID,
		Date:      rec.Day.Format("2006-01-02"),
	}
	at, point, dist := rec.CheckInAt, rec.CheckInPoint, rec.CheckInDistance
	if kind == EventCheckOut {
		at, point, dist = rec.CheckOutAt, rec.CheckOutPoint, rec.CheckOutDistance
	}
	if at != nil {
		evt.OccurredAt = *at
	}
	if point != nil {
		evt.Latitude, evt.Longitude = point.Lat, point.Lon
	}
	if dist != nil {
		evt.DistanceM = *dist
	}
	return evt
}

// Marshal encodes the event as a queue message body.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes a queue message body.
func UnmarshalEvent(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, errors.Wrap(err, "decoding attendance event")
	}
	if evt.ID == "" || evt.StudentID == 0 {
		return Event{}, errors.New("attendance event missing id or student")
	}
	return evt, nil
}

// InsertEvent writes an audit event. Replays of the same event id are ignored.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, kind, student_id, record_id, occurred_at, latitude, longitude, distance_m)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.Kind, evt.StudentID, evt.RecordID, evt.OccurredAt, evt.Latitude, evt.Longitude, evt.DistanceM)
	return errors.Wrap(err, "inserting attendance event")
}

// ListEvents returns the student's audit events, newest first.
func (r *Repository) ListEvents(ctx context.Context, studentID int64, limit, offset int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.kind, e.student_id, e.record_id, a.date, e.occurred_at, e.latitude, e.longitude, e.distance_m, e.created_at
		FROM attendance_events e
		JOIN attendance a ON a.id = e.record_id
		WHERE e.student_id = $1
		ORDER BY e.occurred_at DESC
		LIMIT $2 OFFSET $3
	`, studentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "selecting attendance events")
	}
	defer rows.Close()

	var res []Event
	for rows.Next() {
		var evt Event
		var day time.Time
		if err := rows.Scan(&evt.ID, &evt.Kind, &evt.StudentID, &evt.RecordID, &day, &evt.OccurredAt,
			&evt.Latitude, &evt.Longitude, &evt.DistanceM, &evt.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning attendance events")
		}
		evt.Date = day.Format("2006-01-02")
		res = append(res, evt)
	}
	return res, rows.Err()
}
