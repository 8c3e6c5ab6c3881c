package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

type dayKey struct {
	studentID int64
	day       time.Time
}

// MemoryStore is an in-process Store for development and tests. It enforces
// the same (student, day) uniqueness as the Postgres schema.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*Record
	byDay  map[dayKey]int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[int64]*Record),
		byDay: make(map[dayKey]int64),
	}
}

func (m *MemoryStore) FindByDay(_ context.Context, studentID int64, day time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byDay[dayKey{studentID, day}]
	if !ok {
		return nil, nil
	}
	rec := cloneRecord(*m.byID[id])
	return &rec, nil
}

func (m *MemoryStore) Create(_ context.Context, studentID int64, day, at time.Time, point GeoPoint, distance float64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey{studentID, day}
	if _, exists := m.byDay[key]; exists {
		return Record{}, ErrDuplicateDay
	}
	m.nextID++
	rec := &Record{
		ID:              m.nextID,
		StudentID:       studentID,
		Day:             day,
		CheckInAt:       &at,
		CheckInPoint:    &point,
		CheckInDistance: &distance,
	}
	m.byID[rec.ID] = rec
	m.byDay[key] = rec.ID
	return cloneRecord(*rec), nil
}

func (m *MemoryStore) CompleteCheckout(_ context.Context, recordID int64, at time.Time, point GeoPoint, distance float64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[recordID]
	if !ok || rec.CheckInAt == nil || rec.CheckOutAt != nil {
		return Record{}, ErrCheckoutConflict
	}
	rec.CheckOutAt = &at
	rec.CheckOutPoint = &point
	rec.CheckOutDistance = &distance
	return cloneRecord(*rec), nil
}

// ListByStudent returns the student's records in no particular order.
func (m *MemoryStore) ListByStudent(_ context.Context, studentID int64) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.byID {
		if rec.StudentID == studentID {
			out = append(out, cloneRecord(*rec))
		}
	}
	return out, nil
}

func cloneRecord(r Record) Record {
	if r.CheckInAt != nil {
		t := *r.CheckInAt
		r.CheckInAt = &t
	}
	if r.CheckOutAt != nil {
		t := *r.CheckOutAt
		r.CheckOutAt = &t
	}
	if r.CheckInPoint != nil {
		p := *r.CheckInPoint
		r.CheckInPoint = &p
	}
	if r.CheckOutPoint != nil {
		p := *r.CheckOutPoint
		r.CheckOutPoint = &p
	}
	if r.CheckInDistance != nil {
		d := *r.CheckInDistance
		r.CheckInDistance = &d
	}
	if r.CheckOutDistance != nil {
		d := *r.CheckOutDistance
		r.CheckOutDistance = &d
	}
	return r
}

// MemoryEventLog keeps audit events in process. Replays of an event id are
// ignored, matching Repository.InsertEvent.
type MemoryEventLog struct {
	mu     sync.Mutex
	seen   map[string]bool
	events []Event
}

// NewMemoryEventLog returns an empty log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{seen: make(map[string]bool)}
}

func (l *MemoryEventLog) InsertEvent(_ context.Context, evt Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[evt.ID] {
		return nil
	}
	l.seen[evt.ID] = true
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	l.events = append(l.events, evt)
	return nil
}

// ListEvents returns the student's events, newest first.
func (l *MemoryEventLog) ListEvents(_ context.Context, studentID int64, limit, offset int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var res []Event
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].StudentID == studentID {
			res = append(res, l.events[i])
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].OccurredAt.After(res[j].OccurredAt) })
	if offset >= len(res) {
		return nil, nil
	}
	res = res[offset:]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
