// Package audit moves accepted attendance transitions through the queue into
// the attendance_events table.
package audit

import (
	"context"
	"log"

	"geoattend/internal/attendance"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
)

// Publisher turns records into queue messages.
type Publisher struct {
	q queue.Publisher
}

func NewPublisher(q queue.Publisher) *Publisher {
	return &Publisher{q: q}
}

// Publish enqueues the event for a transition of kind that produced rec.
func (p *Publisher) Publish(ctx context.Context, kind string, rec attendance.Record) error {
	evt := attendance.NewEvent(kind, rec)
	body, err := evt.Marshal()
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: kind, Body: body})
}

// Sink stores audit events; it must ignore replays of an event id.
type Sink interface {
	InsertEvent(ctx context.Context, evt attendance.Event) error
}

// Recorder consumes the queue and writes every event to a Sink.
type Recorder struct {
	q       queue.Queue
	sink    Sink
	metrics *metrics.Metrics
}

func NewRecorder(q queue.Queue, sink Sink, m *metrics.Metrics) *Recorder {
	return &Recorder{q: q, sink: sink, metrics: m}
}

// Run blocks until ctx is cancelled and the queue channel drains.
func (r *Recorder) Run(ctx context.Context) error {
	messages, err := r.q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		r.handle(ctx, msg)
	}
	return nil
}

func (r *Recorder) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != attendance.EventCheckIn && msg.Type != attendance.EventCheckOut {
		log.Printf("audit: skipping message of type %q", msg.Type)
		r.metrics.Recorded(msg.Type, "skipped")
		return
	}
	evt, err := attendance.UnmarshalEvent(msg.Body)
	if err != nil {
		log.Printf("audit: bad %s message: %v", msg.Type, err)
		r.metrics.Recorded(msg.Type, "invalid")
		return
	}
	if err := r.sink.InsertEvent(ctx, evt); err != nil {
		log.Printf("audit: store event %s failed: %v", evt.ID, err)
		r.metrics.Recorded(evt.Kind, "failed")
		return
	}
	log.Printf("audit: %s student=%d record=%d at %s", evt.Kind, evt.StudentID, evt.RecordID, evt.OccurredAt.Format("15:04:05"))
	r.metrics.Recorded(evt.Kind, "stored")
}
