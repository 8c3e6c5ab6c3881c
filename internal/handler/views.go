package handler

import (
	"time"

	"geoattend/internal/attendance"
)

type recordView struct {
	ID                int64      `json:"id"`
	StudentID         int64      `json:"student_id"`
	Date              string     `json:"date"`
	CheckInTime       *time.Time `json:"check_in_time"`
	CheckOutTime      *time.Time `json:"check_out_time"`
	CheckInLat        *float64   `json:"check_in_lat"`
	CheckInLon        *float64   `json:"check_in_lon"`
	CheckOutLat       *float64   `json:"check_out_lat"`
	CheckOutLon       *float64   `json:"check_out_lon"`
	CheckInDistanceM  *float64   `json:"check_in_distance_m,omitempty"`
	CheckOutDistanceM *float64   `json:"check_out_distance_m,omitempty"`
}

func newRecordView(r attendance.Record) recordView {
	v := recordView{
		ID:                r.ID,
		StudentID:         r.StudentID,
		Date:              r.Day.Format("2006-01-02"),
		CheckInTime:       r.CheckInAt,
		CheckOutTime:      r.CheckOutAt,
		CheckInDistanceM:  r.CheckInDistance,
		CheckOutDistanceM: r.CheckOutDistance,
	}
	if p := r.CheckInPoint; p != nil {
		v.CheckInLat, v.CheckInLon = &p.Lat, &p.Lon
	}
	if p := r.CheckOutPoint; p != nil {
		v.CheckOutLat, v.CheckOutLon = &p.Lat, &p.Lon
	}
	return v
}

type statusView struct {
	Date       string      `json:"date"`
	CheckedIn  bool        `json:"checked_in"`
	CheckedOut bool        `json:"checked_out"`
	Record     *recordView `json:"record"`
}

func newStatusView(s attendance.Status) statusView {
	v := statusView{
		Date:       s.Day.Format("2006-01-02"),
		CheckedIn:  s.CheckedIn,
		CheckedOut: s.CheckedOut,
	}
	if s.Record != nil {
		rv := newRecordView(*s.Record)
		v.Record = &rv
	}
	return v
}
