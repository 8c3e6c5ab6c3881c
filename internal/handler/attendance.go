package handler

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// publishTimeout bounds the audit publish after a transition has been stored.
var publishTimeout = 2 * time.Second

type locationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type transitionFunc func(ctx context.Context, studentID int64, point attendance.GeoPoint) (attendance.Record, error)

func (h *Handler) CheckIn(c *gin.Context) {
	h.transition(c, "check_in", attendance.EventCheckIn, h.Attendance.CheckIn)
}

func (h *Handler) CheckOut(c *gin.Context) {
	h.transition(c, "check_out", attendance.EventCheckOut, h.Attendance.CheckOut)
}

func (h *Handler) transition(c *gin.Context, action, kind string, fn transitionFunc) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Metrics.Transition(action, "bad_request")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": FormatBindingError(err)})
		return
	}
	studentID, _ := auth.StudentID(c)
	point := attendance.GeoPoint{Lat: *req.Latitude, Lon: *req.Longitude}

	rec, err := fn(c.Request.Context(), studentID, point)
	if err != nil {
		h.attendanceError(c, action, studentID, err)
		return
	}
	h.Metrics.Transition(action, "ok")

	if h.Publisher != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), publishTimeout)
		if err := h.Publisher.Publish(ctx, kind, rec); err != nil {
			log.Printf("queue publish %s for record %d failed: %v", kind, rec.ID, err)
		}
		cancel()
	}
	c.JSON(http.StatusOK, newRecordView(rec))
}

// attendanceError maps engine outcomes to HTTP responses.
func (h *Handler) attendanceError(c *gin.Context, action string, studentID int64, err error) {
	var outside *attendance.OutsideGeofenceError
	switch {
	case errors.As(err, &outside):
		h.Metrics.Transition(action, "outside_geofence")
		c.JSON(http.StatusForbidden, gin.H{
			"error":      "you are not within the college premises",
			"distance_m": math.Round(outside.Distance*10) / 10,
			"radius_m":   outside.Radius,
		})
	case errors.Is(err, attendance.ErrInvalidCoordinate):
		h.Metrics.Transition(action, "invalid_coordinate")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		h.Metrics.Transition(action, "already_checked_in")
		c.JSON(http.StatusConflict, gin.H{"error": "Already checked in today"})
	case errors.Is(err, attendance.ErrNotCheckedIn):
		h.Metrics.Transition(action, "not_checked_in")
		c.JSON(http.StatusConflict, gin.H{"error": "You have not checked in today"})
	case errors.Is(err, attendance.ErrAlreadyCheckedOut):
		h.Metrics.Transition(action, "already_checked_out")
		c.JSON(http.StatusConflict, gin.H{"error": "Already checked out"})
	case errors.Is(err, attendance.ErrCollegeNotFound):
		// the student row references a college that no longer exists
		log.Printf("%s: student %d has no resolvable college", action, studentID)
		h.Metrics.Transition(action, "college_not_found")
		c.JSON(http.StatusNotFound, gin.H{"error": "college not found"})
	default:
		log.Printf("%s for student %d failed: %v", action, studentID, err)
		h.Metrics.Transition(action, "error")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	}
}

func (h *Handler) Status(c *gin.Context) {
	studentID, _ := auth.StudentID(c)
	st, err := h.Attendance.Status(c.Request.Context(), studentID)
	if err != nil {
		log.Printf("status for student %d failed: %v", studentID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	c.JSON(http.StatusOK, newStatusView(st))
}

func (h *Handler) History(c *gin.Context) {
	studentID, _ := auth.StudentID(c)
	records, err := h.Attendance.History(c.Request.Context(), studentID)
	if err != nil {
		log.Printf("history for student %d failed: %v", studentID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	items := make([]recordView, 0, len(records))
	for _, rec := range records {
		items = append(items, newRecordView(rec))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) HistoryExcel(c *gin.Context) {
	studentID, _ := auth.StudentID(c)
	records, err := h.Attendance.History(c.Request.Context(), studentID)
	if err != nil {
		log.Printf("history export for student %d failed: %v", studentID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	var buf bytes.Buffer
	if err := report.WriteHistory(&buf, records, h.Attendance.Location()); err != nil {
		log.Printf("history export for student %d failed: %v", studentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance-history.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) ListEvents(c *gin.Context) {
	if h.Events == nil {
		c.JSON(http.StatusOK, gin.H{"events": []attendance.Event{}})
		return
	}
	studentID, _ := auth.StudentID(c)
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = min(parsed, 200)
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	events, err := h.Events.ListEvents(c.Request.Context(), studentID, limit, offset)
	if err != nil {
		log.Printf("events for student %d failed: %v", studentID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	if events == nil {
		events = []attendance.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
