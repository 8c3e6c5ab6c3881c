package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/directory"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/metrics"
)

// EventPublisher hands accepted transitions to the audit pipeline.
type EventPublisher interface {
	Publish(ctx context.Context, kind string, rec attendance.Record) error
}

// EventLister reads the audit trail of a student.
type EventLister interface {
	ListEvents(ctx context.Context, studentID int64, limit, offset int) ([]attendance.Event, error)
}

// Deps wires the handler to its collaborators.
type Deps struct {
	Attendance   *attendance.Service
	Directory    *directory.Service
	Subjects     auth.Subjects
	Issuer       *auth.Issuer
	Publisher    EventPublisher
	Events       EventLister
	Metrics      *metrics.Metrics
	Limiter      httpmiddleware.Limiter
	CookieSecure bool
	// Checks are reported by /healthz; a false result marks the service degraded.
	Checks map[string]func(ctx context.Context) bool
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	return &Handler{Deps: d}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/healthz", h.Healthz)

	authGroup := r.Group("/auth")
	if h.Limiter != nil {
		authGroup.Use(httpmiddleware.RateLimit(h.Limiter, httpmiddleware.ClientIP))
	}
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/token", h.Token)

	protected := r.Group("", auth.StudentAuth(h.Issuer, h.Subjects))
	if h.Limiter != nil {
		protected.Use(httpmiddleware.RateLimit(h.Limiter, httpmiddleware.StudentOrIP))
	}
	protected.GET("/auth/me", h.Me)

	att := protected.Group("/attendance")
	att.POST("/check-in", h.CheckIn)
	att.POST("/check-out", h.CheckOut)
	att.GET("/status", h.Status)
	att.GET("/history", h.History)
	att.GET("/history.xlsx", h.HistoryExcel)
	att.GET("/events", h.ListEvents)
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.Checks {
		healthy := check(ctx)
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
