package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/attendance"
	"geoattend/internal/audit"
	"geoattend/internal/auth"
	"geoattend/internal/directory"
	"geoattend/internal/idcard"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
)

var campus = attendance.GeoPoint{Lat: 13.0827, Lon: 80.2707}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type testEnv struct {
	router  *gin.Engine
	dir     *directory.MemoryDirectory
	issuer  *auth.Issuer
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, store attendance.Store) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := directory.NewMemoryDirectory()
	dir.AddCollege(directory.College{ID: 1, Name: "Madras Institute", Latitude: campus.Lat, Longitude: campus.Lon, CollegeType: directory.Engineering})
	dir.AddCourse(directory.Course{ID: 10, Name: "B.E. CSE", Duration: 4, CollegeID: 1})

	clock := fixedClock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	att := attendance.NewService(store, dir, attendance.NewGeofence(attendance.RadiusPolicy{Default: 200}), attendance.WithClock(clock))

	q := queue.NewInMemory(16)
	events := attendance.NewMemoryEventLog()
	m := metrics.New(prometheus.NewRegistry())
	issuer := auth.NewIssuer("secret", "techy-app", 15*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = audit.NewRecorder(q, events, m).Run(ctx) }()

	h := New(Deps{
		Attendance: att,
		Directory:  directory.NewService(dir, idcard.NewLocalStorage(t.TempDir())),
		Subjects:   dir,
		Issuer:     issuer,
		Publisher:  audit.NewPublisher(q),
		Events:     events,
		Metrics:    m,
	})
	r := gin.New()
	h.Routes(r)
	return &testEnv{router: r, dir: dir, issuer: issuer, metrics: m}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) authed(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(req)
}

func signupRequest(t *testing.T, fields map[string]string, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="id_card"; filename="%s"`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func signupFields(register string) map[string]string {
	return map[string]string{
		"name":            "Asha",
		"register_number": register,
		"college_id":      "1",
		"course_id":       "10",
		"password":        "s3cret",
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func north(p attendance.GeoPoint, meters float64) attendance.GeoPoint {
	return attendance.GeoPoint{Lat: p.Lat + meters/111194.93, Lon: p.Lon}
}

func loc(p attendance.GeoPoint) gin.H {
	return gin.H{"latitude": p.Lat, "longitude": p.Lon}
}

func TestAttendanceFlow(t *testing.T) {
	env := newTestEnv(t, attendance.NewMemoryStore())

	w := env.do(signupRequest(t, signupFields("REG001"), "card.png", "image/png", []byte("png")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	student := decode(t, w)
	assert.Equal(t, "REG001", student["register_number"])
	assert.NotContains(t, student, "hashed_password")

	form := url.Values{"username": {"REG001"}, "password": {"s3cret"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tok := decode(t, w)
	token, _ := tok["access_token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, "bearer", tok["token_type"])
	assert.Contains(t, w.Header().Get("Set-Cookie"), auth.CookieName+"=")

	w = env.authed(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "Madras Institute", me["college"].(map[string]any)["name"])
	assert.Equal(t, "B.E. CSE", me["course"].(map[string]any)["name"])

	w = env.authed(t, http.MethodGet, "/attendance/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"date":"2024-03-04","checked_in":false,"checked_out":false,"record":null}`, w.Body.String())

	w = env.authed(t, http.MethodPost, "/attendance/check-out", token, loc(campus))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.authed(t, http.MethodPost, "/attendance/check-in", token, loc(north(campus, 1000)))
	require.Equal(t, http.StatusForbidden, w.Code)
	outside := decode(t, w)
	assert.InDelta(t, 1000, outside["distance_m"], 0.5)
	assert.Equal(t, 200.0, outside["radius_m"])

	w = env.authed(t, http.MethodPost, "/attendance/check-in", token, loc(north(campus, 50)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode(t, w)
	assert.Equal(t, "2024-03-04", rec["date"])
	assert.Equal(t, "2024-03-04T09:00:00Z", rec["check_in_time"])
	assert.Nil(t, rec["check_out_time"])
	assert.InDelta(t, 50, rec["check_in_distance_m"], 0.01)

	w = env.authed(t, http.MethodPost, "/attendance/check-in", token, loc(campus))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Already checked in today"}`, w.Body.String())

	w = env.authed(t, http.MethodPost, "/attendance/check-out", token, loc(campus))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.authed(t, http.MethodPost, "/attendance/check-out", token, loc(campus))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Already checked out"}`, w.Body.String())

	w = env.authed(t, http.MethodGet, "/attendance/status", token, nil)
	status := decode(t, w)
	assert.Equal(t, true, status["checked_in"])
	assert.Equal(t, true, status["checked_out"])

	w = env.authed(t, http.MethodGet, "/attendance/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	assert.Len(t, items, 1)

	w = env.authed(t, http.MethodGet, "/attendance/history.xlsx", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	require.Eventually(t, func() bool {
		w := env.authed(t, http.MethodGet, "/attendance/events", token, nil)
		evts, _ := decode(t, w)["events"].([]any)
		return len(evts) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Transitions.WithLabelValues("check_in", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Transitions.WithLabelValues("check_in", "outside_geofence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Transitions.WithLabelValues("check_out", "already_checked_out")))
}

func TestCheckInValidation(t *testing.T) {
	env := newTestEnv(t, attendance.NewMemoryStore())
	st, err := env.dir.CreateStudent(context.Background(), directory.Student{Name: "B", RegisterNumber: "R2", CollegeID: 1, CourseID: 10})
	require.NoError(t, err)
	tok, err := env.issuer.Issue(st.ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"latitude out of range", gin.H{"latitude": 91, "longitude": 80}, http.StatusUnprocessableEntity},
		{"longitude out of range", gin.H{"latitude": 13, "longitude": -181}, http.StatusUnprocessableEntity},
		{"missing longitude", gin.H{"latitude": 13}, http.StatusUnprocessableEntity},
		{"wrong type", gin.H{"latitude": "north", "longitude": 80}, http.StatusUnprocessableEntity},
		{"empty body", nil, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.authed(t, http.MethodPost, "/attendance/check-in", tok.AccessToken, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := env.authed(t, http.MethodPost, "/attendance/check-in", tok.AccessToken, gin.H{"latitude": 13}).Body.String()
	assert.Contains(t, w, "Field 'longitude' is required")

	w2 := env.authed(t, http.MethodPost, "/attendance/check-in", "", loc(campus))
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestCheckInCollegeMissing(t *testing.T) {
	env := newTestEnv(t, attendance.NewMemoryStore())
	st, err := env.dir.CreateStudent(context.Background(), directory.Student{Name: "C", RegisterNumber: "R3", CollegeID: 99, CourseID: 10})
	require.NoError(t, err)
	tok, err := env.issuer.Issue(st.ID)
	require.NoError(t, err)

	w := env.authed(t, http.MethodPost, "/attendance/check-in", tok.AccessToken, loc(campus))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"college not found"}`, w.Body.String())
}

type brokenStore struct{ attendance.Store }

func (brokenStore) FindByDay(context.Context, int64, time.Time) (*attendance.Record, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) ListByStudent(context.Context, int64) ([]attendance.Record, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsServiceUnavailable(t *testing.T) {
	env := newTestEnv(t, brokenStore{})
	st, err := env.dir.CreateStudent(context.Background(), directory.Student{Name: "D", RegisterNumber: "R4", CollegeID: 1, CourseID: 10})
	require.NoError(t, err)
	tok, err := env.issuer.Issue(st.ID)
	require.NoError(t, err)

	for _, path := range []string{"/attendance/check-in", "/attendance/check-out"} {
		w := env.authed(t, http.MethodPost, path, tok.AccessToken, loc(campus))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.JSONEq(t, `{"error":"service unavailable"}`, w.Body.String())
	}
	for _, path := range []string{"/attendance/status", "/attendance/history"} {
		w := env.authed(t, http.MethodGet, path, tok.AccessToken, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestSignupErrors(t *testing.T) {
	env := newTestEnv(t, attendance.NewMemoryStore())
	require.Equal(t, http.StatusCreated, env.do(signupRequest(t, signupFields("REG001"), "card.jpg", "image/jpeg", []byte("jpg"))).Code)

	w := env.do(signupRequest(t, signupFields("REG001"), "card.jpg", "image/jpeg", []byte("jpg")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "register number already registered")

	w = env.do(signupRequest(t, signupFields("REG002"), "card.gif", "image/gif", []byte("gif")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	fields := signupFields("REG003")
	delete(fields, "password")
	w = env.do(signupRequest(t, fields, "card.png", "image/png", []byte("png")))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Field 'password' is required")

	w = env.do(signupRequest(t, signupFields("REG004"), "card.png", "image/png", make([]byte, directory.MaxIDCardBytes+10)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "5MB")
}

func TestTokenRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t, attendance.NewMemoryStore())
	require.Equal(t, http.StatusCreated, env.do(signupRequest(t, signupFields("REG001"), "card.png", "image/png", []byte("png"))).Code)

	w := env.authed(t, http.MethodPost, "/auth/token", "", gin.H{"register_number": "REG001", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = env.authed(t, http.MethodPost, "/auth/token", "", gin.H{"register_number": "REG001", "password": "s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Deps{Checks: map[string]func(context.Context) bool{
		"db":    func(context.Context) bool { return true },
		"redis": func(context.Context) bool { return false },
	}})
	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.GET("/", h.Root)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","db":true,"redis":false}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

type stalledPublisher struct{ calls chan struct{} }

func (p stalledPublisher) Publish(ctx context.Context, _ string, _ attendance.Record) error {
	p.calls <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledPublishDoesNotHoldRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	old := publishTimeout
	publishTimeout = 20 * time.Millisecond
	t.Cleanup(func() { publishTimeout = old })

	dir := directory.NewMemoryDirectory()
	dir.AddCollege(directory.College{ID: 1, Name: "Madras Institute", Latitude: campus.Lat, Longitude: campus.Lon})
	st, err := dir.CreateStudent(context.Background(), directory.Student{Name: "E", RegisterNumber: "R5", CollegeID: 1})
	require.NoError(t, err)
	issuer := auth.NewIssuer("secret", "techy-app", 15*time.Minute)
	tok, err := issuer.Issue(st.ID)
	require.NoError(t, err)

	pub := stalledPublisher{calls: make(chan struct{}, 1)}
	h := New(Deps{
		Attendance: attendance.NewService(attendance.NewMemoryStore(), dir, nil),
		Subjects:   dir,
		Issuer:     issuer,
		Publisher:  pub,
	})
	r := gin.New()
	h.Routes(r)
	env := &testEnv{router: r}

	done := make(chan int, 1)
	go func() {
		done <- env.authed(t, http.MethodPost, "/attendance/check-in", tok.AccessToken, loc(campus)).Code
	}()
	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("check-in still waiting on the audit publish")
	}
	assert.Len(t, pub.calls, 1)
}
