package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"fieldattend/internal/auth"
	"fieldattend/internal/backend"
	"fieldattend/internal/capture"
	"fieldattend/internal/compositor"
	"fieldattend/internal/geo"
	"fieldattend/internal/httpmiddleware"
	"fieldattend/internal/journal"
	"fieldattend/internal/permission"
	"fieldattend/internal/preview"
	"fieldattend/internal/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAccount struct {
	token    string
	employee *backend.Employee
	loginErr error
	logouts  int
}

func (a *fakeAccount) Login(_ context.Context, email, password string) (*backend.LoginResult, error) {
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return &backend.LoginResult{AccessToken: a.token, User: json.RawMessage(`{"email":"` + email + `"}`)}, nil
}

func (a *fakeAccount) Logout(context.Context) error {
	a.logouts++
	return nil
}

func (a *fakeAccount) Me(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"id":1}`), nil
}

func (a *fakeAccount) EmployeeData(context.Context) (*backend.Employee, error) {
	if a.employee == nil {
		return nil, backend.ErrNoEmployee
	}
	return a.employee, nil
}

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []backend.Submission
	err  error
}

func (s *recordingSubmitter) MarkAttendance(_ context.Context, sub backend.Submission) (*backend.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Receipt{ID: "att-1"}, nil
}

// recorderPublisher records events synchronously so history is queryable
// as soon as an operation returns.
type recorderPublisher struct {
	rec *journal.Recorder
}

func (p recorderPublisher) Publish(ctx context.Context, msg queue.Message) error {
	p.rec.Handle(ctx, msg)
	return nil
}

const shellOrigin = "http://localhost:5173"

type testEnv struct {
	router    *gin.Engine
	session   *auth.Session
	account   *fakeAccount
	submitter *recordingSubmitter
	history   *journal.MemoryStore
}

func signedToken(t *testing.T, employeeID string) string {
	t.Helper()
	claims := auth.Claims{
		EmployeeID:       employeeID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func newEnv(t *testing.T, limiter *httpmiddleware.SimpleTokenBucket) *testEnv {
	t.Helper()
	comp, err := compositor.New(80, time.UTC)
	if err != nil {
		t.Fatalf("compositor.New: %v", err)
	}
	env := &testEnv{
		session:   auth.NewSession(),
		account:   &fakeAccount{employee: &backend.Employee{ID: "12", EmployeeID: "EMP-9"}},
		submitter: &recordingSubmitter{},
		history:   journal.NewMemoryStore(100),
	}
	env.account.token = signedToken(t, "EMP-1")
	previews := preview.NewStore(preview.DefaultPrefix)

	ctrl, err := capture.NewController(
		capture.Config{Mode: capture.ModeUpload, ResetDelay: time.Hour, Logger: quietLogger()},
		capture.Deps{
			Locator:     geo.NewAcquirer(geo.StaticLocator{Latitude: -6.2, Longitude: 106.8}, time.Second),
			Compositor:  comp,
			Submitter:   env.submitter,
			Permissions: permission.NewMemoryCache(),
			Previews:    previews,
			Events:      recorderPublisher{rec: journal.NewRecorder(env.history, quietLogger())},
			EmployeeID:  env.session.EmployeeID,
		},
	)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })

	env.router = NewRouter(Options{
		Controller:     ctrl,
		Session:        env.session,
		Account:        env.account,
		Previews:       previews,
		History:        env.history,
		Limiter:        limiter,
		AllowedOrigins: []string{shellOrigin},
		Logger:         quietLogger(),
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, path, strings.NewReader(body), "application/json")
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	w := e.postJSON(t, "/v1/login", `{"email":"ana@example.com","password":"pw"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
}

type sessionView struct {
	Session     capture.Session   `json:"session"`
	Permissions permission.Status `json:"permissions"`
	Error       string            `json:"error"`
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var v sessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func uploadBody(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(pngBuf.Bytes()); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestSessionRoutesRequireLogin(t *testing.T) {
	env := newEnv(t, nil)
	for _, path := range []string{"/v1/session", "/v1/me", "/v1/attendance/history"} {
		if w := env.do(t, http.MethodGet, path, nil, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, w.Code)
		}
	}
}

func TestLoginLinksEmployee(t *testing.T) {
	env := newEnv(t, nil)
	env.login(t)
	if got := env.session.EmployeeID(); got != "EMP-9" {
		t.Fatalf("session employee = %q, want EMP-9 from employee data", got)
	}

	w := env.do(t, http.MethodGet, "/v1/me", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"id":1`) {
		t.Fatalf("GET /v1/me = %d %s", w.Code, w.Body.String())
	}
}

func TestLoginErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		loginErr error
		want     int
	}{
		{name: "missing password", body: `{"email":"ana@example.com"}`, want: http.StatusBadRequest},
		{name: "bad email", body: `{"email":"ana","password":"pw"}`, want: http.StatusBadRequest},
		{
			name:     "rejected credentials",
			body:     `{"email":"ana@example.com","password":"nope"}`,
			loginErr: &backend.StatusError{Code: http.StatusUnauthorized, Message: "invalid credentials"},
			want:     http.StatusUnauthorized,
		},
		{
			name:     "backend down",
			body:     `{"email":"ana@example.com","password":"pw"}`,
			loginErr: errors.New("dial tcp: connection refused"),
			want:     http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, nil)
			env.account.loginErr = tt.loginErr
			if w := env.postJSON(t, "/v1/login", tt.body); w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if env.session.Valid() {
				t.Fatal("session should not be valid after a failed login")
			}
		})
	}
}

func TestUploadFlowEndToEnd(t *testing.T) {
	env := newEnv(t, nil)
	env.login(t)

	w := env.postJSON(t, "/v1/session/start", `{"action":"check_in"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", w.Code, w.Body.String())
	}
	v := decodeView(t, w)
	if v.Session.State != capture.StateCameraActive || v.Session.Location == nil {
		t.Fatalf("after start: state %s location %v", v.Session.State, v.Session.Location)
	}
	if v.Permissions.Location != permission.Granted {
		t.Errorf("location permission = %v, want granted", v.Permissions.Location)
	}

	body, ct := uploadBody(t)
	w = env.do(t, http.MethodPost, "/v1/session/upload", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}
	v = decodeView(t, w)
	if v.Session.State != capture.StatePreview || v.Session.Image == nil {
		t.Fatalf("after upload: state %s image %v", v.Session.State, v.Session.Image)
	}

	w = env.do(t, http.MethodGet, v.Session.Image.PreviewURL, nil, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("preview = %d %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = env.postJSON(t, "/v1/session/submit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", w.Code, w.Body.String())
	}
	if v = decodeView(t, w); v.Session.State != capture.StateSuccess {
		t.Fatalf("after submit: state %s", v.Session.State)
	}
	if len(env.submitter.subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(env.submitter.subs))
	}
	sub := env.submitter.subs[0]
	if sub.EmployeeID != "EMP-9" || sub.Type != "check_in" || sub.Latitude != -6.2 {
		t.Errorf("submission = %+v", sub)
	}

	w = env.do(t, http.MethodGet, "/v1/attendance/history?type="+journal.TypeSubmitted, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var hist struct {
		Data []journal.Entry `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Data) != 1 || hist.Data[0].ReceiptID != "att-1" {
		t.Fatalf("history = %+v", hist.Data)
	}
}

func TestCaptureWithoutCameraConflicts(t *testing.T) {
	env := newEnv(t, nil)
	env.login(t)
	env.postJSON(t, "/v1/session/start", `{"action":"check_out"}`)

	w := env.postJSON(t, "/v1/session/capture", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("capture status = %d, want 409", w.Code)
	}
	if v := decodeView(t, w); v.Error != capture.MsgCameraNotReady {
		t.Fatalf("error = %q, want camera-not-ready copy", v.Error)
	}
}

func TestSubmitFailureKeepsPreview(t *testing.T) {
	env := newEnv(t, nil)
	env.submitter.err = fmt.Errorf("%w: %w", backend.ErrSubmissionFailed,
		&backend.StatusError{Code: http.StatusInternalServerError, Message: "db down"})
	env.login(t)
	env.postJSON(t, "/v1/session/start", `{"action":"check_in"}`)
	body, ct := uploadBody(t)
	env.do(t, http.MethodPost, "/v1/session/upload", body, ct)

	w := env.postJSON(t, "/v1/session/submit", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("submit status = %d, want 502 (%s)", w.Code, w.Body.String())
	}
	v := decodeView(t, w)
	if v.Session.State != capture.StatePreview || !strings.Contains(v.Error, "db down") {
		t.Fatalf("after failure: state %s error %q", v.Session.State, v.Error)
	}
}

func TestStartValidationAndCancel(t *testing.T) {
	env := newEnv(t, nil)
	env.login(t)

	if w := env.postJSON(t, "/v1/session/start", `{"action":"lunch"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action status = %d, want 400", w.Code)
	}
	env.postJSON(t, "/v1/session/start", `{"action":"check_in"}`)
	if w := env.postJSON(t, "/v1/session/start", `{"action":"check_in"}`); w.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", w.Code)
	}

	w := env.postJSON(t, "/v1/session/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}
	if v := decodeView(t, w); v.Session.State != capture.StateInitial {
		t.Fatalf("after cancel: state %s", v.Session.State)
	}
	if w := env.postJSON(t, "/v1/session/retake", ""); w.Code != http.StatusConflict {
		t.Fatalf("retake without session status = %d, want 409", w.Code)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	env := newEnv(t, nil)
	env.login(t)
	env.postJSON(t, "/v1/session/start", `{"action":"check_in"}`)

	if w := env.postJSON(t, "/v1/logout", ""); w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", w.Code)
	}
	if env.account.logouts != 1 || env.session.Valid() {
		t.Fatalf("logouts = %d valid = %v", env.account.logouts, env.session.Valid())
	}
	if w := env.do(t, http.MethodGet, "/v1/session", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("session after logout = %d, want 401", w.Code)
	}
}

func TestBearerTokenNeverReplacesSession(t *testing.T) {
	env := newEnv(t, nil)
	get := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w.Code
	}

	if code := get(signedToken(t, "EMP-5")); code != http.StatusUnauthorized {
		t.Fatalf("bearer while signed out = %d, want 401", code)
	}
	if env.session.Valid() {
		t.Fatal("a request token must not sign the agent in")
	}

	env.login(t)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		EmployeeID:       "ATTACKER",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign unsigned token: %v", err)
	}
	for _, token := range []string{signedToken(t, "EMP-5"), unsigned} {
		if code := get(token); code != http.StatusUnauthorized {
			t.Errorf("foreign bearer = %d, want 401", code)
		}
	}
	if env.session.Token() != env.account.token || env.session.EmployeeID() != "EMP-9" {
		t.Fatalf("held session changed: employee %q", env.session.EmployeeID())
	}
	if code := get(env.account.token); code != http.StatusOK {
		t.Fatalf("held bearer = %d, want 200", code)
	}
}

func TestForeignOriginRejected(t *testing.T) {
	env := newEnv(t, nil)
	env.login(t)

	preflight := httptest.NewRequest(http.MethodOptions, "/v1/session/start", nil)
	preflight.Header.Set("Origin", "https://evil.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, preflight)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign preflight = %d, want 403", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign preflight allowed origin %q", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/session/start", strings.NewReader(`{"action":"check_in"}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign start = %d, want 403", w.Code)
	}

	w = env.do(t, http.MethodGet, "/v1/session", nil, "")
	if v := decodeView(t, w); v.Session.State != capture.StateInitial {
		t.Fatalf("foreign request changed state to %s", v.Session.State)
	}
}

func TestHealthzAndPreflight(t *testing.T) {
	env := newEnv(t, nil)
	w := env.do(t, http.MethodGet, "/healthz", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/v1/session/submit", nil)
	req.Header.Set("Origin", shellOrigin)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != shellOrigin {
		t.Fatalf("allow origin = %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{capture.ErrSubmitInFlight, http.StatusAccepted},
		{capture.ErrInvalidTransition, http.StatusConflict},
		{capture.ErrBusy, http.StatusConflict},
		{capture.ErrDiscarded, http.StatusConflict},
		{capture.ErrClosed, http.StatusServiceUnavailable},
		{geo.ErrPermissionDenied, http.StatusUnprocessableEntity},
		{compositor.ErrUnsupportedImage, http.StatusUnsupportedMediaType},
		{&backend.StatusError{Code: 401}, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
