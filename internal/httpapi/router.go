// Package httpapi exposes the capture controller and account calls to the
// app shell over a local HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldattend/internal/auth"
	"fieldattend/internal/backend"
	"fieldattend/internal/capture"
	"fieldattend/internal/httpmiddleware"
	"fieldattend/internal/journal"
	"fieldattend/internal/permission"
)

// maxUploadBytes bounds an uploaded photo.
const maxUploadBytes = 20 << 20

// Controller is the capture flow as driven over HTTP.
type Controller interface {
	Snapshot() capture.Session
	Permissions(ctx context.Context) permission.Status
	StartAction(ctx context.Context, action capture.ActionType) error
	RequestPermissions(ctx context.Context) error
	Capture(ctx context.Context) error
	CaptureUpload(ctx context.Context, r io.Reader) error
	Retake(ctx context.Context) error
	Submit(ctx context.Context) error
	Cancel()
}

// Account is the backend's login and employee lookup.
type Account interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (json.RawMessage, error)
	EmployeeData(ctx context.Context) (*backend.Employee, error)
}

// PreviewSource serves published previews.
type PreviewSource interface {
	Get(id string) ([]byte, string, bool)
}

// Options wires the router. Checks are reported by /healthz, where any
// false answer fails the probe. AllowedOrigins are the browser origins of
// the app shell.
type Options struct {
	Controller     Controller
	Session        *auth.Session
	Account        Account
	Previews       PreviewSource
	History        journal.Store
	Limiter        *httpmiddleware.SimpleTokenBucket
	Checks         map[string]func(context.Context) bool
	AllowedOrigins []string
	Logger         *slog.Logger
	Production     bool
}

type server struct {
	ctrl     Controller
	session  *auth.Session
	account  Account
	previews PreviewSource
	history  journal.Store
	checks   map[string]func(context.Context) bool
	logger   *slog.Logger
}

// NewRouter builds the agent's gin engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Session == nil {
		opts.Session = auth.NewSession()
	}
	s := &server{
		ctrl:     opts.Controller,
		session:  opts.Session,
		account:  opts.Account,
		previews: opts.Previews,
		history:  opts.History,
		checks:   opts.Checks,
		logger:   opts.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics", "/v1/session"},
	}))
	r.Use(securityHeaders(opts.Production))
	r.Use(corsMiddleware(opts.AllowedOrigins))
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Middleware(httpmiddleware.RouteAndIP))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/login", s.login)

	authed := v1.Group("", auth.RequireSession(s.session))
	authed.POST("/logout", s.logout)
	authed.GET("/me", s.me)
	authed.GET("/employee", s.employee)
	authed.GET("/previews/:id", s.preview)
	authed.GET("/attendance/history", s.attendanceHistory)

	sess := authed.Group("/session")
	sess.GET("", s.snapshot)
	sess.POST("/start", s.start)
	sess.POST("/permissions", s.run(s.ctrl.RequestPermissions))
	sess.POST("/capture", s.run(s.ctrl.Capture))
	sess.POST("/upload", s.upload)
	sess.POST("/retake", s.run(s.ctrl.Retake))
	sess.POST("/submit", s.run(s.ctrl.Submit))
	sess.POST("/cancel", s.cancel)

	return r
}

func (s *server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
