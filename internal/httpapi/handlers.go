package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fieldattend/internal/backend"
	"fieldattend/internal/camera"
	"fieldattend/internal/capture"
	"fieldattend/internal/compositor"
	"fieldattend/internal/geo"
	"fieldattend/internal/journal"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type startRequest struct {
	Action string `json:"action" binding:"required"`
}

func (s *server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	res, err := s.account.Login(ctx, req.Email, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "email", req.Email, "error", err)
		c.JSON(backendStatus(err), gin.H{"error": errorText(err)})
		return
	}
	if err := s.session.SetToken(res.AccessToken); err != nil {
		s.logger.Error("backend issued an unusable token", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "invalid token from backend"})
		return
	}

	body := gin.H{"user": res.User}
	emp, err := s.account.EmployeeData(ctx)
	if err != nil {
		s.logger.Warn("employee lookup failed", "error", err)
	} else {
		s.session.SetEmployeeID(emp.Identifier())
		body["employee"] = emp
	}
	body["employeeId"] = s.session.EmployeeID()
	c.JSON(http.StatusOK, body)
}

func (s *server) logout(c *gin.Context) {
	if err := s.account.Logout(c.Request.Context()); err != nil {
		s.logger.Warn("backend logout failed", "error", err)
	}
	s.ctrl.Cancel()
	s.session.Clear()
	c.Status(http.StatusNoContent)
}

func (s *server) me(c *gin.Context) {
	raw, err := s.account.Me(c.Request.Context())
	if err != nil {
		c.JSON(backendStatus(err), gin.H{"error": errorText(err)})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (s *server) employee(c *gin.Context) {
	emp, err := s.account.EmployeeData(c.Request.Context())
	if err != nil {
		status := backendStatus(err)
		if errors.Is(err, backend.ErrNoEmployee) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": errorText(err)})
		return
	}
	s.session.SetEmployeeID(emp.Identifier())
	c.JSON(http.StatusOK, emp)
}

func (s *server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.view(c.Request.Context()))
}

func (s *server) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := capture.ParseActionType(req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, s.ctrl.StartAction(c.Request.Context(), action))
}

// run adapts a controller operation with no arguments to a handler.
func (s *server) run(op func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.respond(c, op(c.Request.Context()))
	}
}

func (s *server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	s.respond(c, s.ctrl.CaptureUpload(c.Request.Context(), f))
}

func (s *server) cancel(c *gin.Context) {
	s.ctrl.Cancel()
	c.JSON(http.StatusOK, s.view(c.Request.Context()))
}

func (s *server) preview(c *gin.Context) {
	if s.previews == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	data, ct, ok := s.previews.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, ct, data)
}

func (s *server) attendanceHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusOK, gin.H{"data": []journal.Entry{}})
		return
	}
	employee := s.session.EmployeeID()
	if employee == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no employee linked to this session"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	entries, err := s.history.List(c.Request.Context(), journal.Filter{
		EmployeeID: employee,
		Type:       c.Query("type"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *server) view(ctx context.Context) gin.H {
	return gin.H{
		"session":     s.ctrl.Snapshot(),
		"permissions": s.ctrl.Permissions(ctx),
	}
}

// respond writes the session view with a status derived from err. The
// session's own error message is preferred as the user-facing text.
func (s *server) respond(c *gin.Context, err error) {
	body := s.view(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, body)
		return
	}
	status := statusFor(err)
	msg := errorText(err)
	if snap, ok := body["session"].(capture.Session); ok && snap.ErrorMessage != "" {
		msg = snap.ErrorMessage
	}
	body["error"] = msg
	if status >= http.StatusInternalServerError {
		s.logger.Error("capture operation failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrSubmitInFlight):
		return http.StatusAccepted
	case errors.Is(err, capture.ErrInvalidTransition),
		errors.Is(err, capture.ErrCameraNotReady),
		errors.Is(err, capture.ErrBusy),
		errors.Is(err, capture.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, capture.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrNoEmployee):
		return http.StatusUnauthorized
	case errors.Is(err, compositor.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, geo.ErrPermissionDenied),
		errors.Is(err, geo.ErrPositionUnavailable),
		errors.Is(err, geo.ErrTimeout),
		errors.Is(err, camera.ErrPermissionDenied),
		errors.Is(err, camera.ErrDeviceUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

func backendStatus(err error) int {
	var se *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &se) && se.Code < http.StatusInternalServerError:
		return se.Code
	}
	return http.StatusBadGateway
}

func errorText(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
