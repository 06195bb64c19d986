// Package capture sequences location, camera, compositing and submission for
// one attendance action at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldattend/internal/backend"
	"fieldattend/internal/camera"
	"fieldattend/internal/compositor"
	"fieldattend/internal/geo"
	"fieldattend/internal/journal"
	"fieldattend/internal/permission"
	"fieldattend/internal/preview"
	"fieldattend/internal/queue"
)

// DefaultResetDelay is how long SUCCESS stays on screen before the session
// resets.
const DefaultResetDelay = 3 * time.Second

// Mode selects where the photo comes from.
type Mode string

const (
	ModeCamera Mode = "camera"
	ModeUpload Mode = "upload"
)

// PermissionStrategy decides whether startAction stops at the permission
// screen.
type PermissionStrategy string

const (
	// StrategyExplicitGate waits for RequestPermissions unless the cache
	// says both permissions were granted before.
	StrategyExplicitGate PermissionStrategy = "explicit_gate"
	// StrategyOptimistic acquires immediately and falls back to the
	// permission screen on failure.
	StrategyOptimistic PermissionStrategy = "optimistic"
)

var (
	ErrCameraNotReady = errors.New("capture: camera not ready")
	ErrSubmitInFlight = errors.New("capture: submission already in flight")
	ErrBusy           = errors.New("capture: acquisition already in progress")
	ErrClosed         = errors.New("capture: controller closed")
	// ErrDiscarded is returned when the session an operation belonged to
	// was cancelled or reset before the operation finished.
	ErrDiscarded  = errors.New("capture: session discarded")
	ErrNoEmployee = errors.New("capture: no employee identifier")
)

// LocationAcquirer takes one fresh position fix.
type LocationAcquirer interface {
	AcquireOnce(ctx context.Context) (geo.Position, error)
}

// CameraManager hands out the camera stream.
type CameraManager interface {
	Acquire(ctx context.Context) (*camera.Handle, error)
	Bind(ctx context.Context, h *camera.Handle, surface *camera.Surface) error
	Release(h *camera.Handle)
}

// Compositor burns the overlay onto a frame.
type Compositor interface {
	Compose(src compositor.FrameSource, ov compositor.Overlay) (compositor.Blob, error)
}

// Submitter posts the finished record.
type Submitter interface {
	MarkAttendance(ctx context.Context, s backend.Submission) (*backend.Receipt, error)
}

// AddressResolver turns a fix into the overlay's address line.
type AddressResolver interface {
	Label(ctx context.Context, pos geo.Position) string
}

// PreviewPublisher issues and revokes local preview URLs.
type PreviewPublisher interface {
	Publish(data []byte, contentType string) string
	Revoke(url string)
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

type coordinateLabels struct{}

func (coordinateLabels) Label(_ context.Context, pos geo.Position) string {
	return geo.FormatCoordinates(pos)
}

// Config holds integration-time choices.
type Config struct {
	Mode       Mode
	Strategy   PermissionStrategy
	ResetDelay time.Duration
	Logger     *slog.Logger
	Metrics    *Metrics
}

// Deps are the controller's collaborators. Locator, Compositor and
// Submitter are required; Camera is required in camera mode.
type Deps struct {
	Locator     LocationAcquirer
	Camera      CameraManager
	Compositor  Compositor
	Submitter   Submitter
	Addresses   AddressResolver
	Permissions permission.Cache
	Previews    PreviewPublisher
	Events      Publisher
	// EmployeeID supplies the signed-in employee at submit time.
	EmployeeID func() string
}

// Controller owns the single live capture session.
type Controller struct {
	cfg         Config
	logger      *slog.Logger
	metrics     *Metrics
	locator     LocationAcquirer
	camera      CameraManager
	compositor  Compositor
	submitter   Submitter
	addresses   AddressResolver
	permissions permission.Cache
	previews    PreviewPublisher
	events      Publisher
	employee    func() string
	now         func() time.Time

	permMu sync.Mutex

	mu            sync.Mutex
	session       *Session
	gen           uint64
	acquiring     uint64
	handle        *camera.Handle
	surface       *camera.Surface
	sessionCtx    context.Context
	cancelSession context.CancelFunc
	resetTimer    *time.Timer
	closed        bool
}

// NewController validates cfg and deps and returns an idle controller.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeCamera
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyOptimistic
	}
	if cfg.Mode != ModeCamera && cfg.Mode != ModeUpload {
		return nil, fmt.Errorf("capture: unknown mode %q", cfg.Mode)
	}
	if cfg.Strategy != StrategyExplicitGate && cfg.Strategy != StrategyOptimistic {
		return nil, fmt.Errorf("capture: unknown permission strategy %q", cfg.Strategy)
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	switch {
	case deps.Locator == nil:
		return nil, errors.New("capture: locator required")
	case deps.Compositor == nil:
		return nil, errors.New("capture: compositor required")
	case deps.Submitter == nil:
		return nil, errors.New("capture: submitter required")
	case cfg.Mode == ModeCamera && deps.Camera == nil:
		return nil, errors.New("capture: camera required in camera mode")
	}
	if deps.Addresses == nil {
		deps.Addresses = coordinateLabels{}
	}
	if deps.Permissions == nil {
		deps.Permissions = permission.NewMemoryCache()
	}
	if deps.Previews == nil {
		deps.Previews = preview.NewStore(preview.DefaultPrefix)
	}
	if deps.EmployeeID == nil {
		deps.EmployeeID = func() string { return "" }
	}

	c := &Controller{
		cfg:         cfg,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		locator:     deps.Locator,
		camera:      deps.Camera,
		compositor:  deps.Compositor,
		submitter:   deps.Submitter,
		addresses:   deps.Addresses,
		permissions: deps.Permissions,
		previews:    deps.Previews,
		events:      deps.Events,
		employee:    deps.EmployeeID,
		now:         time.Now,
	}
	c.sessionCtx, c.cancelSession = context.WithCancel(context.Background())
	return c, nil
}

// Snapshot returns a copy of the current session. With no session the
// state is INITIAL.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{State: StateInitial}
	}
	return c.session.clone()
}

// Permissions returns the cached permission outcomes.
func (c *Controller) Permissions(ctx context.Context) permission.Status {
	return c.loadPermissions(ctx)
}

// StartAction begins a session for action. Any session still waiting at
// the permission screen is replaced.
func (c *Controller) StartAction(ctx context.Context, action ActionType) error {
	if action != CheckIn && action != CheckOut {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session != nil {
		if c.session.State != StateAwaitingPermissions {
			st := c.session.State
			c.mu.Unlock()
			return fmt.Errorf("%w: session is %s", ErrInvalidTransition, st)
		}
		if c.acquiring == c.gen {
			c.mu.Unlock()
			return ErrBusy
		}
		c.discardLocked()
	}
	s := newSession(uuid.NewString(), action)
	c.session = s
	c.renewLocked()
	gen := c.gen
	evt := c.eventLocked(journal.TypeSessionStarted, "")
	c.mu.Unlock()

	c.metrics.sessionStarted(action)
	c.logger.Info("capture session started", "session_id", s.ID, "action", action)
	c.emit(evt)

	if c.cfg.Strategy == StrategyExplicitGate && !c.loadPermissions(ctx).Granted(c.cfg.Mode == ModeCamera) {
		return nil
	}
	return c.acquire(ctx, gen)
}

// RequestPermissions runs acquisition for a session waiting at the
// permission screen. A location fix already taken is kept.
func (c *Controller) RequestPermissions(ctx context.Context) error {
	c.mu.Lock()
	if _, err := c.currentLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.gen
	c.mu.Unlock()
	return c.acquire(ctx, gen)
}

func (c *Controller) acquire(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	s, err := c.liveLocked(gen)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if s.State != StateAwaitingPermissions {
		c.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State)
	}
	if c.acquiring == gen {
		c.mu.Unlock()
		return ErrBusy
	}
	c.acquiring = gen
	s.ErrorMessage = ""
	needLocation := s.Location == nil
	if needLocation {
		s.CapturedAt = c.now()
	}
	opCtx, cancel := c.opContextLocked(ctx)
	c.mu.Unlock()
	defer cancel()
	defer c.doneAcquiring(gen)

	if needLocation {
		pos, err := c.locator.AcquireOnce(opCtx)
		if err != nil {
			return c.locationFailed(ctx, gen, err)
		}
		label := c.addresses.Label(opCtx, pos)

		c.mu.Lock()
		s, err := c.liveLocked(gen)
		if err == nil {
			err = s.fixLocation(pos, label)
		}
		c.mu.Unlock()
		if err != nil {
			return err
		}
		c.updatePermissions(ctx, func(p *permission.Status) { p.Location = permission.Granted })
		c.logger.Info("location fixed", "session_id", s.ID, "address", label, "accuracy_m", pos.Accuracy)
	}

	c.mu.Lock()
	s, err = c.liveLocked(gen)
	if err == nil {
		err = s.activateCamera()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if c.cfg.Mode == ModeUpload {
		return nil
	}
	return c.startCamera(ctx, opCtx, gen)
}

// startCamera acquires and binds a stream for a session in CAMERA_ACTIVE.
func (c *Controller) startCamera(ctx, opCtx context.Context, gen uint64) error {
	h, err := c.camera.Acquire(opCtx)
	if err != nil {
		return c.cameraFailed(ctx, gen, nil, err)
	}
	surface := camera.NewSurface()

	c.mu.Lock()
	if _, err := c.liveLocked(gen); err != nil {
		c.mu.Unlock()
		c.camera.Release(h)
		return err
	}
	c.handle, c.surface = h, surface
	c.mu.Unlock()

	if err := c.camera.Bind(opCtx, h, surface); err != nil {
		return c.cameraFailed(ctx, gen, h, err)
	}

	c.mu.Lock()
	s, err := c.liveLocked(gen)
	if err != nil {
		c.mu.Unlock()
		c.camera.Release(h)
		return err
	}
	if c.handle != h {
		c.mu.Unlock()
		c.camera.Release(h)
		return nil
	}
	s.CameraReady = true
	evt := c.eventLocked(journal.TypeCameraReady, "")
	c.mu.Unlock()

	c.updatePermissions(ctx, func(p *permission.Status) { p.Camera = permission.Granted })
	c.logger.Info("camera ready", "session_id", s.ID, "handle", h.ID())
	c.emit(evt)
	return nil
}

func (c *Controller) locationFailed(ctx context.Context, gen uint64, cause error) error {
	msg, reason := locationFailure(cause)

	c.mu.Lock()
	s, err := c.liveLocked(gen)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.releaseCameraLocked()
	s.ErrorMessage = msg
	evt := c.eventLocked(journal.TypeAcquisitionFailed, cause.Error())
	c.mu.Unlock()

	c.metrics.acquisitionFailed(StageLocation, reason)
	c.logger.Warn("location acquisition failed", "session_id", s.ID, "reason", reason, "error", cause)
	if errors.Is(cause, geo.ErrPermissionDenied) {
		c.updatePermissions(ctx, func(p *permission.Status) { p.Location = permission.Denied })
	}
	c.emit(evt)
	return cause
}

// cameraFailed falls back to the permission screen. h is the handle that
// failed, nil when acquisition itself failed. A failure that the session has
// already moved past (an upload finished or a retake holds a newer handle)
// only releases h.
func (c *Controller) cameraFailed(ctx context.Context, gen uint64, h *camera.Handle, cause error) error {
	msg, reason := cameraFailure(cause)

	c.mu.Lock()
	s, err := c.liveLocked(gen)
	if err != nil {
		c.mu.Unlock()
		c.camera.Release(h)
		return err
	}
	if c.handle != h || s.State != StateCameraActive {
		c.mu.Unlock()
		c.camera.Release(h)
		c.logger.Debug("ignoring camera failure of a superseded stream", "session_id", s.ID, "state", s.State, "error", cause)
		return nil
	}
	c.releaseCameraLocked()
	if err := s.fallBack(msg); err != nil {
		c.mu.Unlock()
		return err
	}
	evt := c.eventLocked(journal.TypeAcquisitionFailed, cause.Error())
	c.mu.Unlock()

	c.metrics.acquisitionFailed(StageCamera, reason)
	c.logger.Warn("camera acquisition failed", "session_id", s.ID, "reason", reason, "error", cause)
	if errors.Is(cause, camera.ErrPermissionDenied) {
		c.updatePermissions(ctx, func(p *permission.Status) { p.Camera = permission.Denied })
	}
	c.emit(evt)
	return cause
}

// Capture composites the current camera frame. It fails with
// ErrCameraNotReady, leaving the session untouched apart from its error
// message, until the first frame has arrived.
func (c *Controller) Capture(ctx context.Context) error {
	c.mu.Lock()
	s, err := c.currentLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if s.State != StateCameraActive {
		c.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State)
	}
	if c.surface == nil || !s.CameraReady || !c.surface.Ready() {
		s.ErrorMessage = MsgCameraNotReady
		c.mu.Unlock()
		return ErrCameraNotReady
	}
	evt, err := c.composeLocked(s, c.surface, SourceCamera)
	c.mu.Unlock()
	c.emit(evt)
	return err
}

// CaptureUpload composites an uploaded photo instead of a camera frame.
func (c *Controller) CaptureUpload(ctx context.Context, r io.Reader) error {
	c.mu.Lock()
	s, err := c.currentLocked()
	if err == nil && s.State != StateCameraActive {
		err = fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State)
	}
	gen := c.gen
	c.mu.Unlock()
	if err != nil {
		return err
	}

	src, decodeErr := compositor.DecodeFile(r)

	c.mu.Lock()
	s, err = c.liveLocked(gen)
	if err == nil && s.State != StateCameraActive {
		err = fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State)
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if decodeErr != nil {
		s.ErrorMessage = MsgUnsupportedImage
		c.mu.Unlock()
		c.metrics.captured(SourceUpload, OutcomeFailure)
		return decodeErr
	}
	evt, err := c.composeLocked(s, src, SourceUpload)
	c.mu.Unlock()
	c.emit(evt)
	return err
}

func (c *Controller) composeLocked(s *Session, src compositor.FrameSource, source string) (*journal.Event, error) {
	blob, err := c.compositor.Compose(src, compositor.Overlay{
		ActionLabel:  s.ActionType.Label(),
		AddressLabel: s.AddressLabel,
		Timestamp:    s.CapturedAt,
	})
	if err != nil {
		s.ErrorMessage = composeFailure(err)
		c.metrics.captured(source, OutcomeFailure)
		c.logger.Error("compose failed", "session_id", s.ID, "source", source, "error", err)
		return nil, err
	}

	img := &Image{
		Bytes:       blob.Data,
		ContentType: blob.ContentType,
		Width:       blob.Width,
		Height:      blob.Height,
		Size:        len(blob.Data),
	}
	img.PreviewURL = c.previews.Publish(blob.Data, blob.ContentType)
	c.releaseCameraLocked()
	if err := s.capture(img); err != nil {
		c.previews.Revoke(img.PreviewURL)
		return nil, err
	}
	c.metrics.captured(source, OutcomeSuccess)
	c.logger.Info("image captured", "session_id", s.ID, "source", source, "bytes", img.Size, "width", img.Width, "height", img.Height)
	return c.eventLocked(journal.TypeCaptured, ""), nil
}

// Retake discards the preview and restarts the camera. The location fix,
// address and capturedAt of the session are kept.
func (c *Controller) Retake(ctx context.Context) error {
	c.mu.Lock()
	s, err := c.currentLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	old, err := s.retake()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if old != nil {
		c.previews.Revoke(old.PreviewURL)
	}
	gen := c.gen
	opCtx, cancel := c.opContextLocked(ctx)
	c.mu.Unlock()
	defer cancel()

	c.logger.Info("retake", "session_id", s.ID)
	if c.cfg.Mode == ModeUpload {
		return nil
	}
	return c.startCamera(ctx, opCtx, gen)
}

// Submit sends the previewed image. A call while a submission is in flight
// returns ErrSubmitInFlight without sending anything. The request is not
// cancelled with ctx.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	s, err := c.currentLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if s.State == StateSubmitting {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	if s.State != StatePreview || s.Image == nil {
		st := s.State
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, st)
	}
	employeeID := c.employee()
	if employeeID == "" {
		s.ErrorMessage = MsgNotSignedIn
		c.mu.Unlock()
		return ErrNoEmployee
	}
	if err := s.beginSubmit(); err != nil {
		c.mu.Unlock()
		return err
	}
	sub := backend.Submission{
		Image:       s.Image.Bytes,
		ContentType: s.Image.ContentType,
		Filename:    "selfie.jpg",
		EmployeeID:  employeeID,
		Type:        string(s.ActionType),
		Latitude:    s.Location.Latitude,
		Longitude:   s.Location.Longitude,
		Address:     s.AddressLabel,
		Timestamp:   s.CapturedAt,
	}
	gen := c.gen
	action := s.ActionType
	c.mu.Unlock()

	start := time.Now()
	receipt, subErr := c.submitter.MarkAttendance(context.WithoutCancel(ctx), sub)
	elapsed := time.Since(start).Seconds()

	c.mu.Lock()
	s, err = c.liveLocked(gen)
	if err != nil {
		c.mu.Unlock()
		c.logger.Info("submission finished for a discarded session", "error", subErr)
		return err
	}
	if subErr != nil {
		_ = s.failSubmit(submitFailure(subErr))
		evt := c.eventLocked(journal.TypeSubmitFailed, subErr.Error())
		c.mu.Unlock()

		c.metrics.submitted(action, OutcomeFailure, elapsed)
		c.logger.Warn("attendance submission failed", "session_id", s.ID, "error", subErr)
		c.emit(evt)
		return subErr
	}
	_ = s.succeed()
	evt := c.eventLocked(journal.TypeSubmitted, "")
	if receipt != nil {
		evt.ReceiptID = receipt.ID
	}
	c.scheduleResetLocked(gen)
	c.mu.Unlock()

	c.metrics.submitted(action, OutcomeSuccess, elapsed)
	c.logger.Info("attendance submitted", "session_id", s.ID, "action", action, "employee_id", employeeID)
	c.emit(evt)
	return nil
}

func (c *Controller) scheduleResetLocked(gen uint64) {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(c.cfg.ResetDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.session == nil || c.session.State != StateSuccess {
			return
		}
		c.logger.Debug("session reset after success", "session_id", c.session.ID)
		c.discardLocked()
	})
}

// Cancel discards the session from any state and returns to INITIAL. An
// in-flight submission still completes, but its result is ignored.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	id := c.session.ID
	evt := c.eventLocked(journal.TypeCancelled, "")
	c.discardLocked()
	c.mu.Unlock()

	c.logger.Info("capture session cancelled", "session_id", id)
	c.emit(evt)
}

// Close releases the camera regardless of state and rejects further work.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.discardLocked()
	return nil
}

func (c *Controller) currentLocked() (*Session, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.session == nil {
		return nil, fmt.Errorf("%w: no session", ErrInvalidTransition)
	}
	return c.session, nil
}

// liveLocked returns the session if gen still identifies it.
func (c *Controller) liveLocked(gen uint64) (*Session, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.session == nil || c.gen != gen {
		return nil, ErrDiscarded
	}
	return c.session, nil
}

// renewLocked starts a new generation with a fresh session context.
func (c *Controller) renewLocked() {
	c.cancelSession()
	c.gen++
	c.sessionCtx, c.cancelSession = context.WithCancel(context.Background())
}

func (c *Controller) discardLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.releaseCameraLocked()
	if c.session != nil && c.session.Image != nil {
		c.previews.Revoke(c.session.Image.PreviewURL)
	}
	c.session = nil
	c.acquiring = 0
	c.renewLocked()
}

func (c *Controller) releaseCameraLocked() {
	if c.handle != nil {
		c.camera.Release(c.handle)
	}
	c.handle = nil
	c.surface = nil
	if c.session != nil {
		c.session.CameraReady = false
	}
}

// opContextLocked derives a context cancelled by either ctx or the end of
// the current session.
func (c *Controller) opContextLocked(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.sessionCtx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) doneAcquiring(gen uint64) {
	c.mu.Lock()
	if c.acquiring == gen {
		c.acquiring = 0
	}
	c.mu.Unlock()
}

func (c *Controller) loadPermissions(ctx context.Context) permission.Status {
	st, err := c.permissions.Load(ctx)
	if err != nil {
		c.logger.Warn("permission cache read failed", "error", err)
	}
	return st.Normalize()
}

func (c *Controller) updatePermissions(ctx context.Context, update func(*permission.Status)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	c.permMu.Lock()
	defer c.permMu.Unlock()
	st := c.loadPermissions(ctx)
	update(&st)
	if err := c.permissions.Store(ctx, st); err != nil {
		c.logger.Warn("permission cache write failed", "error", err)
	}
}

func (c *Controller) eventLocked(typ, errText string) *journal.Event {
	s := c.session
	if s == nil {
		return nil
	}
	e := &journal.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		SessionID:  s.ID,
		EmployeeID: c.employee(),
		Action:     string(s.ActionType),
		State:      string(s.State),
		Address:    s.AddressLabel,
		CapturedAt: s.CapturedAt,
		OccurredAt: c.now().UTC(),
		Error:      errText,
	}
	if s.Location != nil {
		lat, lon := s.Location.Latitude, s.Location.Longitude
		e.Latitude, e.Longitude = &lat, &lon
	}
	return e
}

func (c *Controller) emit(evt *journal.Event) {
	if c.events == nil || evt == nil {
		return
	}
	msg, err := evt.Message()
	if err != nil {
		c.logger.Error("encode lifecycle event failed", "type", evt.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.events.Publish(ctx, msg); err != nil {
		c.logger.Warn("publish lifecycle event failed", "type", evt.Type, "session_id", evt.SessionID, "error", err)
	}
}
