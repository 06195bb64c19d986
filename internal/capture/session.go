package capture

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldattend/internal/geo"
)

// ActionType is whether the session records a check-in or a check-out.
type ActionType string

const (
	CheckIn  ActionType = "check_in"
	CheckOut ActionType = "check_out"
)

// ParseActionType accepts check_in / check_out in any case, with or without
// the separator.
func ParseActionType(s string) (ActionType, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch norm {
	case "checkin":
		return CheckIn, nil
	case "checkout":
		return CheckOut, nil
	}
	return "", fmt.Errorf("unknown action type %q", s)
}

// Label is the overlay heading for the action.
func (a ActionType) Label() string {
	if a == CheckOut {
		return "CHECK OUT"
	}
	return "CHECK IN"
}

// State drives which screen the shell renders.
type State string

const (
	StateInitial             State = "initial"
	StateAwaitingPermissions State = "awaiting_permissions"
	StateCameraActive        State = "camera_active"
	StatePreview             State = "preview"
	StateSubmitting          State = "submitting"
	StateSuccess             State = "success"
	// StateFailed is reserved; failures keep the session in the nearest
	// re-triable state instead.
	StateFailed State = "failed"
)

// holdsImage reports the states in which a session must carry an image.
func (s State) holdsImage() bool {
	return s == StatePreview || s == StateSubmitting || s == StateSuccess
}

// ErrInvalidTransition is returned for operations the current state does
// not allow.
var ErrInvalidTransition = errors.New("capture: operation not valid in current state")

// Image is the composited photo of a session.
type Image struct {
	Bytes       []byte `json:"-"`
	ContentType string `json:"contentType"`
	PreviewURL  string `json:"previewUrl"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Size        int    `json:"size"`
}

// Session is one attendance attempt. Only the Controller mutates it, and
// only through the transition methods below.
type Session struct {
	ID           string        `json:"id"`
	ActionType   ActionType    `json:"actionType"`
	State        State         `json:"state"`
	Location     *geo.Position `json:"location,omitempty"`
	AddressLabel string        `json:"addressLabel,omitempty"`
	CapturedAt   time.Time     `json:"capturedAt"`
	Image        *Image        `json:"image,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	CameraReady  bool          `json:"cameraReady"`
}

func newSession(id string, action ActionType) *Session {
	return &Session{ID: id, ActionType: action, State: StateAwaitingPermissions}
}

func (s *Session) transition(from []State, to State) error {
	for _, f := range from {
		if s.State == f {
			s.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
}

// fixLocation records the one location fix of the session.
func (s *Session) fixLocation(pos geo.Position, label string) error {
	if s.Location != nil {
		return fmt.Errorf("%w: location already fixed", ErrInvalidTransition)
	}
	if s.State != StateAwaitingPermissions {
		return fmt.Errorf("%w: location outside permission stage", ErrInvalidTransition)
	}
	p := pos
	s.Location = &p
	s.AddressLabel = label
	return nil
}

func (s *Session) activateCamera() error {
	if s.Location == nil {
		return fmt.Errorf("%w: camera before location", ErrInvalidTransition)
	}
	s.CameraReady = false
	return s.transition([]State{StateAwaitingPermissions}, StateCameraActive)
}

// fallBack returns a session whose camera failed to the permission stage.
func (s *Session) fallBack(msg string) error {
	if err := s.transition([]State{StateCameraActive, StateAwaitingPermissions}, StateAwaitingPermissions); err != nil {
		return err
	}
	s.CameraReady = false
	s.ErrorMessage = msg
	return nil
}

func (s *Session) capture(img *Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidTransition)
	}
	if err := s.transition([]State{StateCameraActive}, StatePreview); err != nil {
		return err
	}
	s.Image = img
	s.CameraReady = false
	s.ErrorMessage = ""
	return nil
}

// retake drops the image and returns it so its preview can be revoked.
func (s *Session) retake() (*Image, error) {
	if err := s.transition([]State{StatePreview}, StateCameraActive); err != nil {
		return nil, err
	}
	old := s.Image
	s.Image = nil
	s.CameraReady = false
	s.ErrorMessage = ""
	return old, nil
}

func (s *Session) beginSubmit() error {
	if s.Image == nil {
		return fmt.Errorf("%w: no image to submit", ErrInvalidTransition)
	}
	if err := s.transition([]State{StatePreview}, StateSubmitting); err != nil {
		return err
	}
	s.ErrorMessage = ""
	return nil
}

func (s *Session) succeed() error {
	return s.transition([]State{StateSubmitting}, StateSuccess)
}

func (s *Session) failSubmit(msg string) error {
	if err := s.transition([]State{StateSubmitting}, StatePreview); err != nil {
		return err
	}
	s.ErrorMessage = msg
	return nil
}

// Check verifies the session invariants.
func (s *Session) Check() error {
	if (s.Image != nil) != s.State.holdsImage() {
		return fmt.Errorf("image presence %v in state %s", s.Image != nil, s.State)
	}
	switch s.State {
	case StateCameraActive, StatePreview, StateSubmitting, StateSuccess:
		if s.Location == nil {
			return fmt.Errorf("no location in state %s", s.State)
		}
	}
	if s.CameraReady && s.State != StateCameraActive {
		return fmt.Errorf("camera ready in state %s", s.State)
	}
	return nil
}

// clone returns a copy safe to hand outside the controller lock.
func (s *Session) clone() Session {
	out := *s
	if s.Location != nil {
		loc := *s.Location
		out.Location = &loc
	}
	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}
	return out
}
