package capture

import (
	"context"
	"errors"

	"fieldattend/internal/backend"
	"fieldattend/internal/camera"
	"fieldattend/internal/compositor"
	"fieldattend/internal/geo"
)

// User-facing copy shown on Session.ErrorMessage.
const (
	MsgCameraNotReady     = "Camera not ready. Wait for the preview to appear and try again."
	MsgLocationDenied     = "Location access denied. Please enable location permission for this app and try again."
	MsgLocationOff        = "Location unavailable. Turn on GPS / location services and try again."
	MsgLocationTimeout    = "Getting your location took too long. Move to an open area and try again."
	MsgLocationFailed     = "Could not get your location. Please try again."
	MsgCameraDenied       = "Camera access denied. Please allow camera permission and try again."
	MsgCameraStartTimeout = "Camera failed to start. Please try again."
	MsgCameraUnavailable  = "Camera unavailable. Close other apps using the camera and try again."
	MsgCameraFailed       = "Could not start the camera. Please try again."
	MsgEncodeFailed       = "Could not process the photo. Please try again."
	MsgUnsupportedImage   = "That file is not a supported image. Please choose a JPEG or PNG photo."
	MsgNotSignedIn        = "You are not signed in. Please log in again."
	MsgSubmitFailed       = "Failed to mark attendance. Check your connection and try again."
)

// locationFailure maps a geolocation error to copy and a metric reason.
func locationFailure(err error) (msg, reason string) {
	switch {
	case errors.Is(err, geo.ErrPermissionDenied):
		return MsgLocationDenied, "permission_denied"
	case errors.Is(err, geo.ErrPositionUnavailable):
		return MsgLocationOff, "unavailable"
	case errors.Is(err, geo.ErrTimeout):
		return MsgLocationTimeout, "timeout"
	default:
		return MsgLocationFailed, "other"
	}
}

func cameraFailure(err error) (msg, reason string) {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return MsgCameraDenied, "permission_denied"
	case errors.Is(err, camera.ErrTimeout):
		return MsgCameraStartTimeout, "timeout"
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return MsgCameraUnavailable, "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return MsgCameraFailed, "cancelled"
	default:
		return MsgCameraFailed, "other"
	}
}

func composeFailure(err error) string {
	if errors.Is(err, compositor.ErrUnsupportedImage) {
		return MsgUnsupportedImage
	}
	return MsgEncodeFailed
}

func submitFailure(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) {
		if se.Code == 401 {
			return MsgNotSignedIn
		}
		if se.Message != "" {
			return "Failed to mark attendance: " + se.Message
		}
	}
	return MsgSubmitFailed
}
