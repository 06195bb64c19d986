// Package geo acquires one-shot location fixes and turns them into display labels.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultTimeout bounds a single fix request.
const DefaultTimeout = 10 * time.Second

// staleTolerance absorbs clock skew between the locator and this process.
const staleTolerance = time.Second

var (
	ErrPermissionDenied    = errors.New("geo: permission denied")
	ErrPositionUnavailable = errors.New("geo: position unavailable")
	ErrTimeout             = errors.New("geo: timeout")
)

// Position is a location fix in decimal degrees.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options are passed through to the platform locator.
type Options struct {
	HighAccuracy bool
	MaximumAge   time.Duration
	Timeout      time.Duration
}

// Locator is the platform's one-shot position query.
type Locator interface {
	Locate(ctx context.Context, opts Options) (Position, error)
}

// Acquirer wraps a Locator with a timeout and error classification.
type Acquirer struct {
	locator Locator
	timeout time.Duration
	now     func() time.Time
}

// NewAcquirer creates an acquirer. A non-positive timeout uses DefaultTimeout.
func NewAcquirer(locator Locator, timeout time.Duration) *Acquirer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Acquirer{locator: locator, timeout: timeout, now: time.Now}
}

type locateResult struct {
	pos Position
	err error
}

// AcquireOnce requests a single fresh high-accuracy fix. Cached fixes are
// refused: a fix older than the request is reported as unavailable.
func (a *Acquirer) AcquireOnce(ctx context.Context) (Position, error) {
	if a.locator == nil {
		return Position{}, fmt.Errorf("%w: no locator configured", ErrPositionUnavailable)
	}
	started := a.now()

	lctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// The locator may ignore its context; the select below still honours the deadline.
	ch := make(chan locateResult, 1)
	go func() {
		pos, err := a.locator.Locate(lctx, Options{HighAccuracy: true, MaximumAge: 0, Timeout: a.timeout})
		ch <- locateResult{pos: pos, err: err}
	}()

	select {
	case <-lctx.Done():
		if err := ctx.Err(); err != nil {
			return Position{}, err
		}
		return Position{}, ErrTimeout
	case res := <-ch:
		if res.err != nil {
			if err := ctx.Err(); err != nil {
				return Position{}, err
			}
			return Position{}, classify(res.err)
		}
		if err := validate(res.pos, started); err != nil {
			return Position{}, err
		}
		return res.pos, nil
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrPositionUnavailable), errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
}

func validate(pos Position, requested time.Time) error {
	if math.IsNaN(pos.Latitude) || math.IsNaN(pos.Longitude) ||
		pos.Latitude < -90 || pos.Latitude > 90 || pos.Longitude < -180 || pos.Longitude > 180 {
		return fmt.Errorf("%w: invalid coordinates %f,%f", ErrPositionUnavailable, pos.Latitude, pos.Longitude)
	}
	if !pos.Timestamp.IsZero() && pos.Timestamp.Before(requested.Add(-staleTolerance)) {
		return fmt.Errorf("%w: stale fix from %s", ErrPositionUnavailable, pos.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// FormatCoordinates renders a position as "19.0760°N, 72.8777°E".
func FormatCoordinates(pos Position) string {
	ns, ew := "N", "E"
	if pos.Latitude < 0 {
		ns = "S"
	}
	if pos.Longitude < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.4f°%s, %.4f°%s", math.Abs(pos.Latitude), ns, math.Abs(pos.Longitude), ew)
}
