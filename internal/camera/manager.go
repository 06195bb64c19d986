// Package camera manages exclusive access to the device's video stream and
// binds it to a live surface that frames can be captured from.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultReadyTimeout bounds the wait for the first decoded frame.
const DefaultReadyTimeout = 5 * time.Second

var (
	ErrPermissionDenied  = errors.New("camera: permission denied")
	ErrDeviceUnavailable = errors.New("camera: device unavailable")
	ErrTimeout           = errors.New("camera: timed out waiting for first frame")
	ErrReleased          = errors.New("camera: handle released")
	ErrNoFrame           = errors.New("camera: no frame delivered yet")
)

// Device opens the platform video stream.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open hardware stream. Close stops every underlying track and
// turns the camera indicator off.
type Stream interface {
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// Handle is exclusive ownership of one open stream.
type Handle struct {
	id       string
	stream   Stream
	once     sync.Once
	released atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// ID identifies the handle in logs.
func (h *Handle) ID() string { return h.id }

// Released reports whether the stream has been stopped.
func (h *Handle) Released() bool { return h.released.Load() }

// Manager hands out at most one Handle at a time.
type Manager struct {
	device       Device
	readyTimeout time.Duration
	logger       *slog.Logger

	acquireMu sync.Mutex
	mu        sync.Mutex
	current   *Handle
}

// NewManager creates a manager over device.
func NewManager(device Device, readyTimeout time.Duration, logger *slog.Logger) *Manager {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{device: device, readyTimeout: readyTimeout, logger: logger}
}

// Acquire opens a new stream, releasing any handle still held first.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	m.acquireMu.Lock()
	defer m.acquireMu.Unlock()

	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()
	if prev != nil {
		m.logger.Warn("acquire called with a live handle, releasing it", "handle", prev.id)
		m.Release(prev)
	}

	if m.device == nil {
		return nil, fmt.Errorf("%w: no camera device configured", ErrDeviceUnavailable)
	}
	stream, err := m.device.Open(ctx)
	if err != nil {
		return nil, classify(err)
	}

	h := &Handle{id: uuid.NewString(), stream: stream}
	m.mu.Lock()
	m.current = h
	m.mu.Unlock()
	m.logger.Debug("camera acquired", "handle", h.id)
	return h, nil
}

// Bind pumps frames from h into surface and returns once the first frame has
// been presented. It fails with ErrDeviceUnavailable (and ErrTimeout) when no
// frame arrives within the ready timeout.
func (m *Manager) Bind(ctx context.Context, h *Handle, surface *Surface) error {
	if h == nil || h.Released() {
		return ErrReleased
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	h.mu.Unlock()

	failed := make(chan error, 1)
	go m.pump(pumpCtx, h, surface, failed)

	timer := time.NewTimer(m.readyTimeout)
	defer timer.Stop()

	select {
	case <-surface.readyCh():
		return nil
	case err := <-failed:
		return classify(err)
	case <-timer.C:
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) pump(ctx context.Context, h *Handle, surface *Surface, failed chan<- error) {
	for {
		img, err := h.stream.ReadFrame(ctx)
		if ctx.Err() != nil || h.Released() {
			return
		}
		if err != nil {
			if !surface.Ready() {
				failed <- err
			} else {
				m.logger.Warn("camera stream stopped delivering frames", "handle", h.id, "error", err)
			}
			return
		}
		surface.present(img)
	}
}

// Release stops all tracks of h. It is safe to call repeatedly and with nil.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.released.Store(true)
		h.mu.Lock()
		if h.cancel != nil {
			h.cancel()
		}
		h.mu.Unlock()
		if err := h.stream.Close(); err != nil {
			m.logger.Warn("camera stream close failed", "handle", h.id, "error", err)
		}
		m.logger.Debug("camera released", "handle", h.id)
	})

	m.mu.Lock()
	if m.current == h {
		m.current = nil
	}
	m.mu.Unlock()
}

// Active reports whether a handle is currently held.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrDeviceUnavailable):
		return err
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}
