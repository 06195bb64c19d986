package camera

import (
	"image"
	"sync"
)

// Surface holds the most recent frame of a bound stream, the equivalent of a
// live video element.
type Surface struct {
	mu     sync.RWMutex
	frame  image.Image
	frames uint64

	once  sync.Once
	ready chan struct{}
}

// NewSurface returns an empty surface.
func NewSurface() *Surface {
	return &Surface{ready: make(chan struct{})}
}

func (s *Surface) present(img image.Image) {
	if img == nil {
		return
	}
	s.mu.Lock()
	s.frame = img
	s.frames++
	s.mu.Unlock()
	s.once.Do(func() { close(s.ready) })
}

func (s *Surface) readyCh() <-chan struct{} { return s.ready }

// Ready reports whether the first frame has been decoded.
func (s *Surface) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Frame returns the current frame at the stream's native resolution.
func (s *Surface) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

// Frames returns how many frames have been presented.
func (s *Surface) Frames() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}
