//go:build linux

package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sync"
	"sync/atomic"

	"github.com/blackjack/webcam"
)

// FormatMJPG is the V4L2 Motion-JPEG pixel format.
const FormatMJPG = webcam.PixelFormat(uint32('M') | uint32('J')<<8 | uint32('P')<<16 | uint32('G')<<24)

// maxDecodeFailures caps consecutive undecodable frames before giving up.
const maxDecodeFailures = 30

// V4L2Device opens a Video4Linux capture device such as /dev/video0.
type V4L2Device struct {
	Path    string
	Width   uint32
	Height  uint32
	Buffers uint32
}

// Open starts MJPEG streaming on the device.
func (d *V4L2Device) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cam, err := webcam.Open(d.Path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrPermissionDenied, d.Path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, d.Path, err)
	}

	if _, ok := cam.GetSupportedFormats()[FormatMJPG]; !ok {
		cam.Close()
		return nil, fmt.Errorf("%w: %s does not support MJPEG", ErrDeviceUnavailable, d.Path)
	}
	if _, _, _, err := cam.SetImageFormat(FormatMJPG, d.Width, d.Height); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: set format: %v", ErrDeviceUnavailable, err)
	}
	buffers := d.Buffers
	if buffers == 0 {
		buffers = 4
	}
	cam.SetBufferCount(buffers)
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: start streaming: %v", ErrDeviceUnavailable, err)
	}
	return &v4l2Stream{cam: cam}, nil
}

type v4l2Stream struct {
	mu     sync.Mutex
	cam    *webcam.Webcam
	closed atomic.Bool
}

func (s *v4l2Stream) ReadFrame(ctx context.Context) (image.Image, error) {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := s.readOnce()
		switch {
		case err == nil && img != nil:
			return img, nil
		case errors.Is(err, errFrameUndecodable):
			failures++
			if failures >= maxDecodeFailures {
				return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
			}
		case err != nil:
			return nil, err
		}
	}
}

var errFrameUndecodable = errors.New("undecodable frame")

// readOnce waits up to one second for a frame; (nil, nil) means no frame yet.
func (s *v4l2Stream) readOnce() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrReleased
	}

	err := s.cam.WaitForFrame(1)
	switch err.(type) {
	case nil:
	case *webcam.Timeout:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	buf, index, err := s.cam.GetFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	// Frames are mmapped; copy before handing the buffer back.
	frame := make([]byte, len(buf))
	copy(frame, buf)
	s.cam.ReleaseFrame(index)
	if len(frame) == 0 {
		return nil, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errFrameUndecodable, err)
	}
	return img, nil
}

func (s *v4l2Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stopErr := s.cam.StopStreaming()
	closeErr := s.cam.Close()
	return errors.Join(stopErr, closeErr)
}
