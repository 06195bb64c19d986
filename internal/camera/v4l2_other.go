//go:build !linux

package camera

import (
	"context"
	"fmt"
)

// V4L2Device is only functional on linux.
type V4L2Device struct {
	Path    string
	Width   uint32
	Height  uint32
	Buffers uint32
}

// Open always fails on this platform.
func (d *V4L2Device) Open(context.Context) (Stream, error) {
	return nil, fmt.Errorf("%w: V4L2 capture is not supported on this platform", ErrDeviceUnavailable)
}
