package compositor

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage reports an upload that could not be decoded.
var ErrUnsupportedImage = errors.New("compositor: unsupported image")

// ImageSource is a static frame, such as a photo picked from the gallery.
type ImageSource struct {
	Image image.Image
}

// Frame returns the static image.
func (s ImageSource) Frame() (image.Image, error) {
	if s.Image == nil {
		return nil, ErrNoSource
	}
	return s.Image, nil
}

// DecodeFile decodes an uploaded JPEG, PNG, GIF, BMP, TIFF or WebP file,
// applying its EXIF orientation so phone photos are upright.
func DecodeFile(r io.Reader) (ImageSource, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return ImageSource{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return ImageSource{Image: img}, nil
}
