// Package image provides the image load boundary: decoding JPEG, PNG and TIFF
// rasters and describing their extent in scene units.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"aero-vision/pkg/geometry"

	_ "golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned for files whose extension or content is not
// one of the supported raster formats.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Raster is a decoded base image.
type Raster struct {
	Path   string      // Original file path, empty when decoded from bytes
	Format string      // Decoder name reported by image.Decode ("jpeg", "png", "tiff")
	Image  image.Image // Decoded pixels
}

// Load decodes the image at path.
func Load(path string) (*Raster, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	r, err := Decode(file)
	if err != nil {
		return nil, err
	}
	r.Path = path
	return r, nil
}

// LoadBytes decodes an in-memory image.
func LoadBytes(data []byte) (*Raster, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads and decodes an image from r.
func Decode(r io.Reader) (*Raster, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("failed to decode image: empty bounds")
	}
	return &Raster{Format: format, Image: img}, nil
}

// Width returns the image width in pixels.
func (r *Raster) Width() int {
	if r == nil || r.Image == nil {
		return 0
	}
	return r.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (r *Raster) Height() int {
	if r == nil || r.Image == nil {
		return 0
	}
	return r.Image.Bounds().Dy()
}

// Extent returns the raster's natural extent in scene units: origin at the
// top-left pixel, one unit per source pixel.
func (r *Raster) Extent() geometry.Rect {
	return Extent(r.Image)
}

// Name returns the file base name, or "Base Imagery" for in-memory rasters.
func (r *Raster) Name() string {
	if r.Path == "" {
		return "Base Imagery"
	}
	return filepath.Base(r.Path)
}

// Extent returns the scene extent of img regardless of its bounds origin.
func Extent(img image.Image) geometry.Rect {
	if img == nil {
		return geometry.Rect{}
	}
	b := img.Bounds()
	return geometry.NewRect(0, 0, float64(b.Dx()), float64(b.Dy()))
}

// SupportedFormats returns the list of supported image extensions.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image extension.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// FileFilter returns a filter description for file dialogs.
func FileFilter() string {
	return "Images (*.png *.jpg *.jpeg *.tif *.tiff)"
}
