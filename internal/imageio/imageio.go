// Package imageio loads source photographs and writes stitched results.
package imageio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "image-stitcher/internal/errors"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const stage = "load"

// DefaultJPEGQuality is used when a caller passes a quality outside [1, 100].
const DefaultJPEGQuality = 90

// SupportedFormats returns the list of supported image extensions.
func SupportedFormats() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// Load decodes the image at path, applying EXIF orientation.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.NewInputError(stage, fmt.Sprintf("cannot read image %s", path), err)
	}
	if img.Bounds().Empty() {
		return nil, apperrors.NewInputError(stage, fmt.Sprintf("image %s is empty", path), nil)
	}
	return img, nil
}

// Decode reads an image from r, applying EXIF orientation.
func Decode(r io.Reader, name string) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.NewInputError(stage, fmt.Sprintf("cannot decode image %s", name), err)
	}
	if img.Bounds().Empty() {
		return nil, apperrors.NewInputError(stage, fmt.Sprintf("image %s is empty", name), nil)
	}
	return img, nil
}

// Save writes img to path, choosing the encoder from the extension and
// creating parent directories as needed.
func Save(path string, img image.Image, quality int) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(clampQuality(quality))); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// EncodeJPEG returns img encoded as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(quality))); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG returns img encoded as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// JPEGDataURI returns img as a "data:image/jpeg;base64,..." URI.
func JPEGDataURI(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func clampQuality(q int) int {
	if q < 1 || q > 100 {
		return DefaultJPEGQuality
	}
	return q
}
