package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrNotAnImage is returned when upload bytes cannot be decoded as a raster image.
var ErrNotAnImage = errors.New("upload is not a decodable image")

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

func extensionForFormat(format string) string {
	if ext, ok := formatExtensions[format]; ok {
		return ext
	}
	return ".jpg"
}

// DefaultMaxImagePixels caps the decoded size of an upload (50 MP).
const DefaultMaxImagePixels = 50_000_000

// DecodeUpload fully decodes data to make sure it is a usable image before it
// is stored or handed to the detector. Images above maxPixels are rejected from
// their header alone; maxPixels <= 0 means DefaultMaxImagePixels.
func DecodeUpload(data []byte, maxPixels int64) (UploadInfo, error) {
	if len(data) == 0 {
		return UploadInfo{}, fmt.Errorf("%w: empty upload", ErrNotAnImage)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return UploadInfo{}, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return UploadInfo{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrNotAnImage, cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return UploadInfo{}, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrNotAnImage, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return UploadInfo{}, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return UploadInfo{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrNotAnImage, bounds.Dx(), bounds.Dy())
	}

	return UploadInfo{Format: format, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
