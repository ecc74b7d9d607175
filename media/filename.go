package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImageRoutePrefix is the public URL prefix artifacts are served under.
const ImageRoutePrefix = "/api/images/"

const maxBaseNameLen = 100

// ValidFilename reports whether name is a single, plain file name.
func ValidFilename(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > 255 {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return !strings.HasPrefix(name, ".")
}

// sanitizeBaseName keeps [A-Za-z0-9._-] from the client supplied name.
func sanitizeBaseName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	if len(name) > maxBaseNameLen {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxBaseNameLen-len(ext)] + ext
	}
	return name
}

// UploadFilename builds the stored name for an upload:
// YYYYmmdd_HHMMSS_<8 hex>_<sanitized client name>. format is the decoded image
// format and supplies the extension when the client name has no raster one.
func UploadFilename(original, format string, now time.Time) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID for upload: %w", err)
	}

	base := sanitizeBaseName(original)
	if base == "" {
		base = "image"
	}
	if !IsRasterImage(base) {
		base += extensionForFormat(format)
	}

	return fmt.Sprintf("%s_%s_%s", now.UTC().Format("20060102_150405"), id.String()[:8], base), nil
}

// ImageURL is the public reference stored in an inspection's image_url.
func ImageURL(filename string) string {
	return ImageRoutePrefix + filename
}

// FilenameFromURL extracts the artifact filename from an image_url.
func FilenameFromURL(imageURL string) (string, error) {
	if imageURL == "" {
		return "", fmt.Errorf("%w: empty image url", ErrInvalidFilename)
	}
	name := imageURL[strings.LastIndex(imageURL, "/")+1:]
	if !ValidFilename(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, imageURL)
	}
	return name, nil
}
