package media

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ReadCaptureTime returns the EXIF capture time of a photo in UTC, or nil
// when the image carries no usable EXIF date.
func ReadCaptureTime(data []byte) *time.Time {
	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// not necessarily a problem, most PNGs and screenshots have no EXIF
		return nil
	}

	dt, err := exifData.DateTime()
	if err != nil || dt.IsZero() {
		return nil
	}
	utc := dt.UTC()
	return &utc
}
