// Package detection runs the damage detection model against stored uploads.
//
// Two backends implement Detector: ONNXDetector evaluates a YOLO export
// in-process through OpenCV (build tag gocv) and RemoteDetector posts the
// image to an inference sidecar. Provider constructs the configured backend
// lazily on first use.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrModelUnavailable is returned when the model cannot be loaded or reached.
var ErrModelUnavailable = errors.New("detection model unavailable")

// ErrInProcessUnavailable is returned by the onnx backend when the binary was
// built without gocv.
var ErrInProcessUnavailable = fmt.Errorf("%w: in-process ONNX inference requires building with -tags gocv; set DETECTOR_BACKEND=remote otherwise", ErrModelUnavailable)

// DefaultClassNames is the class list of the bundled surface damage model,
// indexed by class id.
var DefaultClassNames = []string{
	"algae",
	"crack",
	"major_crack",
	"minor_crack",
	"peeling",
	"spalling",
	"stain",
}

// Detection is one box above the confidence threshold.
type Detection struct {
	ClassIndex int     `json:"class_index"`
	Confidence float64 `json:"confidence"`
}

// Prediction is the detector output for one image.
type Prediction struct {
	Names      map[int]string
	Detections []Detection
}

// Labels maps every detection to its class name. Indices missing from Names
// become "class_<n>".
func (p Prediction) Labels() []string {
	labels := make([]string, 0, len(p.Detections))
	for _, d := range p.Detections {
		name, ok := p.Names[d.ClassIndex]
		if !ok || name == "" {
			name = fmt.Sprintf("class_%d", d.ClassIndex)
		}
		labels = append(labels, name)
	}
	return labels
}

// Detector runs inference on an image file. Implementations must be safe for
// concurrent use.
type Detector interface {
	Predict(ctx context.Context, imagePath string, confidence float64) (Prediction, error)
	Close() error
}

// NamesFromList indexes a class list by position.
func NamesFromList(list []string) map[int]string {
	names := make(map[int]string, len(list))
	for i, n := range list {
		names[i] = n
	}
	return names
}

func sortedIndices(names map[int]string) []int {
	idx := make([]int, 0, len(names))
	for i := range names {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
