//go:build !gocv

package detection

import (
	"context"

	"github.com/camden-git/surfaceinspect/logger"
)

// InProcessAvailable reports whether ONNXDetector can run in this build.
const InProcessAvailable = false

// ONNXDetector is unavailable without the gocv build tag.
type ONNXDetector struct{}

func NewONNXDetector(modelPath string, names map[int]string, log *logger.Logger) (*ONNXDetector, error) {
	_ = modelPath
	_ = names
	log.Warn("detection(onnx): binary built without gocv support")
	return nil, ErrInProcessUnavailable
}

func (d *ONNXDetector) Close() error { return nil }

func (d *ONNXDetector) Predict(ctx context.Context, imagePath string, confidence float64) (Prediction, error) {
	_ = ctx
	_ = imagePath
	_ = confidence
	return Prediction{}, ErrInProcessUnavailable
}
