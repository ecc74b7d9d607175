//go:build gocv

package detection

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/camden-git/surfaceinspect/logger"
)

const (
	defaultInputSize    = 640
	defaultNMSThreshold = 0.7
	// class-aware NMS: boxes of different classes are shifted apart so they
	// never suppress each other
	classOffset = 4096
)

// InProcessAvailable reports whether ONNXDetector can run in this build.
const InProcessAvailable = true

// ONNXDetector evaluates a YOLOv8 ONNX export with the OpenCV DNN module.
type ONNXDetector struct {
	mu  sync.Mutex // Forward mutates net state
	net gocv.Net

	names        map[int]string
	inputSize    int
	nmsThreshold float32
	log          *logger.Logger
}

// NewONNXDetector loads the network, preferring CUDA when OpenCV was built
// with it.
func NewONNXDetector(modelPath string, names map[int]string, log *logger.Logger) (*ONNXDetector, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: model path is empty", ErrModelUnavailable)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load ONNX model '%s'", ErrModelUnavailable, modelPath)
	}

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Info("detection(onnx): using CUDA backend")
	} else {
		log.Debug("detection(onnx): CUDA not available, using CPU", "backend_err", cudaBackendErr, "target_err", cudaTargetErr)
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	log.Info("detection(onnx): loaded model", "path", modelPath, "classes", FormatNames(names))

	return &ONNXDetector{
		net:          net,
		names:        names,
		inputSize:    defaultInputSize,
		nmsThreshold: defaultNMSThreshold,
		log:          log,
	}, nil
}

func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Predict runs the model on imagePath and returns the boxes whose best class
// score exceeds confidence, after NMS.
func (d *ONNXDetector) Predict(ctx context.Context, imagePath string, confidence float64) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return Prediction{}, fmt.Errorf("failed to read image file for inference: %s", imagePath)
	}
	defer img.Close()

	input, err := letterbox(img, d.inputSize)
	if err != nil {
		return Prediction{}, err
	}
	defer input.Close()

	blob := gocv.BlobFromImage(input, 1.0/255.0, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	// YOLOv8 head: [1, 4+numClasses, numAnchors], box as cx, cy, w, h
	sizes := output.Size()
	if len(sizes) != 3 || sizes[0] != 1 || sizes[1] < 5 {
		return Prediction{}, fmt.Errorf("unexpected output dimensions %v", sizes)
	}
	rows, cols := sizes[1], sizes[2]
	numClasses := rows - 4

	data, err := output.DataPtrFloat32()
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to read model output: %w", err)
	}

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)
	for i := 0; i < cols; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := data[(4+c)*cols+i]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || float64(bestScore) <= confidence {
			continue
		}

		cx, cy := data[i], data[cols+i]
		w, h := data[2*cols+i], data[3*cols+i]
		off := float32(best * classOffset)
		boxes = append(boxes, image.Rect(
			int(cx-w/2+off), int(cy-h/2),
			int(cx+w/2+off), int(cy+h/2),
		))
		scores = append(scores, bestScore)
		classes = append(classes, best)
	}

	detections := []Detection{}
	if len(boxes) > 0 {
		for _, k := range gocv.NMSBoxes(boxes, scores, float32(confidence), d.nmsThreshold) {
			detections = append(detections, Detection{ClassIndex: classes[k], Confidence: float64(scores[k])})
		}
	}

	d.log.Debug("detection(onnx): inference done", "image", imagePath, "candidates", len(boxes), "kept", len(detections))
	return Prediction{Names: d.names, Detections: detections}, nil
}

// letterbox resizes img to fit a size x size square keeping its aspect ratio
// and pads the rest with the grey Ultralytics uses.
func letterbox(img gocv.Mat, size int) (gocv.Mat, error) {
	w, h := img.Cols(), img.Rows()
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(img, &resized, image.Pt(nw, nh), 0, 0, gocv.InterpolationLinear); err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to resize image: %w", err)
	}

	padW, padH := size-nw, size-nh
	top, left := padH/2, padW/2

	out := gocv.NewMat()
	if err := gocv.CopyMakeBorder(resized, &out, top, padH-top, left, padW-left, gocv.BorderConstant, color.RGBA{R: 114, G: 114, B: 114}); err != nil {
		out.Close()
		return gocv.Mat{}, fmt.Errorf("failed to pad image: %w", err)
	}
	return out, nil
}
