package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/surfaceinspect/logger"
)

const remoteTimeout = 60 * time.Second

// RemoteDetector sends images to an inference sidecar over HTTP.
//
//	POST {baseURL}/predict?conf=0.2   multipart field "image"
//	200 {"names": {"0": "crack"}, "detections": [{"class_index": 0, "confidence": 0.91}]}
type RemoteDetector struct {
	baseURL  string
	client   *http.Client
	fallback map[int]string
	log      *logger.Logger
}

type remoteResponse struct {
	Names      map[int]string `json:"names"`
	Detections []Detection    `json:"detections"`
	Error      string         `json:"error"`
}

// NewRemoteDetector validates baseURL. fallback names are used when the
// sidecar does not send its own.
func NewRemoteDetector(baseURL string, fallback map[int]string, client *http.Client, log *logger.Logger) (*RemoteDetector, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid detector url %q", ErrModelUnavailable, baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: remoteTimeout}
	}
	return &RemoteDetector{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		fallback: fallback,
		log:      log,
	}, nil
}

func (r *RemoteDetector) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *RemoteDetector) Predict(ctx context.Context, imagePath string, confidence float64) (Prediction, error) {
	body, contentType, err := multipartImage(imagePath)
	if err != nil {
		return Prediction{}, err
	}

	endpoint := r.baseURL + "/predict?conf=" + strconv.FormatFloat(confidence, 'f', -1, 64)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to build detector request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to read detector response: %w", err)
	}

	var decoded remoteResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Prediction{}, fmt.Errorf("detector returned status %d", resp.StatusCode)
		}
		return Prediction{}, fmt.Errorf("failed to decode detector response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != "" {
			return Prediction{}, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, decoded.Error)
		}
		return Prediction{}, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	names := decoded.Names
	if len(names) == 0 {
		names = r.fallback
	}

	detections := make([]Detection, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		// the sidecar filters on conf itself; re-check in case it ignores the parameter
		if d.Confidence <= confidence {
			continue
		}
		detections = append(detections, d)
	}

	r.log.Debug("detection(remote): inference done", "image", filepath.Base(imagePath), "detections", len(detections))
	return Prediction{Names: names, Detections: detections}, nil
}

func multipartImage(imagePath string) (io.Reader, string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image for inference: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to copy image into request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
