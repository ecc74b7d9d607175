package detection

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/camden-git/surfaceinspect/logger"
)

const modelDownloadTimeout = 10 * time.Minute

// EnsureModel makes sure a model file exists at path, downloading it from url
// when it is missing. The download lands in a temp file next to path and is
// renamed into place only once complete.
func EnsureModel(ctx context.Context, client *http.Client, path, url string, log *logger.Logger) error {
	if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Size() > 0 {
		return nil
	}
	if url == "" {
		return fmt.Errorf("%w: no model at '%s' and MODEL_URL is not set", ErrModelUnavailable, path)
	}
	if client == nil {
		client = &http.Client{Timeout: modelDownloadTimeout}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	log.Info("detection: downloading model", "url", url, "path", path)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: invalid model url: %v", ErrModelUnavailable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: model download failed: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model download returned status %d", ErrModelUnavailable, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && written == 0 {
		err = fmt.Errorf("empty response body")
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: model download failed: %v", ErrModelUnavailable, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move model into place: %w", err)
	}

	log.Info("detection: model downloaded", "path", path, "bytes", written, "took", time.Since(start).String())
	return nil
}
