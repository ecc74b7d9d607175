package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/camden-git/surfaceinspect/logger"
)

// ErrInvalidFilename is returned for names that are not a single plain file
// inside the store directory.
var ErrInvalidFilename = errors.New("invalid artifact filename")

// Store defines the interface for saving, retrieving and deleting uploaded
// image artifacts. Artifacts are addressed by bare filename.
type Store interface {
	// Save writes data under filename and returns the stored filename
	Save(filename string, data io.Reader) (string, error)
	// Open returns a reader for an artifact; os.ErrNotExist when missing
	Open(filename string) (io.ReadCloser, os.FileInfo, error)
	// Exists reports whether the artifact is present
	Exists(filename string) (bool, error)
	// Delete removes an artifact; a missing artifact is not an error
	Delete(filename string) error
	// GetFullPath returns the absolute filesystem path for filename
	GetFullPath(filename string) (string, error)
}

// LocalStorage implements the Store interface using one local directory.
type LocalStorage struct {
	basePath string // absolute path to UPLOAD_FOLDER
	log      *logger.Logger
}

// NewLocalStorage creates the directory if needed.
func NewLocalStorage(basePath string, log *logger.Logger) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	log.Info("media.store: initialized local storage", "path", absBasePath)
	return &LocalStorage{basePath: absBasePath, log: log}, nil
}

// BasePath returns the absolute directory artifacts live in.
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

func (ls *LocalStorage) Save(filename string, data io.Reader) (string, error) {
	fullSavePath, err := ls.GetFullPath(filename)
	if err != nil {
		return "", err
	}

	// write to a temp file first so readers never see a partial artifact
	tmp, err := os.CreateTemp(ls.basePath, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in '%s': %w", ls.basePath, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to flush '%s': %w", fullSavePath, err)
	}
	if err := os.Rename(tmpPath, fullSavePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move upload into place at '%s': %w", fullSavePath, err)
	}

	ls.log.Debug("media.store: saved artifact", "path", fullSavePath)
	return filename, nil
}

func (ls *LocalStorage) Open(filename string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(filename)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("artifact not found at '%s': %w", filename, os.ErrNotExist)
		}
		return nil, nil, fmt.Errorf("failed to open artifact '%s': %w", filename, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat artifact '%s': %w", filename, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, nil, fmt.Errorf("artifact not found at '%s': %w", filename, os.ErrNotExist)
	}

	return file, info, nil
}

func (ls *LocalStorage) Exists(filename string) (bool, error) {
	fullPath, err := ls.GetFullPath(filename)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat artifact '%s': %w", filename, err)
	}
	return !info.IsDir(), nil
}

// Delete removes an artifact file
func (ls *LocalStorage) Delete(filename string) error {
	fullPath, err := ls.GetFullPath(filename)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) { // Ignore "not exist" errors
		return fmt.Errorf("failed to delete artifact '%s': %w", filename, err)
	}
	if err == nil {
		ls.log.Info("media.store: deleted artifact", "path", fullPath)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs the containment check
func (ls *LocalStorage) GetFullPath(filename string) (string, error) {
	if !ValidFilename(filename) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	absFullPath := filepath.Clean(filepath.Join(ls.basePath, filename))
	if filepath.Dir(absFullPath) != ls.basePath || !strings.HasPrefix(absFullPath, ls.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: access denied for '%s'", ErrInvalidFilename, filename)
	}

	return absFullPath, nil
}

var _ Store = (*LocalStorage)(nil)
