package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// DocumentStore is a tree-structured key/value store addressed by
// slash-separated paths, mirroring the Firebase Realtime Database REST model.
// Implementations wrap transport and storage failures in
// apierr.ErrStoreUnavailable.
type DocumentStore interface {
	// Get returns the JSON value at path, or nil when nothing is stored there.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Update shallow-merges fields into the object at path. A nil field value
	// removes that child.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Delete removes the value at path and everything below it. Deleting a
	// missing path is not an error.
	Delete(ctx context.Context, path string) error
	// Push stores value under a new unique, time-ordered child key of path and
	// returns that key.
	Push(ctx context.Context, path string, value any) (string, error)
	Close() error
}

const maxKeyLength = 768

// ValidKey reports whether s can be used as a single path segment.
func ValidKey(s string) bool {
	if s == "" || len(s) > maxKeyLength || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		switch r {
		case '/', '.', '$', '#', '[', ']':
			return false
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// JoinPath joins validated key segments into a store path.
func JoinPath(segments ...string) (string, error) {
	for _, s := range segments {
		if !ValidKey(s) {
			return "", fmt.Errorf("invalid path segment %q", s)
		}
	}
	return strings.Join(segments, "/"), nil
}

// splitPath normalises a path into its segments; the root is an empty slice.
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// NewPushKey returns a unique child key whose lexical order follows creation
// time (UUIDv7).
func NewPushKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate push key: %w", err)
	}
	return id.String(), nil
}

// normalize round-trips v through JSON so stored values never alias caller data.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON encodable: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
