package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-process DocumentStore used for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	root map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{root: make(map[string]any)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := treeGet(s.root, splitPath(path))
	if !ok {
		return nil, nil
	}
	if m, isMap := node.(map[string]any); isMap && len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("memory store: encode %s: %w", path, err)
	}
	return data, nil
}

func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("memory store: update of %s requires at least one field", path)
	}
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		if !ValidKey(k) {
			return fmt.Errorf("memory store: invalid field name %q", k)
		}
		if v == nil {
			normalized[k] = nil
			continue
		}
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		normalized[k] = nv
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	segments := splitPath(path)
	target := treeEnsure(s.root, segments)
	treeMerge(target, normalized)
	if len(target) == 0 {
		treeDelete(s.root, segments)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	treeDelete(s.root, splitPath(path))
	return nil
}

func (s *MemoryStore) Push(ctx context.Context, path string, value any) (string, error) {
	nv, err := normalize(value)
	if err != nil {
		return "", err
	}
	key, err := NewPushKey()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	treeSet(s.root, append(splitPath(path), key), nv)
	return key, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ DocumentStore = (*MemoryStore)(nil)
