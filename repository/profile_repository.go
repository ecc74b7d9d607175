package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camden-git/surfaceinspect/database"
	"github.com/camden-git/surfaceinspect/models"
)

type StoreProfileRepository struct {
	store database.DocumentStore
	now   func() time.Time
}

func NewStoreProfileRepository(store database.DocumentStore) ProfileRepository {
	return &StoreProfileRepository{store: store, now: time.Now}
}

// Get returns the stored profile; a user who never saved one gets an empty
// profile.
func (r *StoreProfileRepository) Get(ctx context.Context, uid string) (models.Profile, error) {
	path, err := userPath(uid, profileNode)
	if err != nil {
		return nil, err
	}

	raw, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	profile := models.Profile{}
	if raw == nil {
		return profile, nil
	}
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("profile for user is not an object: %w", err)
	}
	return profile, nil
}

// Update shallow-merges fields and stamps updated_at.
func (r *StoreProfileRepository) Update(ctx context.Context, uid string, fields map[string]any) error {
	path, err := userPath(uid, profileNode)
	if err != nil {
		return err
	}

	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["updated_at"] = models.NewTimestamp(r.now())

	return r.store.Update(ctx, path, merged)
}
