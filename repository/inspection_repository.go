package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/database"
	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/models"
)

const (
	usersRoot             = "users"
	inspectionsCollection = "inspections"
	profileNode           = "profile"
)

type StoreInspectionRepository struct {
	store database.DocumentStore
	limit int
	log   *logger.Logger
}

// NewStoreInspectionRepository returns a repository listing at most limit
// records per call; limit <= 0 disables the cap.
func NewStoreInspectionRepository(store database.DocumentStore, limit int, log *logger.Logger) InspectionRepository {
	return &StoreInspectionRepository{store: store, limit: limit, log: log}
}

func userPath(uid string, rest ...string) (string, error) {
	path, err := database.JoinPath(append([]string{usersRoot, uid}, rest...)...)
	if err != nil {
		return "", apierr.Wrap(apierr.ErrAuthInvalid, "uid cannot address storage")
	}
	return path, nil
}

func (r *StoreInspectionRepository) recordPath(uid, id string) (string, error) {
	if !database.ValidKey(id) {
		return "", apierr.Wrap(apierr.ErrNotFound, "inspection %q", id)
	}
	return userPath(uid, inspectionsCollection, id)
}

func (r *StoreInspectionRepository) Create(ctx context.Context, uid string, inspection *models.Inspection) (string, error) {
	path, err := userPath(uid, inspectionsCollection)
	if err != nil {
		return "", err
	}

	record := *inspection
	record.ID = "" // the key is the id, it is not stored in the body

	id, err := r.store.Push(ctx, path, record)
	if err != nil {
		return "", err
	}
	inspection.ID = id
	return id, nil
}

// List returns the user's inspections newest first. A user without any
// inspections gets an empty slice.
func (r *StoreInspectionRepository) List(ctx context.Context, uid string) ([]models.Inspection, error) {
	path, err := userPath(uid, inspectionsCollection)
	if err != nil {
		return nil, err
	}

	raw, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	inspections := []models.Inspection{}
	if raw == nil {
		return inspections, nil
	}

	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, fmt.Errorf("inspections collection is not an object: %w", err)
	}

	for id, child := range children {
		inspection, err := decodeInspection(id, child)
		if err != nil {
			// one unreadable legacy record must not hide the rest
			r.log.Warn("repository: skipping malformed inspection", "uid", uid, "id", id, "error", err)
			continue
		}
		inspections = append(inspections, *inspection)
	}

	sortNewestFirst(inspections)
	if r.limit > 0 && len(inspections) > r.limit {
		inspections = inspections[:r.limit]
	}
	return inspections, nil
}

func (r *StoreInspectionRepository) Get(ctx context.Context, uid, id string) (*models.Inspection, error) {
	path, err := r.recordPath(uid, id)
	if err != nil {
		return nil, err
	}

	raw, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, apierr.Wrap(apierr.ErrNotFound, "inspection %q", id)
	}
	return decodeInspection(id, raw)
}

func (r *StoreInspectionRepository) Delete(ctx context.Context, uid, id string) error {
	path, err := r.recordPath(uid, id)
	if err != nil {
		return err
	}
	return r.store.Delete(ctx, path)
}

func decodeInspection(id string, raw json.RawMessage) (*models.Inspection, error) {
	var inspection models.Inspection
	if err := json.Unmarshal(raw, &inspection); err != nil {
		return nil, fmt.Errorf("failed to decode inspection %s: %w", id, err)
	}
	inspection.ID = id
	if inspection.DetectedDamages == nil {
		inspection.DetectedDamages = models.DamageCounts{}
	}
	if inspection.Precautions == nil {
		inspection.Precautions = []string{}
	}
	return &inspection, nil
}

func sortNewestFirst(inspections []models.Inspection) {
	sort.Slice(inspections, func(i, j int) bool {
		a, b := inspections[i], inspections[j]
		if !a.CreatedAt.Equal(b.CreatedAt.Time) {
			return a.CreatedAt.After(b.CreatedAt.Time)
		}
		return a.ID > b.ID
	})
}
