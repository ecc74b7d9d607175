package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/database"
	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/models"
)

type unavailableStore struct{}

func (unavailableStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w: connection refused", apierr.ErrStoreUnavailable)
}

func (unavailableStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return fmt.Errorf("%w: connection refused", apierr.ErrStoreUnavailable)
}

func (unavailableStore) Delete(ctx context.Context, path string) error {
	return fmt.Errorf("%w: connection refused", apierr.ErrStoreUnavailable)
}

func (unavailableStore) Push(ctx context.Context, path string, value any) (string, error) {
	return "", fmt.Errorf("%w: connection refused", apierr.ErrStoreUnavailable)
}

func (unavailableStore) Close() error { return nil }

func newInspection(at time.Time, counts models.DamageCounts) *models.Inspection {
	return &models.Inspection{
		DetectedDamages: counts,
		Severity:        models.SeverityModerate,
		HealthScore:     83,
		Precautions:     []string{"Seal cracks early to prevent expansion."},
		ImageURL:        "/api/images/x.jpg",
		CreatedAt:       models.NewTimestamp(at),
	}
}

func TestInspectionRepository_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	repo := NewStoreInspectionRepository(store, 50, logger.Nop())

	in := newInspection(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), models.DamageCounts{"crack": 1, "stain": 1})
	id, err := repo.Create(ctx, "user-1", in)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, in.ID)

	// the id lives in the key, not the body
	raw, err := store.Get(ctx, "users/user-1/inspections/"+id)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"id"`)

	got, err := repo.Get(ctx, "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, models.DamageCounts{"crack": 1, "stain": 1}, got.DetectedDamages)
	assert.True(t, got.CreatedAt.Equal(in.CreatedAt.Time))

	_, err = repo.Get(ctx, "user-2", id)
	assert.ErrorIs(t, err, apierr.ErrNotFound, "another user's record is invisible")

	require.NoError(t, repo.Delete(ctx, "user-1", id))
	_, err = repo.Get(ctx, "user-1", id)
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestInspectionRepository_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreInspectionRepository(database.NewMemoryStore(), 50, logger.Nop())

	_, err := repo.Get(ctx, "user-1", "../user-2")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "user-1", "a/b"), apierr.ErrNotFound)

	_, err = repo.List(ctx, "bad/uid")
	assert.ErrorIs(t, err, apierr.ErrAuthInvalid)
}

func TestInspectionRepository_ListOrderAndCap(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	repo := NewStoreInspectionRepository(store, 3, logger.Nop())

	empty, err := repo.List(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// inserted out of chronological order
	for _, offset := range []int{2, 0, 4, 1, 3} {
		_, err := repo.Create(ctx, "user-1", newInspection(base.Add(time.Duration(offset)*time.Hour), models.DamageCounts{}))
		require.NoError(t, err)
	}

	list, err := repo.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, want := range []int{4, 3, 2} {
		assert.True(t, list[i].CreatedAt.Equal(base.Add(time.Duration(want)*time.Hour)), "position %d", i)
		assert.NotEmpty(t, list[i].ID)
	}
}

func TestInspectionRepository_ListSkipsMalformedAndReadsLegacy(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	repo := NewStoreInspectionRepository(store, 50, logger.Nop())

	require.NoError(t, store.Update(ctx, "users/user-1/inspections", map[string]any{
		"-Nlegacy": map[string]any{
			"detected_damages": map[string]any{"spalling": 3},
			"severity":         "Critical",
			"health_score":     40,
			"precautions":      []string{"Repair damaged concrete immediately."},
			"image_url":        "/api/images/20230101_000000_old.jpg",
			"created_at":       "2023-01-01T00:00:00.123456",
		},
		"-Nbroken": map[string]any{"created_at": 12},
	}))

	list, err := repo.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "-Nlegacy", list[0].ID)
	assert.Equal(t, 2023, list[0].CreatedAt.Year())
	assert.Equal(t, models.SeverityCritical, list[0].Severity)
}

func TestInspectionRepository_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreInspectionRepository(unavailableStore{}, 50, logger.Nop())

	_, err := repo.Create(ctx, "user-1", newInspection(time.Now(), nil))
	assert.ErrorIs(t, err, apierr.ErrStoreUnavailable)

	_, err = repo.List(ctx, "user-1")
	assert.ErrorIs(t, err, apierr.ErrStoreUnavailable)

	_, err = repo.Get(ctx, "user-1", "abc")
	assert.ErrorIs(t, err, apierr.ErrStoreUnavailable)
}

func TestProfileRepository(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	repo := NewStoreProfileRepository(store).(*StoreProfileRepository)
	fixed := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	profile, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, profile)

	require.NoError(t, repo.Update(ctx, "user-1", map[string]any{"phone": "555", "organization": "Acme"}))
	require.NoError(t, repo.Update(ctx, "user-1", map[string]any{"phone": "556"}))

	profile, err = repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "556", profile["phone"])
	assert.Equal(t, "Acme", profile["organization"])
	assert.Equal(t, "2024-06-01T08:30:00Z", profile["updated_at"])

	// an empty patch still stamps updated_at
	require.NoError(t, repo.Update(ctx, "user-2", map[string]any{}))
	other, err := repo.Get(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.Profile{"updated_at": "2024-06-01T08:30:00Z"}, other)

	errRepo := NewStoreProfileRepository(unavailableStore{})
	_, err = errRepo.Get(ctx, "user-1")
	assert.ErrorIs(t, err, apierr.ErrStoreUnavailable)
	assert.ErrorIs(t, errRepo.Update(ctx, "user-1", map[string]any{"phone": "1"}), apierr.ErrStoreUnavailable)
}
