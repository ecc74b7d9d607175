package repository

import (
	"context"

	"github.com/camden-git/surfaceinspect/models"
)

// InspectionRepository defines the methods for per-user inspection records
// stored at users/{uid}/inspections/{id}.
type InspectionRepository interface {
	Create(ctx context.Context, uid string, inspection *models.Inspection) (string, error)
	List(ctx context.Context, uid string) ([]models.Inspection, error)
	Get(ctx context.Context, uid, id string) (*models.Inspection, error)
	Delete(ctx context.Context, uid, id string) error
}

// ProfileRepository defines the methods for the profile mapping stored at
// users/{uid}/profile.
type ProfileRepository interface {
	Get(ctx context.Context, uid string) (models.Profile, error)
	Update(ctx context.Context, uid string, fields map[string]any) error
}
