package services

import (
	"context"

	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/models"
	"github.com/camden-git/surfaceinspect/repository"
)

type ProfileService struct {
	profiles repository.ProfileRepository
	log      *logger.Logger
}

func NewProfileService(profiles repository.ProfileRepository, log *logger.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, log: log}
}

// Get merges the stored profile with the verified identity. Identity fields
// win over stored ones so a profile can never impersonate another uid.
func (s *ProfileService) Get(ctx context.Context, identity models.Identity) (models.Profile, error) {
	stored, err := s.profiles.Get(ctx, identity.UID)
	if err != nil {
		return nil, err
	}

	merged := make(models.Profile, len(stored)+3)
	for k, v := range stored {
		merged[k] = v
	}
	merged["uid"] = identity.UID
	if identity.Email != "" {
		merged["email"] = identity.Email
	}
	if identity.DisplayName != "" {
		merged["name"] = identity.DisplayName
	}
	return merged, nil
}

// Update applies a raw JSON patch. Unknown or malformed fields are a bad
// request and nothing is written.
func (s *ProfileService) Update(ctx context.Context, uid string, body []byte) error {
	patch, err := models.ParseProfilePatch(body)
	if err != nil {
		return apierr.Wrap(apierr.ErrBadRequest, "%v", err)
	}

	fields := patch.Fields()
	if err := s.profiles.Update(ctx, uid, fields); err != nil {
		return err
	}
	s.log.Info("profile: updated", "uid", uid, "fields", len(fields))
	return nil
}
