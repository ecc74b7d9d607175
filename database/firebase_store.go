package database

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"github.com/camden-git/surfaceinspect/apierr"
)

// FirebaseAppConfig holds what is needed to initialise the Firebase Admin SDK.
type FirebaseAppConfig struct {
	DatabaseURL        string
	ProjectID          string
	ServiceAccountJSON string
	ServiceAccountPath string
}

// NewFirebaseApp initialises the Admin SDK, preferring inline service
// account JSON over a key file and falling back to application default
// credentials when neither is configured.
func NewFirebaseApp(ctx context.Context, cfg FirebaseAppConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	switch {
	case cfg.ServiceAccountJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.ServiceAccountPath != "":
		opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		DatabaseURL: cfg.DatabaseURL,
		ProjectID:   cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise firebase app: %w", err)
	}
	return app, nil
}

// FirebaseStore is the DocumentStore backed by the Firebase Realtime Database.
type FirebaseStore struct {
	client *db.Client
}

func NewFirebaseStore(ctx context.Context, app *firebase.App) (*FirebaseStore, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime database client: %w", err)
	}
	return &FirebaseStore{client: client}, nil
}

func (s *FirebaseStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.client.NewRef(path).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("%w: firebase get %s: %v", apierr.ErrStoreUnavailable, path, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func (s *FirebaseStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("firebase store: update of %s requires at least one field", path)
	}
	if err := s.client.NewRef(path).Update(ctx, fields); err != nil {
		return fmt.Errorf("%w: firebase update %s: %v", apierr.ErrStoreUnavailable, path, err)
	}
	return nil
}

func (s *FirebaseStore) Delete(ctx context.Context, path string) error {
	if err := s.client.NewRef(path).Delete(ctx); err != nil {
		return fmt.Errorf("%w: firebase delete %s: %v", apierr.ErrStoreUnavailable, path, err)
	}
	return nil
}

func (s *FirebaseStore) Push(ctx context.Context, path string, value any) (string, error) {
	ref, err := s.client.NewRef(path).Push(ctx, value)
	if err != nil {
		return "", fmt.Errorf("%w: firebase push %s: %v", apierr.ErrStoreUnavailable, path, err)
	}
	return ref.Key, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *FirebaseStore) Close() error { return nil }

var _ DocumentStore = (*FirebaseStore)(nil)
