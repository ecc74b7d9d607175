package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"

	"github.com/camden-git/surfaceinspect/apierr"
	"github.com/camden-git/surfaceinspect/models"
)

// FirebaseVerifier verifies ID tokens through the Firebase Admin SDK. It needs
// service account credentials.
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) VerifyToken(ctx context.Context, token string) (models.Identity, error) {
	verified, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", apierr.ErrAuthInvalid, err)
	}

	email, _ := verified.Claims["email"].(string)
	name, _ := verified.Claims["name"].(string)
	return models.Identity{UID: verified.UID, Email: email, DisplayName: name}, nil
}
