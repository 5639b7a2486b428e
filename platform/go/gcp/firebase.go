package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseConfig locates the project whose ID tokens the API accepts. With no credentials
// file, application default credentials are used.
type FirebaseConfig struct {
	ProjectID       string `env:"GCLOUD_PROJECT"`
	CredentialsFile string `env:"FIREBASE_CONFIG"`
}

func (c FirebaseConfig) clientOptions() []option.ClientOption {
	if c.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}
}

// NewFirebaseAuth returns an Auth client for verifying applicant and manager ID tokens.
func NewFirebaseAuth(ctx context.Context, cfg FirebaseConfig) (*firebaseauth.Client, error) {
	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appCfg, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return client, nil
}
