package main

import (
	"context"
	"errors"

	"github.com/notelab/notelab/backend/idp-service/internal/config"
	"github.com/notelab/notelab/backend/idp-service/internal/database"
	"github.com/notelab/notelab/backend/idp-service/internal/models"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
)

// Seeds the demo users so the code flow can be exercised against a fresh
// deployment. Safe to run repeatedly: existing users are left alone.
func main() {
	logger.Init("info")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.MongoDB.URI == "" {
		logger.Fatalf("MONGODB_URI is required for seeding")
	}

	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		logger.Fatalf("mongo: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	repo := users.NewMongoRepository(client.Database(cfg.MongoDB.Database).Collection("users"))
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Fatalf("users indexes: %v", err)
	}
	svc := users.NewService(repo)

	demo := []struct {
		email    string
		name     string
		password string
		role     models.Role
	}{
		{"alice@example.com", "Alice Admin", "alice-password", models.RoleAdmin},
		{"bob@example.com", "Bob User", "bob-password", models.RoleUser},
	}
	for _, d := range demo {
		u, err := svc.CreateLocal(ctx, d.email, d.name, d.password, d.role)
		if errors.Is(err, users.ErrEmailTaken) {
			logger.Infof("user %s already exists, skipping", d.email)
			continue
		}
		if err != nil {
			logger.Fatalf("seeding %s: %v", d.email, err)
		}
		logger.Infof("created %s user %s (%s)", u.Role, u.Email, u.ID)
	}

	for _, c := range cfg.Clients {
		logger.Infof("registered client %s (%s) redirect_uris=%v", c.ID, c.Name, c.RedirectURIs)
	}
}
