package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/odyssey-erp/odyssey-accounts/internal/app"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer storage.Close()

	fmt.Println("→ Seeding users...")
	service := users.NewService(storage.Users, users.PasswordPolicy{MinLength: cfg.PasswordMinLength})
	if err := seedUsers(ctx, service); err != nil {
		log.Fatalf("seed users: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// =============================================================================
// USERS
// =============================================================================

func seedUsers(ctx context.Context, service *users.Service) error {
	accounts := []users.RegisterInput{
		{Name: "Admin", Email: "admin@odyssey.local", Job: "Administrator", Password: "admin123"},
		{Name: "Em", Email: "em@i.l", Job: "Tester", Password: "passwd"},
	}

	for _, in := range accounts {
		_, err := service.Register(ctx, in)
		if err == nil {
			continue
		}
		// Re-running the seed leaves existing accounts alone.
		if fe, ok := shared.AsFieldErrors(err); ok && fe["email"] != "" {
			continue
		}
		if errors.Is(err, shared.ErrDuplicate) {
			continue
		}
		return err
	}
	return nil
}
