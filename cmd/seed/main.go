// seed creates a development admin account. Idempotent: rerunning against a
// database that already has the account is a no-op.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"user-auth-service/internal/config"
	"user-auth-service/internal/db"
	"user-auth-service/internal/security"
	"user-auth-service/internal/user/domain"
	userrepo "user-auth-service/internal/user/repository"
)

func main() {
	email := flag.String("email", "admin@example.com", "seed account email")
	username := flag.String("username", "admin", "seed account username")
	password := flag.String("password", "", "seed account password (required)")
	flag.Parse()

	if *password == "" {
		log.Fatal("seed: -password is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := userrepo.NewPostgresRepository(database)
	existing, err := repo.GetByIdentifier(ctx, *email)
	if err != nil {
		log.Fatalf("seed: lookup: %v", err)
	}
	if existing != nil {
		fmt.Printf("seed: %s already exists (id %s)\n", *email, existing.ID)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash(*password)
	if err != nil {
		log.Fatalf("seed: hash: %v", err)
	}
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     *username,
		Email:        *email,
		PasswordHash: hash,
		UserType:     domain.UserTypeAdmin,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, user); err != nil {
		log.Fatalf("seed: create: %v", err)
	}
	fmt.Printf("seed: created %s (id %s)\n", *email, user.ID)
}
