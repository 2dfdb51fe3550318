package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/service"
	"github.com/keywarden/keywarden/internal/storage/postgres"
	"go.uber.org/zap"
)

func main() {
	quantity := flag.Int("n", 1, "Number of keys to mint")
	duration := flag.Int("days", 0, "Validity in days (0 = lifetime)")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	logger, _ := zap.NewDevelopment()
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	keyRepo := postgres.NewKeyRepository(pool, logger)
	userRepo := postgres.NewUserRepository(pool, logger)
	policy := service.NewCooldownPolicy(&config.CooldownConfig{
		FastTrack: 1 * time.Second,
		Booster:   12 * time.Hour,
		Premium:   60 * time.Hour,
	})
	svc := service.NewKeyService(keyRepo, userRepo, policy, service.NopAuditRecorder{}, 1000, logger)

	keys, err := svc.CreateKeys(context.Background(), *quantity, *duration, "cli")
	if err != nil {
		log.Fatalf("Failed to create keys: %v", err)
	}

	fmt.Printf("Minted %d key(s):\n", len(keys))
	for _, k := range keys {
		if k.ExpiresAt.Valid {
			fmt.Printf("%s  (expires %s)\n", k.Key, k.ExpiresAt.Time.UTC().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("%s  (lifetime)\n", k.Key)
		}
	}
}
