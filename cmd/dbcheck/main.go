package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/you/phoneauth/internal/config"
	"github.com/you/phoneauth/internal/infrastructure/database"
)

// dbcheck verifies the configured postgres and redis are reachable and migrated
func main() {
	configPath := flag.String("config", "config/config.yml", "path to the YAML config file")
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	fmt.Println("Database Connection Check")
	fmt.Println("=========================")

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get underlying sql.DB: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	fmt.Println("✓ Database connection successful")

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run auto-migration: %v", err)
	}
	fmt.Println("✓ AutoMigrate completed successfully")

	for _, table := range []string{"users", "otp_challenges"} {
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			log.Fatalf("Failed to query %s table: %v", table, err)
		}
		fmt.Printf("✓ %s table accessible (current count: %d)\n", table, count)
	}

	if cfg.Store.ChallengeBackend == config.ChallengeBackendRedis {
		rdb := database.NewRedis(cfg.Redis, cfg.Store.Timeout)
		defer rdb.Close()
		if err := database.PingRedis(context.Background(), rdb, cfg.Store.Timeout); err != nil {
			log.Fatalf("Failed to reach redis: %v", err)
		}
		fmt.Printf("✓ Redis reachable at %s\n", cfg.Redis.Addr)
	}

	fmt.Println("\nSetup verification completed successfully.")
}
