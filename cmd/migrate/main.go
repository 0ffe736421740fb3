package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/qs3c/insight_go_server/config"
	"github.com/qs3c/insight_go_server/internal/database"
)

var status = flag.Bool("status", false, "Print migration status instead of applying")

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	ctx := context.Background()
	if *status {
		if err := database.MigrationStatus(ctx, db); err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
		return
	}

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations applied")
}
