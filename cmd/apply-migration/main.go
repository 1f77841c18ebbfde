package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/laraveldev/tg-bot/common/database"
	"github.com/laraveldev/tg-bot/internal/config"
)

// Usage: apply-migration [file.sql]
// Without an argument the embedded schema is applied.
func main() {
	script := database.Schema()
	source := "embedded schema"
	if len(os.Args) > 1 {
		content, err := os.ReadFile(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to read migration file: %v", err)
		}
		script = string(content)
		source = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer database.Close(db)

	fmt.Printf("Connected to database: %s\n", cfg.Database.Database)
	fmt.Printf("Applying %s...\n", source)

	n, err := database.ApplyScript(context.Background(), db, script)
	if err != nil {
		log.Fatalf("Migration failed after %d statements: %v", n, err)
	}
	fmt.Printf("✅ %d statements executed successfully\n", n)
}
