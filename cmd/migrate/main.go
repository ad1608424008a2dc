package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/mvailland/cyrano/internal/config"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	sourceURL := os.Getenv("MIGRATIONS_PATH")
	if sourceURL == "" {
		sourceURL = "file://migrations"
	}

	fmt.Printf("Connecting to database at %s:%d...\n", cfg.Database.Host, cfg.Database.Port)

	m, err := migrate.New(sourceURL, cfg.Database.DSN())
	if err != nil {
		panic(fmt.Sprintf("Failed to open migrations: %v", err))
	}
	defer m.Close()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "drop":
		err = m.Drop()
	default:
		panic(fmt.Sprintf("Unknown command %q (want up, down or drop)", cmd))
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		panic(fmt.Sprintf("Migration failed: %v", err))
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		panic(fmt.Sprintf("Failed to read schema version: %v", verr))
	}
	fmt.Printf("Schema at version %d (dirty=%v)\n", version, dirty)
}
