// Command migrate manages the PostgreSQL user directory schema.
//
//	migrate up | down | version
package main

import (
	"database/sql"
	"errors"
	"log"
	"os"

	"github.com/globetalk/matchmaking/internal/config"
	"github.com/globetalk/matchmaking/internal/directory"
	"github.com/golang-migrate/migrate/v4"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s up|down|version", os.Args[0])
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	m, err := directory.NewMigrator(db)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}

	switch os.Args[1] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Println("no migrations applied")
			return
		}
		if verr != nil {
			log.Fatalf("version: %v", verr)
		}
		log.Printf("version %d (dirty=%v)", version, dirty)
		return
	default:
		log.Fatalf("unknown command %q", os.Args[1])
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("no change")
		return
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", os.Args[1], err)
	}
	log.Printf("migrate %s: done", os.Args[1])
}
