package main

import (
	"context"
	"flag"
	"log"
	"time"

	"geoattend/internal/config"
	"geoattend/internal/directory"
	"geoattend/internal/store"
)

// Migrate brings the schema up to date and optionally loads reference data.
func main() {
	seedPath := flag.String("seed", "", "YAML file with colleges and courses to upsert")
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	n, err := store.Migrate(ctx, db.Client, store.Migrations)
	if err != nil {
		log.Fatalf("migrate failed after %d step(s): %v", n, err)
	}
	log.Printf("schema up to date, %d migration(s) applied", n)

	if *seedPath == "" {
		return
	}
	seed, err := directory.LoadSeed(*seedPath)
	if err != nil {
		log.Fatalf("load seed: %v", err)
	}
	if err := directory.NewRepository(db.Client).SeedColleges(ctx, seed); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	log.Printf("seeded %d college(s) from %s", len(seed.Colleges), *seedPath)
}
