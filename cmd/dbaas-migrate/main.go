package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/cuemby/dbaasd/pkg/storage"
)

var (
	dataDir = flag.String("data-dir", "/var/lib/dbaasd", "dbaasd data directory")
	down    = flag.Int("down", 0, "Roll back this many migration steps instead of migrating up")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	dbPath := filepath.Join(*dataDir, "instances.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", dbPath)
	}

	log.Printf("database: %s", dbPath)

	if *down > 0 {
		log.Printf("rolling back %d migration step(s)...", *down)
		if err := storage.MigrateDown(dbPath, *down); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		log.Println("rollback complete")
		return
	}

	applied, err := storage.Migrate(dbPath)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if applied == 0 {
		log.Println("database already up to date")
		return
	}
	log.Printf("applied %d migration(s)", applied)
}
