// Command verifyrace downloads an archived race resolution, checks its
// signature and recomputes the ranking from the recorded seed and snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/application/race"
	"github.com/creaturederby/derby/internal/infrastructure/archive"
	"github.com/creaturederby/derby/internal/infrastructure/keystore"
	"github.com/creaturederby/derby/internal/tuning"
)

func main() {
	_ = godotenv.Load()

	seasonFlag := flag.String("season", "", "season id")
	raceFlag := flag.String("race", "", "race id")
	tuningPath := flag.String("tuning", getenv("TUNING_PATH", "config/tuning.yaml"), "tuning document used at resolution time")
	flag.Parse()

	seasonID, err := uuid.Parse(*seasonFlag)
	if err != nil {
		log.Fatalf("invalid -season: %v", err)
	}
	raceID, err := uuid.Parse(*raceFlag)
	if err != nil {
		log.Fatalf("invalid -race: %v", err)
	}
	keys, err := keystore.NewFromEnv()
	if err != nil {
		log.Fatalf("keystore error: %v", err)
	}
	bucket := os.Getenv("ARCHIVE_BUCKET")
	if bucket == "" {
		log.Fatalf("ARCHIVE_BUCKET is required")
	}

	rules, err := tuning.Load(*tuningPath)
	if err != nil {
		log.Fatalf("tuning error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := archive.NewS3Client(ctx,
		os.Getenv("ARCHIVE_ENDPOINT"),
		getenv("ARCHIVE_REGION", "us-east-1"),
		os.Getenv("ARCHIVE_ACCESS_KEY_ID"),
		os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
	)
	if err != nil {
		log.Fatalf("archive error: %v", err)
	}
	store := archive.New(client, bucket, getenv("ARCHIVE_PREFIX", "races"), keys, zerolog.Nop())

	rec, err := store.Fetch(ctx, seasonID, raceID)
	if err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
	fmt.Printf("race %s seed %s at height %d: signature ok (key %s)\n", rec.RaceID, rec.SeedHash, rec.SeedHeight, rec.KeyID)

	mismatches, err := race.NewEngine(rules).Replay(rec)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	if len(mismatches) == 0 {
		fmt.Printf("%d entries reproduced\n", len(rec.Entries))
		return
	}
	for _, m := range mismatches {
		fmt.Printf("MISMATCH %s %s: recorded %s computed %s\n", m.CreatureID, m.Field, m.Recorded, m.Computed)
	}
	os.Exit(1)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
