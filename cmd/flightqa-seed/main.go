package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flightqa/flightqa/internal/app"
	"github.com/flightqa/flightqa/internal/config"
	"github.com/flightqa/flightqa/internal/flights"
	"github.com/flightqa/flightqa/internal/observability"
	"github.com/flightqa/flightqa/internal/storage"
)

func main() {
	seedFile := flag.String("seed-file", "", "flight seed file (.json or .parquet); defaults to FLIGHTQA_FLIGHTS_SEED_FILE")
	policyDir := flag.String("upload-policies", "", "directory of *.txt policy documents to copy into the policy store")
	warm := flag.Bool("warm-embeddings", false, "build the policy embedding cache after seeding")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.LoadFromEnv("flightqa-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *seedFile != "" {
		cfg.Flights.SeedFile = *seedFile
	}
	if cfg.Flights.DSN == "" {
		fmt.Fprintln(os.Stderr, "FLIGHTQA_FLIGHTS_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := flights.Open(ctx, flights.DBConfig{
		Driver:       cfg.Flights.Driver,
		DSN:          cfg.Flights.DSN,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store, err := flights.NewStore(db, cfg.Flights.SampleRows)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flight store error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Flights.SeedFile == "" {
		if err := store.EnsureTable(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "create table failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("no seed file configured; flights table ensured")
	} else {
		inserted, err := store.LoadSeed(ctx, cfg.Flights.SeedFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("inserted %d flight(s) from %s\n", inserted, cfg.Flights.SeedFile)
	}

	if *policyDir != "" {
		uploaded, err := uploadPolicies(ctx, cfg, *policyDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "policy upload failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("uploaded %d policy document(s)\n", uploaded)
	}

	if *warm {
		logger := observability.NewLogger(cfg, os.Stderr)
		err := app.WarmEmbeddings(ctx, cfg, app.Models{}, logger)
		if errors.Is(err, app.ErrEmbeddingsDisabled) {
			fmt.Fprintln(os.Stderr, "FLIGHTQA_EMBEDDINGS_ENABLED must be true to warm embeddings")
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "embedding warmup failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("embedding cache ready")
	}
}

func uploadPolicies(ctx context.Context, cfg config.Config, dir string) (int, error) {
	target, err := app.OpenPolicyStore(ctx, cfg)
	if err != nil {
		return 0, err
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return 0, err
	}
	uploaded := 0
	for _, path := range paths {
		key, err := storage.PolicyDocumentKey(filepath.Base(path))
		if err != nil {
			return uploaded, err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return uploaded, err
		}
		if _, err := target.Put(ctx, key, strings.NewReader(string(raw)), int64(len(raw)), storage.PutOptions{ContentType: "text/plain; charset=utf-8"}); err != nil {
			return uploaded, fmt.Errorf("put %s: %w", key, err)
		}
		uploaded++
	}
	return uploaded, nil
}
