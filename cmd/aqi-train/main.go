package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/i474232898/aqi-service/internal/config"
	"github.com/i474232898/aqi-service/internal/logging"
	"github.com/i474232898/aqi-service/internal/training"
)

func main() {
	var (
		dataPath = flag.String("data", "ml_model/aqi_dataset.csv", "training dataset (CSV)")
		outPath  = flag.String("out", "", "model artifact output path (default MODEL_PATH)")
		generate = flag.Int("generate", 0, "write a synthetic dataset of N rows to -data before training")
		seed     = flag.Uint64("seed", 42, "random seed for generation, splitting and ensembles")
		trees    = flag.Int("trees", 100, "random forest size")
		stages   = flag.Int("stages", 100, "gradient boosting stages")
		genOnly  = flag.Bool("generate-only", false, "stop after writing the synthetic dataset")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg := logging.New(os.Stderr, cfg, "aqi-train")
	if *outPath == "" {
		*outPath = cfg.ModelPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, lg, *dataPath, *outPath, *generate, *genOnly, *seed, *trees, *stages); err != nil {
		lg.Error("training failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *slog.Logger, dataPath, outPath string, generate int, genOnly bool, seed uint64, trees, stages int) error {
	if generate > 0 {
		if err := writeDataset(dataPath, generate, seed); err != nil {
			return err
		}
		lg.Info("synthetic dataset written", "path", dataPath, "rows", generate, "seed", seed)
		if genOnly {
			return nil
		}
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	ds, err := training.ReadCSV(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	lg.Info("dataset loaded", "path", dataPath, "rows", ds.Len(), "features", len(ds.Features))

	opts := training.DefaultOptions()
	opts.Seed = seed
	opts.Forest.Seed = seed
	opts.Forest.Trees = trees
	opts.Boosting.Seed = seed
	opts.Boosting.Stages = stages

	artifact, _, err := training.Train(ctx, ds, opts, logging.Component(lg, "training"))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := artifact.Save(outPath); err != nil {
		return err
	}
	lg.Info("model artifact saved",
		"path", outPath,
		"id", artifact.ID,
		"model", artifact.Name,
		"family", artifact.Family,
		"mae", artifact.Metrics.MAE,
		"rmse", artifact.Metrics.RMSE,
		"r2", artifact.Metrics.R2,
	)
	return nil
}

func writeDataset(path string, rows int, seed uint64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	// a year of hourly rows ending now, like the historical export
	start := time.Now().UTC().Truncate(time.Hour).AddDate(-1, 0, 0)
	if err := training.WriteCSV(f, training.Generate(rows, seed, start)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	return f.Close()
}
