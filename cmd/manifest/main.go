// The manifest command compiles all recorded directory metadata into
// one parquet manifest and uploads it to object storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/conf"
	"github.com/klangscribe/collector/internal/data"
	"github.com/klangscribe/collector/internal/manifest"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"github.com/klangscribe/collector/internal/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	runID := flag.String("run-id", "", "run identifier for the manifest key (default: random UUID)")
	flag.Parse()

	if err := run(*configPath, *runID); err != nil {
		fmt.Fprintf(os.Stderr, "manifest: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, runID string) error {
	cfg, err := conf.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.InitGlobal(&cfg.Log); err != nil {
		return err
	}
	log := logger.L()
	defer func() { _ = log.Sync() }()

	if runID == "" {
		runID = uuid.NewString()
	}

	d, cleanup, err := data.NewData(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	store := claim.NewStore(d.DB, log)

	objectStore, err := storage.NewMinIOStore(d.MinIO, &cfg.Storage, log)
	if err != nil {
		return err
	}

	result, err := manifest.NewBuilder(store, objectStore, log).Build(context.Background(), runID)
	if err != nil {
		return err
	}

	log.Info("manifest build finished",
		zap.String("key", result.ManifestKey),
		zap.Int("total", result.Total),
		zap.Int("kept", result.Kept),
		zap.Int("dropped", result.Dropped),
	)
	fmt.Printf("manifest %s: total=%d kept=%d dropped=%d\n",
		result.ManifestKey, result.Total, result.Kept, result.Dropped)

	return nil
}
