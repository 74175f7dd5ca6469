// The collector daemon watches a directory tree for new song
// directories, uploads them to object storage, and records their
// metadata.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/conf"
	"github.com/klangscribe/collector/internal/daemon"
	"github.com/klangscribe/collector/internal/data"
	"github.com/klangscribe/collector/internal/ingest"
	"github.com/klangscribe/collector/internal/notify"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"github.com/klangscribe/collector/internal/pkg/workerpool"
	"github.com/klangscribe/collector/internal/poller"
	"github.com/klangscribe/collector/internal/server"
	"github.com/klangscribe/collector/internal/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := conf.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.InitGlobal(&cfg.Log); err != nil {
		return err
	}
	log := logger.L()
	defer func() { _ = log.Sync() }()

	runID := uuid.NewString()
	log.Info("collector starting",
		zap.String("run_id", runID),
		zap.String("watch_root", cfg.WatchRoot),
	)

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

	notifier := buildNotifier(cfg, log)
	pipeline := ingest.New(objectStore, store, notifier, log)
	p := poller.New(store, cfg.WatchRoot, cfg.Poller.MaxPerTick, log)

	pool, err := workerpool.New(cfg.Poller.Workers, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Enabled {
		srv := server.New(&cfg.Server, store, d.DB, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("http server exited", zap.Error(err))
			}
		}()
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				log.Error("http server shutdown failed", zap.Error(err))
			}
		}()
	}

	return daemon.New(cfg, store, p, pipeline, pool, runID, log).Run(ctx)
}

func buildNotifier(cfg *conf.Config, log *logger.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.Mail.Enabled {
		mailNotifier, err := notify.NewMailNotifier(&cfg.Mail)
		if err != nil {
			log.Warn("mail notifier disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, mailNotifier)
		}
	}
	return notifiers
}
