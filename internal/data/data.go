// Package data wires up the collector's external resources: the
// relational database and the object storage client.
package data

import (
	"context"
	"fmt"
	"time"

	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/conf"
	"github.com/klangscribe/collector/internal/pkg/database"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"github.com/klangscribe/collector/internal/pkg/minio"
)

// Data holds shared resource handles.
type Data struct {
	DB     *database.DB
	MinIO  *minio.Client
	Logger *logger.Logger
}

// NewData connects to the database and object storage, runs claim
// table migrations, and returns the handles plus a cleanup function.
func NewData(cfg *conf.Config, log *logger.Logger) (*Data, func(), error) {
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.AutoMigrate(&claim.ClaimRecord{}, &claim.DirectoryMetadata{}); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	minioClient, err := minio.NewClient(&cfg.MinIO, log.Logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to initialize object storage client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := minioClient.Ping(pingCtx); err != nil {
		_ = db.Close()
		_ = minioClient.Close()
		return nil, nil, fmt.Errorf("failed to reach object storage: %w", err)
	}

	cleanup := func() {
		log.Info("closing data resources")
		_ = minioClient.Close()
		_ = db.Close()
	}

	return &Data{
		DB:     db,
		MinIO:  minioClient,
		Logger: log,
	}, cleanup, nil
}
