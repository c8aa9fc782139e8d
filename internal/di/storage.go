// Package di provides dependency injection for calibration and results storage.
package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/config"
	"github.com/aristath/qlbm/internal/database"
	"github.com/aristath/qlbm/internal/modules/calibration"
	"github.com/aristath/qlbm/internal/reliability"
)

// InitializeStore opens the calibration store selected by cfg.
func InitializeStore(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.CalibrationStore {
	case config.StoreSQLite:
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, "calibration.db"),
			Profile: database.ProfileDurable,
			Name:    "calibration",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize calibration database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("failed to migrate calibration database: %w", err)
		}
		container.DB = db
		container.Store = calibration.NewSQLiteStore(db.Conn(), log)

	case config.StoreFile:
		store, err := calibration.NewFileStore(filepath.Join(cfg.DataDir, "calibration"), log)
		if err != nil {
			return err
		}
		container.Store = store

	case config.StoreRedis:
		client, err := calibration.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		container.Redis = client
		container.Store = calibration.NewRedisStore(client, calibration.DefaultRedisPrefix, log)

	case config.StoreS3:
		client, err := calibration.NewS3Client(ctx, s3Options(cfg))
		if err != nil {
			return err
		}
		container.Store = calibration.NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix, log)

	default:
		return fmt.Errorf("unknown calibration store %q", cfg.CalibrationStore)
	}

	log.Info().Str("store", cfg.CalibrationStore).Msg("Calibration store initialized")
	return nil
}

// InitializeArchive creates the results archive when a results bucket is set.
func InitializeArchive(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if cfg.ResultsBucket == "" {
		return nil
	}
	client, err := calibration.NewS3Client(ctx, s3Options(cfg))
	if err != nil {
		return err
	}
	container.Archive = reliability.NewResultsArchive(reliability.NewS3Uploader(client), cfg.ResultsBucket, cfg.ResultsPrefix, log)
	log.Info().Str("bucket", cfg.ResultsBucket).Msg("Results archive initialized")
	return nil
}

func s3Options(cfg *config.Config) calibration.S3Options {
	return calibration.S3Options{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	}
}
