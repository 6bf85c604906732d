// Package bootstrap wires configuration into the services shared by the HTTP
// server and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/recitation-api/internal/assembler"
	"github.com/maauso/recitation-api/internal/audio"
	"github.com/maauso/recitation-api/internal/bulk"
	"github.com/maauso/recitation-api/internal/catalog"
	"github.com/maauso/recitation-api/internal/config"
	"github.com/maauso/recitation-api/internal/connectivity"
	"github.com/maauso/recitation-api/internal/fetch"
	"github.com/maauso/recitation-api/internal/job"
	"github.com/maauso/recitation-api/internal/resolver"
	"github.com/maauso/recitation-api/internal/storage"
	"github.com/maauso/recitation-api/internal/store"
)

// Dependencies holds every long-lived service. The unit store handle is
// opened once here and closed only by Close.
type Dependencies struct {
	Store      store.Store
	Catalog    catalog.Catalog
	Resolver   *resolver.Resolver
	Assembler  *assembler.Assembler
	Downloader *bulk.Downloader
	Jobs       *job.DownloadService
	Export     storage.Storage

	// Connectivity is the checker shared by the resolver and the downloader.
	Connectivity connectivity.Checker

	logger *slog.Logger
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}

	units, err := store.Open(ctx, store.Backend(cfg.StoreBackend), cfg.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open unit store: %w", err)
	}
	logger.Info("unit store opened",
		slog.String("backend", cfg.StoreBackend),
		slog.String("path", cfg.StorePath),
	)

	chapters, err := catalog.OpenSQLite(ctx, cfg.CatalogPath)
	if err != nil {
		_ = units.Close()
		return nil, err
	}

	export, err := initStorage(ctx, cfg, logger)
	if err != nil {
		_ = units.Close()
		_ = chapters.Close()
		return nil, err
	}

	conn, err := connectivity.New(connectivity.Mode(cfg.ConnectivityMode), cfg.AudioBaseURL, cfg.ProbeTimeout)
	if err != nil {
		_ = units.Close()
		_ = chapters.Close()
		return nil, err
	}

	fetcher := fetch.NewClient(
		fetch.WithBaseURL(cfg.AudioBaseURL),
		fetch.WithTimeout(cfg.FetchTimeout),
	)

	res := resolver.New(units, fetcher, conn, logger)
	decoder := audio.NewSniffDecoder(audio.NewFFmpegDecoder(cfg.FFmpegPath, cfg.FFprobePath))
	asm := assembler.New(res, decoder,
		assembler.WithCatalog(chapters),
		assembler.WithLogger(logger),
	)
	downloader := bulk.New(res, chapters, conn, logger)
	jobs := job.NewDownloadService(job.NewMemoryRepository(), downloader, logger)

	return &Dependencies{
		Store:        units,
		Catalog:      chapters,
		Resolver:     res,
		Assembler:    asm,
		Downloader:   downloader,
		Jobs:         jobs,
		Export:       export,
		Connectivity: conn,
		logger:       logger,
	}, nil
}

// Close stops running jobs, then closes the catalog and the unit store.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.Jobs != nil {
		if err := d.Jobs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop download jobs: %w", err))
		}
	}
	if d.Catalog != nil {
		if err := d.Catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close unit store: %w", err))
		}
	}
	if len(errs) == 0 && d.Resolver != nil {
		stats := d.Resolver.Stats()
		d.logger.Info("unit store closed",
			slog.Int64("hits", stats.Hits),
			slog.Int64("misses", stats.Misses),
			slog.Int64("fetches", stats.Fetches),
		)
	}
	return errors.Join(errs...)
}

// initStorage creates the export backend: S3 when configured, else the
// local output directory.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("output_dir", cfg.OutputDir),
	)
	return localStore, nil
}
