package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"tickflow/config"
	"tickflow/internal/enrich"
	"tickflow/internal/metadata"
	"tickflow/internal/pipeline"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	kindFlag := flag.String("kind", "all", "Record kind to ingest: bbo, trade or all")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.Tickflow.Name,
		"version":     cfg.Tickflow.Version,
		"environment": env,
	}).Info("starting tickflow")

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}

	kinds, err := parseKinds(*kindFlag)
	if err != nil {
		log.WithError(err).Error("Invalid -kind flag")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var uploader *writer.Uploader
	if cfg.Storage.S3.Enabled {
		uploader, err = writer.NewUploader(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("Failed to initialize S3 uploader")
			os.Exit(1)
		}
	}

	for _, kind := range kinds {
		if err := runKind(ctx, cfg, kind, uploader); err != nil {
			log.WithComponent("main").WithFields(logger.Fields{"kind": kind.String()}).
				WithError(err).Error("ingestion run failed")
			os.Exit(1)
		}
	}
}

func parseKinds(s string) ([]models.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "":
		return []models.Kind{models.KindQuote, models.KindTrade}, nil
	default:
		kind := models.Kind(strings.ToLower(strings.TrimSpace(s)))
		if !kind.Valid() {
			return nil, &config.ValidationError{Field: "kind", Reason: "must be bbo, trade or all"}
		}
		return []models.Kind{kind}, nil
	}
}

// runKind executes the full chain for one record kind: build the dataset,
// optionally enrich it, persist it locally and push it to S3.
func runKind(ctx context.Context, cfg *config.Config, kind models.Kind, uploader *writer.Uploader) error {
	log := logger.GetLogger().WithComponent("main").WithFields(logger.Fields{"kind": kind.String()})

	ds, err := pipeline.Run(cfg, kind)
	if err != nil {
		return err
	}

	if cfg.Enrich.Enabled {
		cleaned, err := enrich.Clean(ds.Frame, kind, enrich.Options{
			DropNullIndex:   cfg.Enrich.DropNullIndex,
			Deduplicate:     cfg.Enrich.Deduplicate,
			EnforcePositive: cfg.Enrich.EnforcePositive,
		})
		if err != nil {
			return err
		}
		ds.Frame = cleaned

		if kind == models.KindQuote {
			derived, err := enrich.DeriveQuotes(ds.Frame)
			if err != nil {
				return err
			}
			ds.Frame = derived
		}

		summary := enrich.Summarize(ds.Frame)
		for _, col := range summary.Columns {
			log.WithFields(logger.Fields{
				"column": col.Name,
				"type":   col.Type,
				"nulls":  col.Nulls,
				"min":    col.Min,
				"max":    col.Max,
				"mean":   col.Mean,
			}).Debug("column summary")
		}
		log.WithFields(logger.Fields{"rows": summary.Rows, "columns": len(summary.Columns)}).
			Info("dataset enriched")
	}

	path, err := writer.WriteLocal(ds, cfg)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{"path": path}).Info("dataset persisted")

	if err := recordMetadata(cfg, ds, path); err != nil {
		log.WithError(err).Warn("failed to update table metadata")
	}

	if uploader != nil {
		key, err := uploader.UploadDataset(ctx, ds)
		if err != nil {
			return err
		}
		log.WithFields(logger.Fields{"s3_key": key}).Info("dataset uploaded")
	}

	logMetrics(log, ds, kind)
	return nil
}

// recordMetadata registers the written file in the kind's table metadata
// under the output directory.
func recordMetadata(cfg *config.Config, ds *pipeline.Dataset, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	started := ds.Report.StartedAt
	gen := metadata.NewGenerator(cfg.Writer.OutputDir, ds.Kind.String())
	df := metadata.DataFile{
		Path:        path,
		FileSize:    info.Size(),
		RecordCount: int64(ds.Frame.NumRows()),
		Partition: map[string]any{
			"kind":  ds.Kind.String(),
			"year":  started.Year(),
			"month": int(started.Month()),
			"day":   started.Day(),
		},
		Timestamp: started,
	}
	if err := gen.AddFile(df); err != nil {
		return err
	}
	return gen.WriteCatalogEntry(filepath.Join(cfg.Writer.OutputDir, "catalog"))
}

func logMetrics(log *logger.Entry, ds *pipeline.Dataset, kind models.Kind) {
	log.LogMetric("main", "rows_retained", ds.Report.RowsRetained, "gauge", logger.Fields{
		"run_id": ds.Report.RunID,
		"kind":   kind.String(),
	})
	log.LogMetric("main", "members_failed", ds.Report.MembersFailed, "counter", logger.Fields{
		"run_id": ds.Report.RunID,
		"kind":   kind.String(),
	})
}
