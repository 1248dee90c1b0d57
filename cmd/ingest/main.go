// Package main loads reference cells into the metadata table from an
// embedding CSV and a metadata spreadsheet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/tyvekbio/cellseek/internal/config"
	"github.com/tyvekbio/cellseek/internal/ingest"
	"github.com/tyvekbio/cellseek/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	embeddingPath := flag.String("embeddings", "", "path to the embedding CSV (barcode + vector columns)")
	metadataPath := flag.String("metadata", "", "path to the metadata xlsx indexed by barcode")
	batchSize := flag.Int("batch", 1000, "insert batch size")
	nodeID := flag.Int64("node", 1, "snowflake node id")
	flag.Parse()

	if *embeddingPath == "" || *metadataPath == "" {
		flag.Usage()
		return fmt.Errorf("-embeddings and -metadata are required")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             dbURL,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	node, err := snowflake.NewNode(*nodeID)
	if err != nil {
		return fmt.Errorf("create snowflake node: %w", err)
	}

	loader := ingest.NewLoader(store.NewPostgresStore(pool), node).WithBatchSize(*batchSize)

	start := time.Now()
	report, err := loader.Run(ctx, *embeddingPath, *metadataPath)
	if err != nil {
		return err
	}

	slog.Info("ingest complete",
		"embedding_rows", report.EmbeddingRows,
		"metadata_rows", report.MetadataRows,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"elapsed", time.Since(start).String(),
	)
	return nil
}
