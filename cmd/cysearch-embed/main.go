package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cysearch/internal/app"
	"cysearch/internal/config"
	"cysearch/internal/ingest"
	"cysearch/internal/logging"
	"cysearch/internal/vectorstore/csvfile"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/cysearch/config.yaml if not provided)")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 || len(args) > 2 {
		fmt.Println("Usage: cysearch-embed [--config=config.yaml] courses.csv [output.csv|output.db]")
		fmt.Println("Without an output the configured store is written.")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, closeLog, err := logging.Open(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}

	output := ""
	if len(args) == 2 {
		output = args[1]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger, args[0], output)
	stop()
	if err != nil {
		logger.Error("embedding failed", "input", args[0], "error", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, input, output string) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	records, err := csvfile.ReadCourses(ctx, f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", input, err)
	}
	logger.Info("courses read", "input", input, "records", len(records))

	embedder, err := app.NewEmbedder(cfg.Embedder, logger)
	if err != nil {
		return err
	}
	art, err := app.OpenArtifact(cfg.Store, output)
	if err != nil {
		return err
	}
	defer art.Close()

	builder := ingest.NewBuilder(embedder, ingest.Options{
		RequestsPerSecond: cfg.Ingest.RequestsPerSecond,
		Burst:             cfg.Ingest.Burst,
		Logger:            logger,
	})
	store, err := builder.Build(ctx, records, art.Writer)
	if err != nil {
		return err
	}
	logger.Info("artifact written", "output", art.Source.Name(), "records", store.Len(), "dimension", store.Dimension(), "model", store.Model())
	return nil
}
