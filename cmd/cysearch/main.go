package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"cysearch/internal/app"
	"cysearch/internal/config"
	"cysearch/internal/logging"
	"cysearch/internal/service"
	"cysearch/internal/tui"
	"cysearch/internal/vectorstore"
	"cysearch/internal/watch"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, artifact string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/cysearch/config.yaml if not provided)")
	flag.StringVar(&artifact, "artifact", "", "Embeddings artifact (.csv or .db); overrides store.path")
	flag.Parse()

	startup := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(cfgPath, artifact, startup); err != nil {
		startup.Error("cysearch failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath, artifact string, startup *slog.Logger) error {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stderr belongs to the TUI once it starts
	logger, closeLog, err := logging.Open(cfg.Log, io.Discard)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := app.NewEmbedder(cfg.Embedder, logger)
	if err != nil {
		return err
	}
	art, err := app.OpenArtifact(cfg.Store, artifact)
	if err != nil {
		return err
	}
	defer art.Close()

	opts := vectorstore.LoadOptions{Model: embedder.Model()}
	store, err := vectorstore.Load(ctx, art.Source, opts)
	if err != nil {
		return err
	}
	startup.Info("catalog loaded", "config", cfgPath, "source", art.Source.Name(), "records", store.Len(), "model", store.Model())

	svc, err := service.NewSearchService(embedder, vectorstore.NewHolder(store), service.Options{
		CacheSize: cfg.Search.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("%d courses from %s (%s)", store.Len(), art.Source.Name(), embedder.Model())
	p := tea.NewProgram(tui.New(ctx, svc, cfg.Search.DefaultN, summary), tea.WithAltScreen(), tea.WithContext(ctx))

	if cfg.Store.Watch && art.Path != "" {
		w, err := watch.New(art.Path, 500*time.Millisecond, logger)
		if err != nil {
			return fmt.Errorf("watch %s: %w", art.Path, err)
		}
		defer w.Close()
		go func() {
			_ = w.Run(ctx, func(ctx context.Context) {
				err := svc.Reload(ctx, art.Source, opts)
				p.Send(tui.ReloadedMsg{Records: svc.Store().Len(), Err: err})
			})
		}()
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
