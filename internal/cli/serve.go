package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sirmark/resume/internal/analytics"
	"github.com/sirmark/resume/internal/export"
	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/metrics"
	"github.com/sirmark/resume/internal/resume"
	"github.com/sirmark/resume/internal/views"
	"github.com/sirmark/resume/internal/web"
)

const cleanupInterval = 24 * time.Hour

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the resume site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	res, err := loadResume(cfg)
	if err != nil {
		return err
	}

	store, err := analytics.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open analytics store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Warn("Failed to close analytics store", logger.Error(closeErr))
		}
	}()

	hasher, err := analytics.NewHasher(cfg.Database.HashSalt)
	if err != nil {
		return err
	}

	revealOpts, err := cfg.Reveal.Options()
	if err != nil {
		return err
	}
	m := metrics.New()
	registry := views.NewRegistry(views.Config{
		Regions:  resume.Sections(),
		Options:  revealOpts,
		TTL:      cfg.Reveal.ViewTTL,
		MaxViews: cfg.Reveal.MaxViews,
	}, store, m, log.With(logger.String("component", "views")))
	defer registry.Shutdown()

	var exporter *export.Exporter
	if cfg.Export.Enabled {
		capturer := export.NewRodCapturer(cfg.Export.BrowserURL, log.With(logger.String("component", "export")))
		defer func() {
			if closeErr := capturer.Close(); closeErr != nil {
				log.Warn("Failed to close browser", logger.Error(closeErr))
			}
		}()
		exporter = export.New(capturer, log)
	}

	srv, err := web.New(web.Deps{
		Config:   cfg,
		Resume:   res,
		Views:    registry,
		Store:    store,
		Hasher:   hasher,
		Exporter: exporter,
		Metrics:  m,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	log.Info("Resume server configured",
		logger.String("name", res.Name),
		logger.Int("port", cfg.Service.Port),
		logger.Bool("export", exporter.Enabled()),
		logger.Float64("threshold", revealOpts.Threshold),
		logger.String("root_margin", revealOpts.RootMargin.String()),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return runCleanup(gctx, store, log) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runCleanup purges expired analytics now and then once a day.
func runCleanup(ctx context.Context, store *analytics.Store, log logger.Logger) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		removed, err := store.Cleanup(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("Privacy cleanup failed", logger.Error(err))
		case removed > 0:
			log.Info("Privacy cleanup removed old views", logger.Int64("removed", removed))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
