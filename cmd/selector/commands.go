package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/stac-tile-selector/internal/config"
	"github.com/robert-malhotra/stac-tile-selector/internal/logger"
	"github.com/robert-malhotra/stac-tile-selector/internal/pipeline"
	"github.com/robert-malhotra/stac-tile-selector/pkg/server"
)

func setup(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.jobFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, nil)
	return cfg, log, nil
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Build the grid, search the catalog and write the selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}

			searcher, err := pipeline.NewSearcher(cfg.Catalog, log)
			if err != nil {
				return err
			}

			log.Info("starting selection run",
				"catalog", searcher.Profile().Name,
				"max_cloud_cover", cfg.Search.MaxCloudCover,
				"output_dir", cfg.Output.Dir,
			)

			report, err := pipeline.Run(cmd.Context(), cfg, searcher, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d tiles, %d found, %d incomplete, %d errors\n",
				report.RunID, report.Tiles, len(report.Result.Index),
				len(report.Result.Incomplete), len(report.Result.Errors))
			fmt.Fprintf(out, "selection written to %s\n", report.Files.Selection)
			return nil
		},
	}
}

func newDatesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dates",
		Short: "Print the yearly date ranges a run would search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.jobFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ranges, err := pipeline.DateRanges(cfg.Period)
			if err != nil {
				return err
			}
			for _, r := range ranges {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the saved results of a run over HTTP",
		Long:  "serve loads the results saved for the configured max cloud cover and reloads them on SIGHUP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	results, err := server.New(server.Options{
		Dir:           cfg.Output.Dir,
		MaxCloudCover: cfg.Search.MaxCloudCover,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      results.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for done := false; !done; {
		select {
		case err := <-serverErr:
			return fmt.Errorf("server error: %w", err)
		case <-reload:
			if err := results.Reload(); err != nil {
				log.Warn("reload failed, keeping previous results", "error", err)
			}
		case <-ctx.Done():
			log.Info("received shutdown signal")
			done = true
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	log.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info("server stopped")
	return nil
}
