package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yousuf/tracemap/internal/config"
	"github.com/yousuf/tracemap/internal/deobfuscator"
	"github.com/yousuf/tracemap/internal/loader"
	"github.com/yousuf/tracemap/internal/logging"
	"github.com/yousuf/tracemap/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the error ingest server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func loaderOptions(cfg *config.Config) loader.Options {
	return loader.Options{
		StartDelay:     cfg.Loader.StartDelay.Duration,
		LoadDelay:      cfg.Loader.LoadDelay.Duration,
		RetryDelay:     cfg.Loader.RetryDelay.Duration,
		DebounceWindow: cfg.Loader.Debounce.Duration,
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("loaded configuration", "sources", len(cfg.Src), "src_root", cfg.SrcURL, "map_root", cfg.MapRoot())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deob := deobfuscator.New(
		deobfuscator.WithLogger(logger),
		deobfuscator.WithLoaderOptions(loaderOptions(cfg)),
	)
	defer func() {
		if err := deob.Close(); err != nil {
			logger.Warn("failed to close deobfuscator", "error", err)
		}
	}()

	if err := deob.Configure(ctx, cfg.Src, cfg.SrcURL, cfg.MapRoot()); err != nil {
		return err
	}

	srv := server.New(deob, server.Options{HideLogs: cfg.HideLogs, Logger: logger})
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tracemap listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
