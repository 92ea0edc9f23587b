package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/liqun1981/lee-wave-analysis/internal/api"
	"github.com/liqun1981/lee-wave-analysis/internal/results"
	"github.com/liqun1981/lee-wave-analysis/internal/search"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveNoArchive bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dispersion calculators and search engine over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default $LEEWAVE_HTTP_ADDR or :8080)")
	serveCmd.Flags().BoolVar(&serveNoArchive, "no-archive", false, "do not archive completed searches")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		return err
	}
	srvCfg := loadServerConfig(logger)
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	searchCfg := loadSearchConfig(logger)

	engine := search.NewEngine(searchCfg.Workers, logger)

	var archive *results.Archive
	if !serveNoArchive {
		archiveCfg := loadArchiveConfig(logger)
		archive, err = results.Open(archiveCfg.Dir, archiveCfg.MaxRuns, logger)
		if err != nil {
			logger.Error("opening run archive failed", "dir", archiveCfg.Dir, "error", err)
			return err
		}
		defer archive.Close()
		logger.Info("run archive opened", "dir", archiveCfg.Dir, "max_runs", archiveCfg.MaxRuns)
	}

	srv := api.NewServer(srvCfg.Addr, logger, authCfg, api.Options{
		Engine:             engine,
		Archive:            archive,
		MaxConcurrentPerIP: srvCfg.MaxConcurrentPerIP,
		MaxGridSize:        srvCfg.MaxGridSize,
		CacheSize:          srvCfg.CacheSize,
		TrustProxy:         srvCfg.TrustProxy,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", srvCfg.Addr,
			"auth_enabled", authCfg.Enabled,
			"workers", engine.Workers(),
			"archive", archive != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server listen error", "error", err)
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
