// =============================================================================
// ASYCUDA Export - Serve Command
// =============================================================================
//
// COMMAND USAGE:
//   asycuda-export serve [--addr :8080]
//
// ENDPOINTS:
//   GET  /healthz            catalog version and ledger health
//   POST /api/process        build and validate a declaration from JSON rows
//   POST /api/export?format= render a declaration (xml, txt, xlsx, html)
//   GET  /api/match?q=       probe the HS code catalog
//   GET  /api/catalog        catalog statistics
//
// With catalog.watch enabled the reference file is reloaded when it changes;
// requests already running keep the catalog they started with.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/asycuda-export/internal/api"
	"github.com/ginjaninja78/asycuda-export/internal/pipeline"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from http.addr)")
}

func runServe(ctx context.Context) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.openBackends(ctx, false); err != nil {
		return err
	}

	p := pipeline.New(a.catalogs, pipeline.Options{
		Sequencer: a.sequencer,
		Logger:    a.logger,
	})

	var health api.Pinger
	if a.ledger != nil {
		health = a.ledger
	}
	srv := api.NewServer(p, a.mappings, health)

	if a.cfg.Catalog.Watch && a.cfg.Catalog.Path != "" {
		go func() {
			if err := a.catalogs.Watch(ctx); err != nil {
				a.logger.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
