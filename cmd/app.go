// =============================================================================
// ASYCUDA Export - Application Wiring
// =============================================================================
//
// This file loads the configuration and opens the backends shared by the
// commands: catalog store, artifact storage, ledger, sequencer and notifier.
//
// BACKEND SELECTION (config.yaml):
//   storage.type     local | s3
//   ledger.driver    none | sqlite | postgres
//   sequencer.type   memory | ledger | redis
//   notify.brokers   empty disables notifications
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ginjaninja78/asycuda-export/internal/catalog"
	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/ledger"
	"github.com/ginjaninja78/asycuda-export/internal/logging"
	"github.com/ginjaninja78/asycuda-export/internal/notify"
	"github.com/ginjaninja78/asycuda-export/internal/reference"
	"github.com/ginjaninja78/asycuda-export/internal/storage"
)

// app holds the loaded configuration and open backends.
type app struct {
	cfg      *config.MainConfig
	mappings []*config.MappingConfig
	catalogs *catalog.Store
	logger   *slog.Logger

	storage   storage.Storage
	ledger    *ledger.Ledger
	sequencer reference.Sequencer
	notifier  notify.Notifier

	closers []func() error
}

// loadApp reads the main configuration, sets up logging and loads the
// catalog. Mappings are loaded when withMappings is set.
func loadApp(withMappings bool) (*app, error) {
	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	a := &app{cfg: cfg, logger: logging.Setup(level, cfg.LogFormat)}

	a.catalogs, err = catalog.NewStore(cfg.Catalog.Path, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	if withMappings {
		a.mappings, err = config.LoadMappingConfigs(cfg.MappingsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load mapping configs: %w", err)
		}
		if len(a.mappings) == 0 {
			return nil, fmt.Errorf("no mapping configurations found in %s", cfg.MappingsDir)
		}
	}
	return a, nil
}

// openBackends opens the ledger, sequencer, notifier and, if withStorage is
// set, the artifact storage.
func (a *app) openBackends(ctx context.Context, withStorage bool) error {
	if a.cfg.Ledger.Driver != "" && a.cfg.Ledger.Driver != "none" {
		l, err := ledger.Open(a.cfg.Ledger)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		a.ledger = l
		a.closers = append(a.closers, l.Close)
	}

	switch a.cfg.Sequencer.Type {
	case "ledger":
		if a.ledger == nil {
			return errors.New("sequencer type ledger requires a ledger driver")
		}
		a.sequencer = a.ledger
	case "redis":
		rs := reference.NewRedisSequencer(a.cfg.Sequencer.RedisAddr)
		a.sequencer = rs
		a.closers = append(a.closers, rs.Close)
	default:
		a.sequencer = reference.NewCounter()
	}

	a.notifier = notify.New(a.cfg.Notify)
	a.closers = append(a.closers, a.notifier.Close)

	if withStorage {
		s, err := storage.New(ctx, a.cfg.Storage, a.cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		a.storage = s
	}

	a.logger.Debug("backends ready",
		"storage", a.cfg.Storage.Type,
		"ledger", a.cfg.Ledger.Driver,
		"sequencer", a.cfg.Sequencer.Type,
		"notify_brokers", len(a.cfg.Notify.Brokers),
	)
	return nil
}

// Close releases the backends in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close backend", "error", err)
		}
	}
}
