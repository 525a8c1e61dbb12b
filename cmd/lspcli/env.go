package main

import (
	"fmt"

	"github.com/amondnet/claude-lsp-cli-sub001/internal/config"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/logging"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/paths"
	"github.com/amondnet/claude-lsp-cli-sub001/internal/storage"
)

// cliEnv bundles the shared runtime state every command needs: the state
// directory, loaded configuration, logger, and the open store.
type cliEnv struct {
	stateDir string
	cfg      *config.Config
	logger   *logging.Logger
	db       *storage.DB
}

func openEnv() (*cliEnv, error) {
	stateDir, err := paths.EnsureStateDir()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare state directory: %w", err)
	}

	cfg, err := config.Load(stateDir)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})

	db, err := storage.Open(stateDir, logger)
	if err != nil {
		return nil, err
	}

	return &cliEnv{
		stateDir: stateDir,
		cfg:      cfg,
		logger:   logger,
		db:       db,
	}, nil
}

func (e *cliEnv) close() {
	if e.db != nil {
		e.db.Close()
	}
}
