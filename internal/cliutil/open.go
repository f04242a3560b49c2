package cliutil

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/config"
	"github.com/ministore/objectdb/internal/logger"
	"github.com/ministore/objectdb/objectdb"
	"github.com/ministore/objectdb/objectdb/storage"
	"github.com/ministore/objectdb/objectdb/storage/postgres"
	"github.com/ministore/objectdb/objectdb/storage/sqlite"
)

// Session is an open store plus the configuration it was opened with.
type Session struct {
	DB     *objectdb.DB
	Config config.Config
	Log    *zap.Logger
}

// LoadConfig reads the config file named by the global options (or the
// defaults) and applies the flag overrides.
func LoadConfig(g cliopt.GlobalOptions) (config.Config, error) {
	cfg := config.Default()
	if g.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(g.ConfigPath); err != nil {
			return config.Config{}, err
		}
	}
	if g.Backend != "" {
		cfg.Storage.Backend = g.Backend
	}
	if g.DBPath != "" {
		cfg.Storage.SQLite.Path = g.DBPath
	}
	if g.SQLiteDriver != "" {
		cfg.Storage.SQLite.Driver = g.SQLiteDriver
	}
	if g.PostgresDSN != "" {
		cfg.Storage.Postgres.DSN = g.PostgresDSN
	}
	if g.PostgresSchema != "" {
		cfg.Storage.Postgres.Schema = g.PostgresSchema
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

// NewAdapter builds the storage adapter selected by cfg.
func NewAdapter(cfg config.Config) (storage.Adapter, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return sqlite.NewWithDriver(cfg.Storage.SQLite.Path, cfg.Storage.SQLite.Driver), nil
	case "postgres":
		return postgres.New(cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.Schema), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Storage.Backend)
	}
}

// Open loads the configuration and opens the store it describes.
func Open(ctx context.Context, g cliopt.GlobalOptions) (*Session, error) {
	cfg, err := LoadConfig(g)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	adapter, err := NewAdapter(cfg)
	if err != nil {
		return nil, err
	}
	opts := objectdb.DefaultOptions()
	opts.Logger = log
	opts.Codec = cfg.Codec()
	db, err := objectdb.Open(ctx, adapter, opts)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &Session{DB: db, Config: cfg, Log: log}, nil
}

// Close commits pending work and closes the store.
func (s *Session) Close() error {
	err := s.DB.Close()
	_ = s.Log.Sync()
	return err
}
