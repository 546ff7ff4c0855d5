package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// DefaultConfig syncs every write.
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type slogAdapter struct {
	log *slog.Logger
}

func (l slogAdapter) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Infof(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("journal path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(slogAdapter{log: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return db, nil
}
