package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/chanreset/internal/config"
	"github.com/flemzord/chanreset/internal/taskstore"
	"github.com/flemzord/chanreset/modules/store/postgres"
	"github.com/flemzord/chanreset/modules/store/sqlite"
)

// closer is implemented by backends holding a connection.
type closer interface {
	Close() error
}

// OpenBackend returns the persistent backend selected by cfg.Driver.
func OpenBackend(ctx context.Context, cfg config.StoreConfig) (taskstore.PersistentStore, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return taskstore.NewFileBackend(cfg.Path), nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.Path)
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.Driver)
	}
}

// OpenStore opens the backend and loads the task store from it. Corrupt
// state aborts unless onCorrupt is "reset", in which case the store starts
// empty and the next write replaces the bad state.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*taskstore.Store, taskstore.PersistentStore, error) {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	store := taskstore.New(backend)
	loaded, err := store.Load(ctx)
	if err != nil {
		var corrupt *taskstore.CorruptStateError
		if errors.As(err, &corrupt) && cfg.OnCorrupt == config.OnCorruptReset {
			logger.Warn("app: task store is corrupt, starting empty", "driver", cfg.Driver, "error", err)
			return store, backend, nil
		}
		closeBackend(backend)
		return nil, nil, fmt.Errorf("app: load task store: %w", err)
	}

	n := 0
	for _, list := range loaded {
		n += len(list)
	}
	logger.Info("app: task store loaded", "driver", cfg.Driver, "tasks", n, "groups", len(loaded))
	return store, backend, nil
}

func closeBackend(backend taskstore.PersistentStore) {
	if c, ok := backend.(closer); ok {
		_ = c.Close()
	}
}
