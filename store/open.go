package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cppla/hoppin/config"
)

// Open connects the backend selected by cfg.Store.Driver. The returned Store
// owns the connection; Close releases it.
func Open(ctx context.Context, cfg config.AppConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []Option{
		WithMaxAttempts(cfg.Store.MaxAttempts),
		WithLogger(log),
	}

	switch cfg.Store.Driver {
	case "badger", "":
		db, err := config.OpenBadger(cfg, log)
		if err != nil {
			return nil, err
		}
		return NewBadger(db, opts...), nil
	case "redis":
		rdb, err := config.NewRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRedis(rdb, opts...), nil
	case "mysql", "postgres":
		db, err := config.InitDatabase(cfg)
		if err != nil {
			return nil, err
		}
		return NewSQL(db, opts...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
