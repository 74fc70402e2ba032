package config

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// OpenBadger opens the embedded badger database, on disk under
// cfg.Store.BadgerDir or purely in memory.
func OpenBadger(cfg AppConfig, log *zap.Logger) (*badger.DB, error) {
	var opts badger.Options
	if cfg.Store.BadgerInMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Store.BadgerDir)
	}
	if log != nil {
		opts = opts.WithLogger(badgerLogger{log.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
