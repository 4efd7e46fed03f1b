package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pagepick/backend/internal/db"
)

// Options selects and configures a store backend.
type Options struct {
	Driver        string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DialTimeout   time.Duration
}

// Open returns the configured store and a function releasing its resources.
func Open(ctx context.Context, opts Options) (SelectionStore, func() error, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), func() error { return nil }, nil
	case DriverSQLite:
		conn, err := db.InitDB(opts.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return NewSelectionRepository(conn), db.CloseDB, nil
	case DriverRedis:
		timeout := opts.DialTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client, err := ConnectRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, timeout)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(client), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}
