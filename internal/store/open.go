package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a backend
type Config struct {
	// Backend is one of memory, redis or sql
	Backend string

	Redis RedisConfig

	// Driver is the database/sql driver: sqlite3, pgx or postgres
	Driver string
	DSN    string
	Table  string
}

// Open creates the backend described by cfg
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case "", "memory":
		logger.Info("using memory store")
		return NewMemoryStore(), nil

	case "redis":
		rc := cfg.Redis
		if rc.PoolSize == 0 {
			rc.PoolSize = DefaultRedisConfig(rc.Addr).PoolSize
		}
		s := NewRedisStore(&rc)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
		}
		logger.Info("using redis store", zap.String("addr", rc.Addr))
		return s, nil

	case "sql":
		driver := cfg.Driver
		db, err := sql.Open(driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sc := DefaultSQLConfig(db, driver)
		if cfg.Table != "" {
			sc.TableName = cfg.Table
		}
		s, err := NewSQLStore(ctx, sc)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("using sql store",
			zap.String("driver", driver),
			zap.String("table", sc.TableName))
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend '%s'", cfg.Backend)
	}
}
