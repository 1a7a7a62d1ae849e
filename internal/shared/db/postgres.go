package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration

	// PingAttempts bounds how often the first ping is retried while the database comes up.
	PingAttempts int
	PingBackoff  time.Duration
}

func (cfg PostgresConfig) withDefaults() PostgresConfig {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 3 * time.Second
	}
	if cfg.PingAttempts <= 0 {
		cfg.PingAttempts = 1
	}
	if cfg.PingBackoff == 0 {
		cfg.PingBackoff = time.Second
	}
	return cfg
}

// OpenPostgres opens a pgx backed pool and pings it until it answers or attempts run out.
func OpenPostgres(ctx context.Context, log *slog.Logger, cfg PostgresConfig) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	cfg = cfg.withDefaults()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := ping(ctx, log, db, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ping(ctx context.Context, log *slog.Logger, db *sql.DB, cfg PostgresConfig) error {
	var err error
	for attempt := 1; attempt <= cfg.PingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == cfg.PingAttempts {
			break
		}

		log.Warn("db_ping_failed", slog.Int("attempt", attempt), slog.String("err", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.PingBackoff):
		}
	}
	return fmt.Errorf("ping postgres after %d attempts: %w", cfg.PingAttempts, err)
}
