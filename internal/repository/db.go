package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ConfigFrom combines a DSN with the pool settings from the application config.
func ConfigFrom(dsn string, c common.DatabaseConfig) Config {
	return Config{
		DSN:              dsn,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}

// DB is a database/sql handle plus the pgx pool when running on Postgres.
type DB struct {
	SQL     *sql.DB
	Pool    *pgxpool.Pool
	Dialect Dialect
	logger  *slog.Logger
}

// DetectDialect picks Postgres for postgres:// and postgresql:// DSNs and
// SQLite for everything else (sqlite://path, file:..., or a plain path).
func DetectDialect(dsn string) Dialect {
	d := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the database named by cfg.DSN.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, common.NewAppError("DB_DSN_MISSING", "database dsn is empty", common.ErrInvalidInput)
	}
	switch DetectDialect(cfg.DSN) {
	case DialectPostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		return openSQLite(ctx, cfg, logger)
	}
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "dialect", DialectPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, common.NewAppError("DB_DSN_INVALID", "parse dsn", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "invoice-extractor"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.NewAppError("DB_CONNECT", "connect", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}

	logger.Info("successfully connected to database")
	return &DB{SQL: stdlib.OpenDBFromPool(pool), Pool: pool, Dialect: DialectPostgres, logger: logger}, nil
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	path := strings.TrimPrefix(cfg.DSN, "sqlite://")
	logger.Info("connecting to database", "dialect", DialectSQLite, "path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.NewAppError("DB_CONNECT", "open sqlite", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}
	// one connection keeps :memory: databases shared and writers serialized
	db.SetMaxOpenConns(1)
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, common.NewAppError("DB_CONNECT", "ping sqlite", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		logger.Warn("sqlite pragma failed", "error", err)
	}
	logger.Info("successfully connected to database")
	return &DB{SQL: db, Dialect: DialectSQLite, logger: logger}, nil
}

// Close closes the database connections gracefully.
func (db *DB) Close() {
	db.logger.Info("closing database connections")
	if err := db.SQL.Close(); err != nil {
		db.logger.Error("failed to close sql handle", "error", err)
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
	db.logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	db.logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var err error
	if db.Pool != nil {
		err = db.Pool.Ping(ctx)
	} else {
		err = db.SQL.PingContext(ctx)
	}
	if err != nil {
		db.logger.Error("database ping failed", "error", err)
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	db.logger.Debug("database ping successful")
	return nil
}

// Rebind rewrites '?' placeholders into $1, $2, ... for Postgres.
func (db *DB) Rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
