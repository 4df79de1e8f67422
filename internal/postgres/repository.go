package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/metrics"
)

// dbPool is the subset of *pgxpool.Pool the repository uses
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Repository provides PostgreSQL-based data access for sessions, tasks and
// leaderboard entries
type Repository struct {
	pool   dbPool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping verifies the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	defer observe(ctx, "db.ping")()
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			title VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			estimated_time INT,
			remaining_time INT CHECK (remaining_time IS NULL OR remaining_time >= 0),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS pomodoro_sessions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			session_type VARCHAR(20) NOT NULL DEFAULT 'focus',
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			duration INT NOT NULL CHECK (duration >= 1),
			status VARCHAR(20) NOT NULL DEFAULT 'in-progress',
			completed_cycles INT NOT NULL DEFAULT 0,
			task_id VARCHAR(64),
			task_synced BOOLEAN NOT NULL DEFAULT FALSE,
			CHECK ((status = 'in-progress') = (end_time IS NULL))
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			user_id VARCHAR(64) PRIMARY KEY,
			total_focus_time BIGINT NOT NULL DEFAULT 0 CHECK (total_focus_time >= 0),
			completed_sessions BIGINT NOT NULL DEFAULT 0 CHECK (completed_sessions >= 0),
			completed_tasks BIGINT NOT NULL DEFAULT 0 CHECK (completed_tasks >= 0),
			weekly_score BIGINT NOT NULL DEFAULT 0 CHECK (weekly_score >= 0),
			monthly_score BIGINT NOT NULL DEFAULT 0 CHECK (monthly_score >= 0),
			last_updated TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_start ON pomodoro_sessions(user_id, start_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_status_end ON pomodoro_sessions(user_id, status, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_total ON leaderboard_entries(total_focus_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_weekly ON leaderboard_entries(weekly_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_monthly ON leaderboard_entries(monthly_score DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

func observe(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveDBLatency(ctx, operation, start)
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
