package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

const createAttemptsTable = `
	CREATE TABLE IF NOT EXISTS liquidation_attempts (
		id              UUID PRIMARY KEY,
		mode            TEXT NOT NULL,
		borrower        TEXT NOT NULL,
		collateral_pool INTEGER NOT NULL,
		debt_pool       INTEGER NOT NULL,
		min_collateral  DOUBLE PRECISION NOT NULL,
		debt_repay      DOUBLE PRECISION NOT NULL,
		liquidated_usd  DOUBLE PRECISION NOT NULL,
		health_ratio    DOUBLE PRECISION NOT NULL,
		status          TEXT NOT NULL,
		signatures      TEXT[] NOT NULL DEFAULT '{}',
		error           TEXT NOT NULL DEFAULT '',
		started_at      TIMESTAMPTZ NOT NULL,
		finished_at     TIMESTAMPTZ NOT NULL
	)
`

const insertAttempt = `
	INSERT INTO liquidation_attempts (
		id, mode, borrower, collateral_pool, debt_pool,
		min_collateral, debt_repay, liquidated_usd, health_ratio,
		status, signatures, error, started_at, finished_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
	)
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects to PostgreSQL and makes sure the attempts table exists.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := NewPostgresStorageFromDB(db, cfg.Logger)
	err = p.EnsureSchema(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

// NewPostgresStorageFromDB wraps an already opened database handle.
func NewPostgresStorageFromDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the liquidation_attempts table if it is missing.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, createAttemptsTable)
	if err != nil {
		return fmt.Errorf("create liquidation_attempts: %w", err)
	}
	return nil
}

// StoreAttempt stores a liquidation attempt in PostgreSQL.
func (p *PostgresStorage) StoreAttempt(ctx context.Context, attempt *types.LiquidationAttempt) error {
	plan := attempt.Plan
	signatures := attempt.Signatures
	if signatures == nil {
		signatures = []string{}
	}

	_, err := p.db.ExecContext(ctx, insertAttempt,
		attempt.ID,
		attempt.Mode,
		plan.Borrower,
		int(plan.CollateralPool),
		int(plan.DebtPool),
		plan.MinCollateral,
		plan.DebtRepay,
		plan.LiquidatedValue,
		plan.HealthRatio,
		string(attempt.Status),
		pq.Array(signatures),
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	p.logger.Debug("attempt-stored",
		zap.String("attempt-id", attempt.ID),
		zap.String("borrower", plan.Borrower),
		zap.String("status", string(attempt.Status)))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
