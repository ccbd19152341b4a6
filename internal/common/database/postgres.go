// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"loan-eligibility/internal/common/config"

	_ "github.com/lib/pq"
)

// PredictionsTableDDL creates the audit table written by record-loan-prediction.
const PredictionsTableDDL = `
CREATE TABLE IF NOT EXISTS loan_predictions (
	id              UUID PRIMARY KEY,
	applicant       JSONB NOT NULL,
	probability     DOUBLE PRECISION NOT NULL,
	interpretation  TEXT NOT NULL,
	model_variant   TEXT NOT NULL,
	schema_version  TEXT NOT NULL,
	advice          JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// migrations run in order on every start; each one is idempotent.
var migrations = []struct {
	name string
	stmt string
}{
	{"loan_predictions", PredictionsTableDDL},
	{"loan_predictions_created_at_idx", `CREATE INDEX IF NOT EXISTS loan_predictions_created_at_idx ON loan_predictions (created_at DESC)`},
	{"loan_predictions_variant_idx", `CREATE INDEX IF NOT EXISTS loan_predictions_variant_idx ON loan_predictions (model_variant, interpretation)`},
}

// PostgresClient holds the pool the record worker and the history store share.
type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Migrate creates the prediction table and the indexes the history
// queries filter and sort on.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := c.DB.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
