package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Connection testen
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &PostgresClient{pool: pool}
	if err := client.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return client, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS bus_sessions (
	id           UUID PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at  TIMESTAMPTZ,
	master_index INTEGER NOT NULL,
	slaves       JSONB NOT NULL,
	excluded     JSONB NOT NULL DEFAULT '[]',
	image_bytes  INTEGER NOT NULL,
	cycles       BIGINT NOT NULL DEFAULT 0,
	faults       BIGINT NOT NULL DEFAULT 0,
	overruns     BIGINT NOT NULL DEFAULT 0,
	exit_reason  TEXT
);

CREATE TABLE IF NOT EXISTS bus_faults (
	id                 BIGSERIAL PRIMARY KEY,
	session_id         UUID NOT NULL REFERENCES bus_sessions(id) ON DELETE CASCADE,
	recorded_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	kind               TEXT NOT NULL,
	cycle              BIGINT NOT NULL,
	consecutive_faults BIGINT NOT NULL,
	working_counter    INTEGER NOT NULL,
	expected_counter   INTEGER NOT NULL,
	message            TEXT
);

CREATE INDEX IF NOT EXISTS bus_faults_session_idx ON bus_faults (session_id, cycle);
`

func (p *PostgresClient) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.pool.Close()
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}
