package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StartSession stores a newly activated bus session.
func (p *PostgresClient) StartSession(ctx context.Context, s *BusSession) error {
	slavesJSON, err := json.Marshal(s.Slaves)
	if err != nil {
		return fmt.Errorf("failed to marshal slaves: %w", err)
	}
	excluded := s.Excluded
	if excluded == nil {
		excluded = []SlaveRecord{}
	}
	excludedJSON, err := json.Marshal(excluded)
	if err != nil {
		return fmt.Errorf("failed to marshal excluded slaves: %w", err)
	}

	err = p.pool.QueryRow(ctx, `
		INSERT INTO bus_sessions (id, master_index, slaves, excluded, image_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at
	`, s.ID, s.MasterIndex, slavesJSON, excludedJSON, s.ImageBytes).Scan(&s.StartedAt)

	if err != nil {
		return fmt.Errorf("failed to insert bus session: %w", err)
	}
	return nil
}

// FinishSession stores the final counters and exit reason.
func (p *PostgresClient) FinishSession(ctx context.Context, id uuid.UUID, cycles, faults, overruns uint64, reason string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE bus_sessions
		SET finished_at = now(), cycles = $2, faults = $3, overruns = $4, exit_reason = $5
		WHERE id = $1 AND finished_at IS NULL
	`, id, int64(cycles), int64(faults), int64(overruns), reason)

	if err != nil {
		return fmt.Errorf("failed to finish bus session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bus session not found or already finished: %s", id)
	}
	return nil
}

// GetSession loads one session.
func (p *PostgresClient) GetSession(ctx context.Context, id uuid.UUID) (*BusSession, error) {
	var s BusSession
	var slavesJSON, excludedJSON []byte
	var cycles, faults, overruns int64

	err := p.pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, master_index, slaves, excluded, image_bytes,
		       cycles, faults, overruns, exit_reason
		FROM bus_sessions
		WHERE id = $1
	`, id).Scan(
		&s.ID,
		&s.StartedAt,
		&s.FinishedAt,
		&s.MasterIndex,
		&slavesJSON,
		&excludedJSON,
		&s.ImageBytes,
		&cycles,
		&faults,
		&overruns,
		&s.ExitReason,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("bus session not found: %s", id)
		}
		return nil, fmt.Errorf("failed to load bus session: %w", err)
	}

	if err := json.Unmarshal(slavesJSON, &s.Slaves); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slaves: %w", err)
	}
	if err := json.Unmarshal(excludedJSON, &s.Excluded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal excluded slaves: %w", err)
	}
	s.Cycles, s.Faults, s.Overruns = uint64(cycles), uint64(faults), uint64(overruns)

	return &s, nil
}
