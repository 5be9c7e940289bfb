package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordFault appends a loop event to the fault log of a session.
func (p *PostgresClient) RecordFault(ctx context.Context, f *BusFault) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO bus_faults (session_id, kind, cycle, consecutive_faults, working_counter, expected_counter, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, recorded_at
	`, f.SessionID, f.Kind, int64(f.Cycle), int64(f.ConsecutiveFaults),
		int32(f.WorkingCounter), int32(f.ExpectedCounter), f.Message,
	).Scan(&f.ID, &f.RecordedAt)

	if err != nil {
		return fmt.Errorf("failed to insert bus fault: %w", err)
	}
	return nil
}

// ListFaults returns the most recent faults of a session, newest first.
func (p *PostgresClient) ListFaults(ctx context.Context, sessionID uuid.UUID, limit int) ([]*BusFault, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, recorded_at, kind, cycle, consecutive_faults,
		       working_counter, expected_counter, COALESCE(message, '')
		FROM bus_faults
		WHERE session_id = $1
		ORDER BY cycle DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bus faults: %w", err)
	}
	defer rows.Close()

	faults := make([]*BusFault, 0)
	for rows.Next() {
		var f BusFault
		var cycle, consecutive int64
		var wkc, expected int32
		if err := rows.Scan(&f.ID, &f.SessionID, &f.RecordedAt, &f.Kind, &cycle, &consecutive,
			&wkc, &expected, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan bus fault: %w", err)
		}
		f.Cycle, f.ConsecutiveFaults = uint64(cycle), uint64(consecutive)
		f.WorkingCounter, f.ExpectedCounter = uint16(wkc), uint16(expected)
		faults = append(faults, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bus faults: %w", err)
	}
	return faults, nil
}
