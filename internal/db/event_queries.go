package db

import (
	"context"
	"fmt"
	"time"
)

// InsertMatchEvent appends one row to the resolution audit trail.
func (p *Pool) InsertMatchEvent(ctx context.Context, event *MatchEvent) error {
	if event == nil {
		return fmt.Errorf("match event is nil")
	}

	const q = `
INSERT INTO hunt.match_events (
	user_id, application_id, decision, layer,
	confidence, reasoning, signal_company, signal_role, signal_status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING match_event_id, match_event_uuid::text, created_at
`
	row := p.QueryRow(ctx, q,
		event.UserID, event.ApplicationID, event.Decision, event.Layer,
		event.Confidence, event.Reasoning, event.SignalCompany, event.SignalRole, event.SignalStatus,
	)
	if err := row.Scan(&event.MatchEventID, &event.MatchEventUUID, &event.CreatedAt); err != nil {
		return fmt.Errorf("insert match event: %w", err)
	}
	return nil
}

// SignalStatusRow is the latest recorded signal status per application,
// used by the drift scan to spot stored statuses lagging behind signals.
type SignalStatusRow struct {
	ApplicationID int64
	SignalStatus  string
	RecordedAt    time.Time
}

func (p *Pool) LatestSignalStatuses(ctx context.Context, userID string) ([]SignalStatusRow, error) {
	rows, err := p.Query(ctx, `
SELECT DISTINCT ON (application_id)
	application_id,
	signal_status,
	created_at
FROM hunt.match_events
WHERE user_id = $1
  AND application_id IS NOT NULL
  AND signal_status <> ''
ORDER BY application_id, created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("query latest signal statuses: %w", err)
	}
	defer rows.Close()

	var statuses []SignalStatusRow
	for rows.Next() {
		var row SignalStatusRow
		if err := rows.Scan(&row.ApplicationID, &row.SignalStatus, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan signal status row: %w", err)
		}
		statuses = append(statuses, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal status rows: %w", err)
	}
	return statuses, nil
}

// InsertConsolidationRun records the start of a batch consolidation sweep.
func (p *Pool) InsertConsolidationRun(ctx context.Context, run *ConsolidationRun) error {
	if run == nil {
		return fmt.Errorf("consolidation run is nil")
	}

	const q = `
INSERT INTO hunt.consolidation_runs (run_uuid, user_id, status)
VALUES ($1::uuid, $2, 'running')
RETURNING run_id, started_at
`
	row := p.QueryRow(ctx, q, run.RunUUID, run.UserID)
	if err := row.Scan(&run.RunID, &run.StartedAt); err != nil {
		return fmt.Errorf("insert consolidation run: %w", err)
	}
	run.Status = "running"
	return nil
}

// FinishConsolidationRun closes a batch run with its final counters.
func (p *Pool) FinishConsolidationRun(ctx context.Context, runID int64, status string, groups, merges int, errorMessage *string, now time.Time) error {
	tag, err := p.Exec(ctx, `
UPDATE hunt.consolidation_runs
SET
	finished_at = $2,
	status = $3,
	groups_scanned = $4,
	merges_applied = $5,
	error_message = $6
WHERE run_id = $1
`, runID, now.UTC(), status, groups, merges, errorMessage)
	if err != nil {
		return fmt.Errorf("finish consolidation run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}
