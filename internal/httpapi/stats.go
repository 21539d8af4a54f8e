package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
)

type statsResponse struct {
	Applications         int64            `json:"applications"`
	EmailMessages        int64            `json:"email_messages"`
	MatchEvents          int64            `json:"match_events"`
	RunningRuns          int64            `json:"running_consolidation_runs"`
	LastSignalAt         *time.Time       `json:"last_signal_at,omitempty"`
	LastRunFinishedAt    *time.Time       `json:"last_run_finished_at,omitempty"`
	ApplicationsByStatus map[string]int64 `json:"applications_by_status"`
	DecisionCounts       map[string]int64 `json:"decision_counts"`
}

func (s *Server) handleStats(c echo.Context) error {
	userID := requestUserID(c)
	if userID == "" {
		return failValidation(c, map[string]string{"user_id": "X-User-ID header is required"})
	}

	stats, err := s.queryStats(c.Request().Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) queryStats(ctx context.Context, userID string) (*statsResponse, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM hunt.applications WHERE user_id = $1 AND deleted_at IS NULL) AS applications,
	(SELECT COUNT(*) FROM hunt.email_messages WHERE user_id = $1) AS email_messages,
	(SELECT COUNT(*) FROM hunt.match_events WHERE user_id = $1) AS match_events,
	(SELECT COUNT(*) FROM hunt.consolidation_runs WHERE user_id = $1 AND status = 'running') AS running_runs,
	(SELECT MAX(created_at) FROM hunt.match_events WHERE user_id = $1) AS last_signal_at,
	(SELECT MAX(finished_at) FROM hunt.consolidation_runs WHERE user_id = $1) AS last_run_finished_at
`

	var stats statsResponse
	if err := s.pool.QueryRow(ctx, q, userID).Scan(
		&stats.Applications,
		&stats.EmailMessages,
		&stats.MatchEvents,
		&stats.RunningRuns,
		&stats.LastSignalAt,
		&stats.LastRunFinishedAt,
	); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	const statusQuery = `
SELECT status, COUNT(*)::BIGINT
FROM hunt.applications
WHERE user_id = $1
  AND deleted_at IS NULL
GROUP BY status
ORDER BY status
`
	statusRows, err := s.pool.Query(ctx, statusQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer statusRows.Close()

	stats.ApplicationsByStatus = map[string]int64{}
	for statusRows.Next() {
		var status string
		var count int64
		if err := statusRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ApplicationsByStatus[status] = count
	}
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	const decisionQuery = `
SELECT decision, COUNT(*)::BIGINT
FROM hunt.match_events
WHERE user_id = $1
GROUP BY decision
ORDER BY decision
`
	decisionRows, err := s.pool.Query(ctx, decisionQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("query decision counts: %w", err)
	}
	defer decisionRows.Close()

	stats.DecisionCounts = map[string]int64{}
	for decisionRows.Next() {
		var decision string
		var count int64
		if err := decisionRows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		stats.DecisionCounts[decision] = count
	}
	if err := decisionRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision counts: %w", err)
	}

	return &stats, nil
}
