package consolidate

import (
	"context"
	"fmt"
	"strings"

	"candid.fyi/huntline/internal/db"
	"candid.fyi/huntline/internal/globaltime"
)

// ScanDuplicates is the read-only duplicate report: a full consolidation
// sweep with DryRun forced on, so nothing is written.
func (c *Consolidator) ScanDuplicates(ctx context.Context, userID string, progress func(string)) (*Result, error) {
	return c.Run(ctx, userID, Options{DryRun: true, Progress: progress})
}

// GhostedApplication is one ghost-scan finding.
type GhostedApplication struct {
	ApplicationID int64  `json:"application_id"`
	Company       string `json:"company"`
	RoleTitle     string `json:"role_title"`
	Status        string `json:"status"`
	DaysStale     int    `json:"days_stale"`
	Marked        bool   `json:"marked"`
}

// ScanGhosts finds live applications stuck in a pre-terminal status with no
// update for the configured window and, unless dryRun is set, marks them
// ghosted.
func (c *Consolidator) ScanGhosts(ctx context.Context, userID string, dryRun bool, progress func(string)) ([]GhostedApplication, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	now := globaltime.UTC()
	cutoff := now.AddDate(0, 0, -c.cfg.GhostAfterDays)

	stale, err := c.store.ListStaleApplications(ctx, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale applications: %w", err)
	}
	if progress != nil {
		progress(fmt.Sprintf("found %d applications with no update in %d days", len(stale), c.cfg.GhostAfterDays))
	}

	findings := make([]GhostedApplication, 0, len(stale))
	for _, app := range stale {
		finding := GhostedApplication{
			ApplicationID: app.ApplicationID,
			Company:       app.Company,
			RoleTitle:     app.RoleTitle,
			Status:        app.Status,
			DaysStale:     int(now.Sub(app.UpdatedAt).Hours() / 24),
		}

		if !dryRun {
			status := db.StatusGhosted
			if err := c.store.UpdateApplication(ctx, app.ApplicationID, db.UpdateApplicationParams{Status: &status}, now); err != nil {
				c.logger.Error().Err(err).
					Int64("application_id", app.ApplicationID).
					Msg("failed to mark application ghosted")
			} else {
				finding.Marked = true
				c.recordGhost(ctx, userID, &app, finding.DaysStale)
			}
		}
		findings = append(findings, finding)

		if progress != nil {
			verb := "would mark"
			if finding.Marked {
				verb = "marked"
			}
			progress(fmt.Sprintf("%s %s / %s ghosted (%d days stale)", verb, app.Company, app.RoleTitle, finding.DaysStale))
		}
	}
	return findings, nil
}

func (c *Consolidator) recordGhost(ctx context.Context, userID string, app *db.Application, daysStale int) {
	reasoning := fmt.Sprintf("no activity for %d days (threshold %d)", daysStale, c.cfg.GhostAfterDays)
	event := &db.MatchEvent{
		UserID:        userID,
		ApplicationID: &app.ApplicationID,
		Decision:      "ghosted",
		Layer:         "scan",
		Reasoning:     &reasoning,
		SignalCompany: app.Company,
		SignalRole:    app.RoleTitle,
		SignalStatus:  db.StatusGhosted,
	}
	if err := c.store.InsertMatchEvent(ctx, event); err != nil {
		c.logger.Error().Err(err).
			Int64("application_id", app.ApplicationID).
			Msg("failed to record ghost event")
	}
}

// StatusDrift is one drift-scan finding: the stored status lags the latest
// signal recorded for the application.
type StatusDrift struct {
	ApplicationID int64  `json:"application_id"`
	Company       string `json:"company"`
	RoleTitle     string `json:"role_title"`
	StoredStatus  string `json:"stored_status"`
	SignalStatus  string `json:"signal_status"`
}

// statusRank orders pipeline progress for the drift comparison. Terminal
// outcomes share the top rank; they are never "behind" each other.
func statusRank(status string) int {
	switch status {
	case db.StatusApplied:
		return 0
	case db.StatusScreen:
		return 1
	case db.StatusInterview:
		return 2
	case db.StatusOffer, db.StatusRejected, db.StatusGhosted:
		return 3
	}
	return -1
}

// ScanDrift reports applications whose stored status is behind the most
// recent signal status in the audit trail. It is read-only: drift usually
// means a later signal was judged a no-match, which a human should review.
func (c *Consolidator) ScanDrift(ctx context.Context, userID string, progress func(string)) ([]StatusDrift, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	apps, err := c.store.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	signals, err := c.store.LatestSignalStatuses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list latest signal statuses: %w", err)
	}

	latest := make(map[int64]string, len(signals))
	for _, row := range signals {
		latest[row.ApplicationID] = row.SignalStatus
	}

	var findings []StatusDrift
	for _, app := range apps {
		signalStatus, ok := latest[app.ApplicationID]
		if !ok {
			continue
		}
		signalRank := statusRank(signalStatus)
		storedRank := statusRank(app.Status)
		if signalRank < 0 || storedRank < 0 || signalRank <= storedRank {
			continue
		}

		findings = append(findings, StatusDrift{
			ApplicationID: app.ApplicationID,
			Company:       app.Company,
			RoleTitle:     app.RoleTitle,
			StoredStatus:  app.Status,
			SignalStatus:  signalStatus,
		})
		if progress != nil {
			progress(fmt.Sprintf("%s / %s stored as %s but last signal was %s", app.Company, app.RoleTitle, app.Status, signalStatus))
		}
	}

	if progress != nil {
		progress(fmt.Sprintf("drift scan finished: %d findings", len(findings)))
	}
	return findings, nil
}
