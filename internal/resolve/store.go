package resolve

import (
	"context"
	"time"

	"candid.fyi/huntline/internal/db"
)

// Store is the slice of the database surface the resolver needs. *db.Pool
// satisfies it; tests provide stubs.
type Store interface {
	FindApplicationByThread(ctx context.Context, userID, threadID string) (*db.Application, error)
	ListApplicationsByExternalRef(ctx context.Context, userID, externalRefID string) ([]db.Application, error)
	ListCandidateApplications(ctx context.Context, userID string, opts db.CandidateQuery) ([]db.Application, error)
	GetApplicationByID(ctx context.Context, applicationID int64) (*db.Application, error)
	InsertApplication(ctx context.Context, app *db.Application) error
	UpdateApplication(ctx context.Context, applicationID int64, params db.UpdateApplicationParams, now time.Time) error
	InsertEmailMessage(ctx context.Context, email *db.EmailMessage) error
	InsertMatchEvent(ctx context.Context, event *db.MatchEvent) error
}

var _ Store = (*db.Pool)(nil)

// IndexSink receives applications after a successful upsert so the
// retrieval feature can reindex them. Calls are fire-and-forget: a sink
// failure never fails the merge.
type IndexSink interface {
	IndexApplication(ctx context.Context, app *db.Application) error
}
