package db

import (
	"context"
	"fmt"
	"strings"
)

// InsertEmailMessage inserts a dependent conversation record and fills the
// generated identifier columns. Duplicate (user, message id) pairs are
// reported as a unique violation so re-delivered emails stay idempotent.
func (p *Pool) InsertEmailMessage(ctx context.Context, email *EmailMessage) error {
	if email == nil {
		return fmt.Errorf("email message is nil")
	}

	const q = `
INSERT INTO hunt.email_messages (
	user_id, application_id, thread_id, message_id,
	subject, from_address, received_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING email_id, email_uuid::text, created_at
`
	row := p.QueryRow(ctx, q,
		email.UserID, email.ApplicationID, email.ThreadID, email.MessageID,
		strings.TrimSpace(email.Subject), email.FromAddress, email.ReceivedAt.UTC(),
	)
	if err := row.Scan(&email.EmailID, &email.EmailUUID, &email.CreatedAt); err != nil {
		return fmt.Errorf("insert email message: %w", err)
	}
	return nil
}

// ReassignEmails moves every email owned by fromID to toID in one statement.
func (p *Pool) ReassignEmails(ctx context.Context, fromID, toID int64) (int64, error) {
	tag, err := p.Exec(ctx, `
UPDATE hunt.email_messages
SET application_id = $1
WHERE application_id = $2
`, toID, fromID)
	if err != nil {
		return 0, fmt.Errorf("reassign emails: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Pool) CountEmailsByApplication(ctx context.Context, applicationID int64) (int64, error) {
	var count int64
	row := p.QueryRow(ctx, `
SELECT COUNT(*)
FROM hunt.email_messages
WHERE application_id = $1
`, applicationID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count emails: %w", err)
	}
	return count, nil
}

// ListEmailsByApplication returns the dependent records for one application,
// newest first.
func (p *Pool) ListEmailsByApplication(ctx context.Context, applicationID int64) ([]EmailMessage, error) {
	rows, err := p.Query(ctx, `
SELECT
	email_id,
	email_uuid::text,
	user_id,
	application_id,
	thread_id,
	message_id,
	subject,
	from_address,
	received_at,
	created_at
FROM hunt.email_messages
WHERE application_id = $1
ORDER BY received_at DESC, email_id DESC
`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query emails by application: %w", err)
	}
	defer rows.Close()

	var emails []EmailMessage
	for rows.Next() {
		var e EmailMessage
		if err := rows.Scan(
			&e.EmailID, &e.EmailUUID, &e.UserID, &e.ApplicationID,
			&e.ThreadID, &e.MessageID, &e.Subject, &e.FromAddress,
			&e.ReceivedAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan email row: %w", err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate email rows: %w", err)
	}
	return emails, nil
}
