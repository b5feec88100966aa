package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brandon/mailmirror/pkg/types"
)

// StartSyncProgress creates the transient progress row for a run, replacing
// any stale row from a previous run.
func (s *Store) StartSyncProgress(ctx context.Context, accountID int64, total int) error {
	if _, err := s.db.DB().ExecContext(ctx,
		"DELETE FROM sync_progress WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("failed to clear stale progress: %w", err)
	}

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO sync_progress (account_id, total_emails, processed_emails, started_at)
		VALUES (?, ?, 0, CURRENT_TIMESTAMP)
	`, accountID, total)
	if err != nil {
		return fmt.Errorf("failed to create progress row: %w", err)
	}
	return nil
}

// UpdateSyncProgress updates the counters on the progress row. This is a
// single short statement so it never serializes behind a batch flush.
func (s *Store) UpdateSyncProgress(ctx context.Context, accountID int64, processed int, subject string) error {
	_, err := s.db.DB().ExecContext(ctx, `
		UPDATE sync_progress
		SET processed_emails = ?, current_email_subject = ?, last_update = CURRENT_TIMESTAMP
		WHERE account_id = ?
	`, processed, subject, accountID)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// GetSyncProgress returns the progress row for an account, or nil when no run
// is in flight.
func (s *Store) GetSyncProgress(ctx context.Context, accountID int64) (*types.SyncProgress, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT account_id, total_emails, processed_emails, COALESCE(current_email_subject, ''),
			started_at, last_update
		FROM sync_progress WHERE account_id = ?
	`, accountID)

	var (
		p          types.SyncProgress
		startedAt  sql.NullString
		lastUpdate string
	)
	err := row.Scan(&p.AccountID, &p.TotalEmails, &p.ProcessedEmails,
		&p.CurrentEmailSubject, &startedAt, &lastUpdate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	if startedAt.Valid {
		t, err := parseTime(startedAt.String)
		if err != nil {
			return nil, err
		}
		p.StartedAt = t
	}
	if p.LastUpdate, err = parseTime(lastUpdate); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteSyncProgress removes the progress row at run end, success or error
func (s *Store) DeleteSyncProgress(ctx context.Context, accountID int64) error {
	_, err := s.db.DB().ExecContext(ctx,
		"DELETE FROM sync_progress WHERE account_id = ?", accountID)
	if err != nil {
		return fmt.Errorf("failed to delete progress row: %w", err)
	}
	return nil
}
