package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brandon/mailmirror/pkg/types"
)

// ErrAccountNotFound is returned when an account id does not exist.
var ErrAccountNotFound = fmt.Errorf("account not found")

const accountColumns = `id, email, provider, COALESCE(display_name, ''), imap_host, imap_port, imap_security, app_password,
	is_active, last_sync, COALESCE(sync_status, 'pending'), sync_progress, total_emails, synced_emails, COALESCE(sync_error, ''),
	created_at, updated_at`

// CreateAccount inserts a new linked account and returns its id
func (s *Store) CreateAccount(ctx context.Context, acc *types.Account) (int64, error) {
	query := `
		INSERT INTO email_accounts (email, provider, display_name, imap_host, imap_port, imap_security, app_password)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.DB().ExecContext(ctx, query,
		acc.Email, acc.Provider, acc.DisplayName,
		acc.IMAPHost, acc.IMAPPort, acc.IMAPSecurity, acc.AppPassword,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get account id: %w", err)
	}
	return id, nil
}

// GetAccount retrieves an account by id
func (s *Store) GetAccount(ctx context.Context, id int64) (*types.Account, error) {
	row := s.db.DB().QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM email_accounts WHERE id = ?", id)

	acc, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// ListAccounts lists all linked accounts
func (s *Store) ListAccounts(ctx context.Context) ([]types.Account, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		"SELECT "+accountColumns+" FROM email_accounts ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []types.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account; its emails, attachments and progress row
// go with it via cascading deletes.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	result, err := s.db.DB().ExecContext(ctx, "DELETE FROM email_accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateAccount updates the mutable display fields of an account
func (s *Store) UpdateAccount(ctx context.Context, id int64, displayName *string, isActive *bool) error {
	query := "UPDATE email_accounts SET updated_at = CURRENT_TIMESTAMP"
	var args []interface{}
	if displayName != nil {
		query += ", display_name = ?"
		args = append(args, *displayName)
	}
	if isActive != nil {
		query += ", is_active = ?"
		args = append(args, *isActive)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// BeginSync transitions an account to the syncing state. The WHERE clause is
// the compare-and-swap guard: a second trigger while a run is in flight
// matches no row and reports false.
func (s *Store) BeginSync(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE email_accounts
		SET sync_status = ?, sync_progress = 0, sync_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND sync_status != ?
	`
	result, err := s.db.DB().ExecContext(ctx, query, types.SyncSyncing, id, types.SyncSyncing)
	if err != nil {
		return false, fmt.Errorf("failed to begin sync: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check begin sync result: %w", err)
	}
	return n == 1, nil
}

// SetSyncTotals records the mailbox size at the start of a run
func (s *Store) SetSyncTotals(ctx context.Context, id int64, total int) error {
	_, err := s.db.DB().ExecContext(ctx,
		"UPDATE email_accounts SET total_emails = ?, synced_emails = 0 WHERE id = ?", total, id)
	if err != nil {
		return fmt.Errorf("failed to set sync totals: %w", err)
	}
	return nil
}

// UpdateAccountProgress denormalizes progress onto the account row so polling
// does not need a join.
func (s *Store) UpdateAccountProgress(ctx context.Context, id int64, synced, percent int) error {
	_, err := s.db.DB().ExecContext(ctx,
		"UPDATE email_accounts SET synced_emails = ?, sync_progress = ? WHERE id = ?", synced, percent, id)
	if err != nil {
		return fmt.Errorf("failed to update account progress: %w", err)
	}
	return nil
}

// FinishSyncCompleted marks a run as successfully completed
func (s *Store) FinishSyncCompleted(ctx context.Context, id int64, synced int) error {
	query := `
		UPDATE email_accounts
		SET sync_status = ?, sync_progress = 100, synced_emails = ?, last_sync = CURRENT_TIMESTAMP,
			sync_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.DB().ExecContext(ctx, query, types.SyncCompleted, synced, id); err != nil {
		return fmt.Errorf("failed to finish sync: %w", err)
	}
	return nil
}

// FinishSyncEmpty marks a run against an empty mailbox as completed
func (s *Store) FinishSyncEmpty(ctx context.Context, id int64) error {
	query := `
		UPDATE email_accounts
		SET sync_status = ?, sync_progress = 100, total_emails = 0, synced_emails = 0,
			last_sync = CURRENT_TIMESTAMP, sync_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.DB().ExecContext(ctx, query, types.SyncCompleted, id); err != nil {
		return fmt.Errorf("failed to finish empty sync: %w", err)
	}
	return nil
}

// FinishSyncError records a failed run and its message
func (s *Store) FinishSyncError(ctx context.Context, id int64, message string) error {
	query := `
		UPDATE email_accounts
		SET sync_status = ?, sync_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := s.db.DB().ExecContext(ctx, query, types.SyncError, message, id); err != nil {
		return fmt.Errorf("failed to record sync error: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*types.Account, error) {
	var (
		acc       types.Account
		lastSync  sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(
		&acc.ID, &acc.Email, &acc.Provider, &acc.DisplayName,
		&acc.IMAPHost, &acc.IMAPPort, &acc.IMAPSecurity, &acc.AppPassword,
		&acc.IsActive, &lastSync, &acc.SyncStatus, &acc.SyncProgress,
		&acc.TotalEmails, &acc.SyncedEmails, &acc.SyncError,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if acc.LastSync, err = nullTime(lastSync); err != nil {
		return nil, err
	}
	if acc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if acc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &acc, nil
}
