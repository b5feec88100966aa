package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brandon/mailmirror/pkg/types"
)

// DeleteEmailsForAccount removes all mirrored emails for an account.
// Attachment rows cascade.
func (s *Store) DeleteEmailsForAccount(ctx context.Context, accountID int64) error {
	_, err := s.db.DB().ExecContext(ctx, "DELETE FROM emails WHERE account_id = ?", accountID)
	if err != nil {
		return fmt.Errorf("failed to delete emails: %w", err)
	}
	return nil
}

// InsertEmailBatch inserts a batch of emails and their attachment metadata in
// one transaction. The generated email rowids feed the attachment foreign
// keys. A failure rolls back the whole batch.
func (s *Store) InsertEmailBatch(ctx context.Context, emails []*types.Email) error {
	if len(emails) == 0 {
		return nil
	}

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	emailStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO emails (
			account_id, uid, unique_id, subject, sender, date, internal_date,
			html, text_content, is_read, is_reply, is_first_in_thread,
			message_id, in_reply_to, thread_id, thread_position, reply_count,
			has_attachments, attachment_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare email insert: %w", err)
	}
	defer emailStmt.Close()

	attStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attachments (email_id, part, filename, content_type, size, encoding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare attachment insert: %w", err)
	}
	defer attStmt.Close()

	for _, email := range emails {
		var date interface{}
		if email.Date != nil {
			date = email.Date.UTC().Format(time.RFC3339)
		}

		result, err := emailStmt.ExecContext(ctx,
			email.AccountID, email.UID, email.UniqueID,
			email.Subject, email.Sender, date,
			email.InternalDate.UTC().Format(time.RFC3339),
			email.HTML, email.Text,
			email.IsRead, email.IsReply, email.IsFirstInThread,
			email.MessageID, email.InReplyTo, email.ThreadID,
			email.ThreadPosition, email.ReplyCount,
			email.HasAttachments, email.AttachmentCount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert email %s: %w", email.UniqueID, err)
		}

		emailID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get email id: %w", err)
		}

		for _, att := range email.Attachments {
			if _, err := attStmt.ExecContext(ctx,
				emailID, att.Part, att.Filename, att.ContentType, att.Size, att.Encoding,
			); err != nil {
				return fmt.Errorf("failed to insert attachment for email %s: %w", email.UniqueID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// CountEmailsForAccount returns the number of mirrored emails for an account
func (s *Store) CountEmailsForAccount(ctx context.Context, accountID int64) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM emails WHERE account_id = ?", accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return count, nil
}

// ListEmails returns a page of mirrored emails for display, newest first by
// server-internal date. Bodies are included; attachment payloads never exist.
func (s *Store) ListEmails(ctx context.Context, accountID int64, limit, offset int) ([]types.Email, error) {
	query := `
		SELECT id, account_id, uid, unique_id, COALESCE(subject, ''), COALESCE(sender, ''),
			date, internal_date, COALESCE(html, ''), COALESCE(text_content, ''),
			is_read, is_reply, is_first_in_thread,
			COALESCE(message_id, ''), COALESCE(in_reply_to, ''), COALESCE(thread_id, ''),
			thread_position, reply_count, has_attachments, attachment_count
		FROM emails
		WHERE account_id = ?
		ORDER BY internal_date DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.DB().QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	var emails []types.Email
	for rows.Next() {
		var (
			email        types.Email
			date         sql.NullString
			internalDate string
		)
		err := rows.Scan(
			&email.ID, &email.AccountID, &email.UID, &email.UniqueID,
			&email.Subject, &email.Sender, &date, &internalDate,
			&email.HTML, &email.Text,
			&email.IsRead, &email.IsReply, &email.IsFirstInThread,
			&email.MessageID, &email.InReplyTo, &email.ThreadID,
			&email.ThreadPosition, &email.ReplyCount,
			&email.HasAttachments, &email.AttachmentCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}

		if email.Date, err = nullTime(date); err != nil {
			return nil, err
		}
		if email.InternalDate, err = parseTime(internalDate); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// ListAttachments returns the attachment metadata for one email
func (s *Store) ListAttachments(ctx context.Context, emailID int64) ([]types.Attachment, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, email_id, COALESCE(part, ''), COALESCE(filename, ''),
			COALESCE(content_type, ''), COALESCE(size, 0), COALESCE(encoding, '')
		FROM attachments WHERE email_id = ? ORDER BY id
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var atts []types.Attachment
	for rows.Next() {
		var att types.Attachment
		if err := rows.Scan(&att.ID, &att.EmailID, &att.Part, &att.Filename,
			&att.ContentType, &att.Size, &att.Encoding); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

// ListThreadEntries reads back the persisted emails of an account for thread
// reconstruction, ordered by server-internal date ascending. Only identifiers
// and headers are loaded.
func (s *Store) ListThreadEntries(ctx context.Context, accountID int64) ([]types.ThreadEntry, error) {
	query := `
		SELECT id, COALESCE(message_id, ''), COALESCE(in_reply_to, ''),
			COALESCE(thread_id, ''), COALESCE(subject, '')
		FROM emails
		WHERE account_id = ?
		ORDER BY internal_date ASC, id ASC
	`
	rows, err := s.db.DB().QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread entries: %w", err)
	}
	defer rows.Close()

	var entries []types.ThreadEntry
	for rows.Next() {
		var e types.ThreadEntry
		if err := rows.Scan(&e.ID, &e.MessageID, &e.InReplyTo, &e.ThreadID, &e.Subject); err != nil {
			return nil, fmt.Errorf("failed to scan thread entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateThreading applies corrected threading fields in one transaction
func (s *Store) UpdateThreading(ctx context.Context, updates []types.ThreadUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin threading transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE emails
		SET thread_position = ?, reply_count = ?, is_first_in_thread = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare threading update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx,
			u.ThreadPosition, u.ReplyCount, u.IsFirstInThread, u.EmailID); err != nil {
			return fmt.Errorf("failed to update threading for email %d: %w", u.EmailID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit threading update: %w", err)
	}
	return nil
}
