package types

import "time"

// Sync status values for an account.
const (
	SyncPending   = "pending"
	SyncSyncing   = "syncing"
	SyncCompleted = "completed"
	SyncError     = "error"
)

// Account represents one linked external mailbox and its sync state.
type Account struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Provider    string `json:"provider"`
	DisplayName string `json:"display_name,omitempty"`

	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPSecurity string `json:"imap_security"`
	// AppPassword is the encrypted credential blob; never the plaintext.
	AppPassword string `json:"-"`

	IsActive     bool       `json:"is_active"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
	SyncStatus   string     `json:"sync_status"`
	SyncProgress int        `json:"sync_progress"`
	TotalEmails  int        `json:"total_emails"`
	SyncedEmails int        `json:"synced_emails"`
	SyncError    string     `json:"sync_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Email represents one normalized message mirrored from a mailbox.
type Email struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"account_id"`
	UID       uint32 `json:"uid"`
	// UniqueID is "<account_id>:<uid>", globally unique across all accounts.
	UniqueID string `json:"unique_id"`

	Subject string `json:"subject,omitempty"`
	Sender  string `json:"sender,omitempty"`
	// Date is the Date header; InternalDate is the server-internal receive
	// time and is authoritative for ordering.
	Date         *time.Time `json:"date,omitempty"`
	InternalDate time.Time  `json:"internal_date"`
	HTML         string     `json:"html,omitempty"`
	Text         string     `json:"text,omitempty"`

	IsRead  bool `json:"is_read"`
	IsReply bool `json:"is_reply"`

	MessageID       string `json:"message_id,omitempty"`
	InReplyTo       string `json:"in_reply_to,omitempty"`
	ThreadID        string `json:"thread_id,omitempty"`
	ThreadPosition  int    `json:"thread_position"`
	ReplyCount      int    `json:"reply_count"`
	IsFirstInThread bool   `json:"is_first_in_thread"`

	HasAttachments  bool         `json:"has_attachments"`
	AttachmentCount int          `json:"attachment_count"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// SetAttachments records analyzed attachment metadata on the email so that
// presence, count and the metadata list always agree.
func (e *Email) SetAttachments(atts []Attachment) {
	e.Attachments = atts
	e.AttachmentCount = len(atts)
	e.HasAttachments = len(atts) > 0
}

// Attachment is attachment metadata only; payloads are never downloaded.
type Attachment struct {
	ID          int64  `json:"id"`
	EmailID     int64  `json:"email_id"`
	Part        string `json:"part"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        uint32 `json:"size"`
	Encoding    string `json:"encoding"`
}

// SyncProgress is the transient per-account progress row that exists while a
// sync run is in flight.
type SyncProgress struct {
	AccountID           int64     `json:"account_id"`
	TotalEmails         int       `json:"total_emails"`
	ProcessedEmails     int       `json:"processed_emails"`
	CurrentEmailSubject string    `json:"current_email_subject,omitempty"`
	StartedAt           time.Time `json:"started_at"`
	LastUpdate          time.Time `json:"last_update"`
}

// ThreadEntry is the slice of a persisted email that thread reconstruction
// reads back: identifiers and headers only, never bodies.
type ThreadEntry struct {
	ID        int64
	MessageID string
	InReplyTo string
	ThreadID  string
	Subject   string
}

// ThreadUpdate carries the corrected threading fields for one email.
type ThreadUpdate struct {
	EmailID         int64
	ThreadPosition  int
	ReplyCount      int
	IsFirstInThread bool
}
