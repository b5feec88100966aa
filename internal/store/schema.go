package store

// Schema contains the SQL schema definitions
const Schema = `
-- Linked mailbox accounts and their sync state
CREATE TABLE IF NOT EXISTS email_accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    provider TEXT NOT NULL,
    display_name TEXT,

    imap_host TEXT NOT NULL,
    imap_port INTEGER NOT NULL,
    imap_security TEXT NOT NULL,
    app_password TEXT NOT NULL,

    is_active BOOLEAN DEFAULT 1,
    last_sync DATETIME,
    sync_status TEXT DEFAULT 'pending',
    sync_progress INTEGER DEFAULT 0,
    total_emails INTEGER DEFAULT 0,
    synced_emails INTEGER DEFAULT 0,
    sync_error TEXT,

    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Mirrored messages; fully replaced on every sync run for an account
CREATE TABLE IF NOT EXISTS emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL,
    uid INTEGER NOT NULL,
    unique_id TEXT UNIQUE NOT NULL,

    subject TEXT,
    sender TEXT,
    date TEXT,
    internal_date TEXT,
    html TEXT,
    text_content TEXT,

    is_read BOOLEAN DEFAULT 0,
    is_reply BOOLEAN DEFAULT 0,
    is_first_in_thread BOOLEAN DEFAULT 1,

    message_id TEXT,
    in_reply_to TEXT,
    thread_id TEXT,
    thread_position INTEGER DEFAULT 1,
    reply_count INTEGER DEFAULT 0,

    has_attachments BOOLEAN DEFAULT 0,
    attachment_count INTEGER DEFAULT 0,

    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (account_id) REFERENCES email_accounts (id) ON DELETE CASCADE
);

-- Attachment metadata only; payloads stay on the server
CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id INTEGER NOT NULL,
    part TEXT,
    filename TEXT,
    content_type TEXT,
    size INTEGER,
    encoding TEXT,

    FOREIGN KEY (email_id) REFERENCES emails (id) ON DELETE CASCADE
);

-- Transient per-account progress; a row exists iff a sync run is in flight
CREATE TABLE IF NOT EXISTS sync_progress (
    account_id INTEGER PRIMARY KEY,
    total_emails INTEGER DEFAULT 0,
    processed_emails INTEGER DEFAULT 0,
    current_email_subject TEXT,
    started_at DATETIME,
    last_update DATETIME DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (account_id) REFERENCES email_accounts (id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_emails_account_uid ON emails (account_id, uid);
CREATE INDEX IF NOT EXISTS idx_emails_account_internal_date ON emails (account_id, internal_date);
CREATE INDEX IF NOT EXISTS idx_emails_thread ON emails (account_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails (message_id);
CREATE INDEX IF NOT EXISTS idx_attachments_email_id ON attachments (email_id);
`
