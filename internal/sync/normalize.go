package sync

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/k3a/html2text"

	"github.com/brandon/mailmirror/internal/mailbox"
	"github.com/brandon/mailmirror/pkg/types"
)

// Normalize converts one raw message and its parsed form into a canonical
// Email record. Threading fields get single-message defaults here; the
// reconstruction pass corrects them once the whole mailbox is persisted, so
// normalization never needs more than one message in memory.
func Normalize(accountID int64, raw *mailbox.RawMessage, parsed *ParsedMessage) *types.Email {
	return &types.Email{
		AccountID:    accountID,
		UID:          raw.UID,
		UniqueID:     UniqueEmailID(accountID, raw.UID),
		Subject:      parsed.Subject,
		Sender:       parsed.From,
		Date:         parsed.Date,
		InternalDate: raw.InternalDate,
		HTML:         parsed.HTML,
		Text:         textBody(parsed),

		IsRead:  hasFlag(raw.Flags, imap.SeenFlag),
		IsReply: parsed.InReplyTo != "" || len(parsed.References) > 0,

		MessageID:       parsed.MessageID,
		InReplyTo:       parsed.InReplyTo,
		ThreadID:        raw.ThreadID,
		ThreadPosition:  1,
		ReplyCount:      0,
		IsFirstInThread: true,
	}
}

// UniqueEmailID builds the globally unique "<account_id>:<uid>" key. UIDs are
// unique only within one account's mailbox.
func UniqueEmailID(accountID int64, uid uint32) string {
	return fmt.Sprintf("%d:%d", accountID, uid)
}

// textBody returns the plain-text body, deriving one from the HTML part for
// HTML-only messages.
func textBody(parsed *ParsedMessage) string {
	if parsed.Text != "" {
		return parsed.Text
	}
	if parsed.HTML == "" {
		return ""
	}
	return strings.TrimSpace(html2text.HTML2Text(parsed.HTML))
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}
