package sync

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/brandon/mailmirror/pkg/types"
)

// ThreadStore is the read-back and update surface thread reconstruction uses.
type ThreadStore interface {
	ListThreadEntries(ctx context.Context, accountID int64) ([]types.ThreadEntry, error)
	UpdateThreading(ctx context.Context, updates []types.ThreadUpdate) error
}

// ReconstructThreads groups an account's persisted emails into conversation
// threads and persists position, reply count and first-in-thread flags in one
// transaction. It runs after the fetch loop has drained and reads back only
// identifiers and headers, never whole bodies.
//
// Key precedence per email: the server-provided thread id; then, when the
// In-Reply-To header matches a message id already seen, the thread of that
// message (a single-hop lookup against a message-id index, not an
// ancestor-chain walk — chains still collapse because each link inherits its
// parent's key); then the normalized subject.
func ReconstructThreads(ctx context.Context, store ThreadStore, accountID int64) error {
	entries, err := store.ListThreadEntries(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to read back emails: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	// Entries arrive ordered by internal date ascending, so appending
	// preserves thread order and position 1 is always the oldest member.
	groups := make(map[string][]int64)
	keyByMessageID := make(map[string]string)
	for i := range entries {
		e := &entries[i]
		key := threadKey(e, keyByMessageID)
		groups[key] = append(groups[key], e.ID)
		if e.MessageID != "" {
			if _, ok := keyByMessageID[e.MessageID]; !ok {
				keyByMessageID[e.MessageID] = key
			}
		}
	}

	updates := make([]types.ThreadUpdate, 0, len(entries))
	for _, members := range groups {
		for i, id := range members {
			updates = append(updates, types.ThreadUpdate{
				EmailID:         id,
				ThreadPosition:  i + 1,
				ReplyCount:      len(members) - 1,
				IsFirstInThread: i == 0,
			})
		}
	}

	if err := store.UpdateThreading(ctx, updates); err != nil {
		return fmt.Errorf("failed to persist threading: %w", err)
	}
	return nil
}

// threadKey picks the grouping key for one email. A reply joins the group of
// the message it answers, so reply chains collapse into their root's thread.
func threadKey(e *types.ThreadEntry, keyByMessageID map[string]string) string {
	if e.ThreadID != "" {
		return "thread:" + e.ThreadID
	}
	if e.InReplyTo != "" {
		if key, ok := keyByMessageID[e.InReplyTo]; ok {
			return key
		}
	}
	return "subject:" + normalizeSubject(e.Subject)
}

var subjectPrefix = regexp.MustCompile(`^(?i)(re|fwd|fw):\s*`)

// normalizeSubject strips a leading Re:/Fwd:/Fw: prefix and surrounding
// whitespace; empty subjects collapse to a shared placeholder.
func normalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	s = strings.TrimSpace(subjectPrefix.ReplaceAllString(s, ""))
	if s == "" {
		return "no-subject"
	}
	return s
}
