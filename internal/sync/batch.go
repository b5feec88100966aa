package sync

import (
	"context"
	"fmt"

	"github.com/brandon/mailmirror/pkg/types"
)

// EmailWriter persists one batch of emails and their attachments atomically.
type EmailWriter interface {
	InsertEmailBatch(ctx context.Context, emails []*types.Email) error
}

// BatchWriter accumulates normalized emails and flushes them in fixed-size
// transactional batches, bounding peak memory independent of mailbox size.
type BatchWriter struct {
	store   EmailWriter
	size    int
	buf     []*types.Email
	written int
}

// NewBatchWriter creates a writer that flushes every size emails.
func NewBatchWriter(store EmailWriter, size int) *BatchWriter {
	if size < 1 {
		size = 1
	}
	return &BatchWriter{
		store: store,
		size:  size,
		buf:   make([]*types.Email, 0, size),
	}
}

// Append buffers one email, flushing when the buffer reaches capacity.
func (w *BatchWriter) Append(ctx context.Context, email *types.Email) error {
	w.buf = append(w.buf, email)
	if len(w.buf) >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered emails in one transaction and releases the
// buffer. A storage failure aborts the run; batches committed earlier stay
// persisted.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.store.InsertEmailBatch(ctx, w.buf); err != nil {
		return fmt.Errorf("failed to flush batch of %d emails: %w", len(w.buf), err)
	}
	w.written += len(w.buf)
	w.buf = make([]*types.Email, 0, w.size)
	return nil
}

// Pending returns how many emails are buffered but not yet committed.
func (w *BatchWriter) Pending() int {
	return len(w.buf)
}

// Written returns how many emails have been committed so far.
func (w *BatchWriter) Written() int {
	return w.written
}
