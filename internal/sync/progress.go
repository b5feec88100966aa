package sync

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
)

// ProgressSink receives the periodic progress writes of a run.
type ProgressSink interface {
	UpdateSyncProgress(ctx context.Context, accountID int64, processed int, subject string) error
	UpdateAccountProgress(ctx context.Context, accountID int64, synced, percent int) error
}

// Reporter periodically writes run progress so a polling client can follow
// along. Each write is a short independent statement, decoupled from the
// batch-flush transactions.
type Reporter struct {
	sink      ProgressSink
	logger    *logrus.Logger
	accountID int64
	total     int
	interval  int
}

// NewReporter creates a reporter that writes every interval processed
// messages against a mailbox of the given total size.
func NewReporter(sink ProgressSink, accountID int64, total, interval int, logger *logrus.Logger) *Reporter {
	if interval < 1 {
		interval = 1
	}
	return &Reporter{
		sink:      sink,
		logger:    logger,
		accountID: accountID,
		total:     total,
		interval:  interval,
	}
}

// Report records progress when processed hits a reporting tick. Progress
// writes are best-effort: a failure is logged and the run continues.
func (r *Reporter) Report(ctx context.Context, processed int, subject string) {
	if processed%r.interval != 0 {
		return
	}

	percent := 0
	if r.total > 0 {
		percent = int(math.Round(float64(processed) / float64(r.total) * 100))
	}

	if err := r.sink.UpdateSyncProgress(ctx, r.accountID, processed, subject); err != nil {
		r.logger.WithError(err).Warn("Failed to update sync progress")
	}
	if err := r.sink.UpdateAccountProgress(ctx, r.accountID, processed, percent); err != nil {
		r.logger.WithError(err).Warn("Failed to update account progress")
	}

	r.logger.WithFields(logrus.Fields{
		"account_id": r.accountID,
		"processed":  processed,
		"total":      r.total,
	}).Debug("Sync progress")
}
