// Package sync implements the mailbox synchronization engine: one run mirrors
// the full contents of a remote mailbox into local storage, batch by batch,
// then reconstructs conversation threads from what was persisted.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/brandon/mailmirror/internal/mailbox"
	"github.com/brandon/mailmirror/pkg/types"
)

// ErrSyncInProgress is returned when a trigger races an in-flight run for the
// same account.
var ErrSyncInProgress = errors.New("sync already in progress")

// AccountStore is the account state machine surface the runner drives.
type AccountStore interface {
	GetAccount(ctx context.Context, id int64) (*types.Account, error)
	BeginSync(ctx context.Context, id int64) (bool, error)
	SetSyncTotals(ctx context.Context, id int64, total int) error
	FinishSyncCompleted(ctx context.Context, id int64, synced int) error
	FinishSyncEmpty(ctx context.Context, id int64) error
	FinishSyncError(ctx context.Context, id int64, message string) error
}

// RunStore is everything the engine persists through during a run.
type RunStore interface {
	AccountStore
	EmailWriter
	ProgressSink
	ThreadStore
	DeleteEmailsForAccount(ctx context.Context, accountID int64) error
	StartSyncProgress(ctx context.Context, accountID int64, total int) error
	DeleteSyncProgress(ctx context.Context, accountID int64) error
}

// Decrypter recovers the plaintext app password from a stored credential.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

// MailSession is one open mail-retrieval session.
type MailSession interface {
	Exists() uint32
	FetchAll(ctx context.Context, fn func(*mailbox.RawMessage) error) error
	Close() error
}

// dialFunc opens a session against an account endpoint.
type dialFunc func(cfg mailbox.ConnectConfig, password string, logger *logrus.Logger) (MailSession, error)

// Options tunes a Runner.
type Options struct {
	BatchSize          int
	ProgressInterval   int
	MaxConcurrentSyncs int
}

// Runner owns sync runs: it guards the per-account state machine, executes
// each run on a background goroutine and hands back an explicit handle per
// run instead of firing and forgetting.
type Runner struct {
	store   RunStore
	secrets Decrypter
	logger  *logrus.Logger
	opts    Options
	dial    dialFunc
	sem     *semaphore.Weighted
}

// NewRunner creates a runner over the given store and credential decrypter.
func NewRunner(store RunStore, secrets Decrypter, opts Options, logger *logrus.Logger) *Runner {
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	if opts.ProgressInterval < 1 {
		opts.ProgressInterval = 10
	}
	if opts.MaxConcurrentSyncs < 1 {
		opts.MaxConcurrentSyncs = 1
	}
	return &Runner{
		store:   store,
		secrets: secrets,
		logger:  logger,
		opts:    opts,
		dial: func(cfg mailbox.ConnectConfig, password string, logger *logrus.Logger) (MailSession, error) {
			return mailbox.Open(cfg, password, logger)
		},
		sem: semaphore.NewWeighted(int64(opts.MaxConcurrentSyncs)),
	}
}

// Run is the handle for one background sync run.
type Run struct {
	ID        string
	AccountID int64

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err reports the run's terminal error. It returns nil while the run is
// still in flight.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Cancel asks the run to stop. Normal operation never cancels; the token
// exists so a supervisor can.
func (r *Run) Cancel() {
	r.cancel()
}

// StartSync transitions the account to syncing and starts the run in the
// background, returning its handle immediately. A second trigger while a run
// is in flight fails with ErrSyncInProgress: the state transition is a
// compare-and-swap on sync_status, so two racing triggers cannot both win.
func (r *Runner) StartSync(ctx context.Context, accountID int64) (*Run, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ok, err := r.store.BeginSync(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	// The run outlives the triggering request, so it gets its own context.
	runCtx, cancel := context.WithCancel(context.Background())
	run := &Run{
		ID:        uuid.NewString(),
		AccountID: accountID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	log := r.logger.WithFields(logrus.Fields{
		"run_id":     run.ID,
		"account_id": accountID,
		"account":    account.Email,
	})

	go func() {
		defer close(run.done)
		defer cancel()
		run.err = r.runSync(runCtx, log, account)
	}()

	return run, nil
}

func (r *Runner) runSync(ctx context.Context, log *logrus.Entry, account *types.Account) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.failRun(log, account.ID, err)
		return err
	}
	defer r.sem.Release(1)

	log.Info("Sync run started")
	if err := r.execute(ctx, log, account); err != nil {
		r.failRun(log, account.ID, err)
		return err
	}
	log.Info("Sync run completed")
	return nil
}

// failRun records the terminal error state and removes the progress row.
// Both cleanup writes are attempted even if one fails, and they use a fresh
// context because the run context may already be canceled.
func (r *Runner) failRun(log *logrus.Entry, accountID int64, runErr error) {
	log.WithError(runErr).Error("Sync run failed")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.store.FinishSyncError(ctx, accountID, runErr.Error()); err != nil {
		log.WithError(err).Error("Failed to record sync error state")
	}
	if err := r.store.DeleteSyncProgress(ctx, accountID); err != nil {
		log.WithError(err).Error("Failed to delete progress row")
	}
}

// execute performs one full mirror of the account's mailbox.
func (r *Runner) execute(ctx context.Context, log *logrus.Entry, account *types.Account) error {
	password, err := r.secrets.Decrypt(account.AppPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt credential: %w", err)
	}

	sess, err := r.dial(mailbox.ConnectConfig{
		Host:     account.IMAPHost,
		Port:     account.IMAPPort,
		Security: account.IMAPSecurity,
		Username: account.Email,
	}, password, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open mail session: %w", err)
	}

	// Close is idempotent; the defer covers every error path while the
	// explicit close below releases the connection before the read-back
	// pass.
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close mail session")
		}
	}()

	total := int(sess.Exists())
	if total == 0 {
		// Straight to the terminal state: no progress row, no batch
		// writer, no threading pass.
		if err := r.store.FinishSyncEmpty(ctx, account.ID); err != nil {
			return err
		}
		log.Info("Mailbox is empty, nothing to sync")
		return nil
	}

	// Nothing was deleted before the connection succeeded, so a connect
	// failure leaves the previous mirror untouched.
	if err := r.store.DeleteEmailsForAccount(ctx, account.ID); err != nil {
		return err
	}
	if err := r.store.StartSyncProgress(ctx, account.ID, total); err != nil {
		return err
	}
	if err := r.store.SetSyncTotals(ctx, account.ID, total); err != nil {
		return err
	}

	writer := NewBatchWriter(r.store, r.opts.BatchSize)
	reporter := NewReporter(r.store, account.ID, total, r.opts.ProgressInterval, r.logger)

	processed := 0
	skipped := 0
	err = sess.FetchAll(ctx, func(raw *mailbox.RawMessage) error {
		processed++

		parsed, perr := ParseMessage(raw.Source)
		if perr != nil {
			// A malformed message is skipped, not fatal; the mirror may
			// end up an incomplete subset.
			skipped++
			log.WithError(perr).WithField("uid", raw.UID).Warn("Skipping unparsable message")
			return nil
		}

		email := Normalize(account.ID, raw, parsed)
		email.SetAttachments(AnalyzeAttachments(raw.BodyStructure))

		if err := writer.Append(ctx, email); err != nil {
			return err
		}
		reporter.Report(ctx, processed, email.Subject)
		return nil
	})
	if err != nil {
		return err
	}

	if err := writer.Flush(ctx); err != nil {
		return err
	}

	// Release the server connection before the read-back pass.
	if err := sess.Close(); err != nil {
		log.WithError(err).Warn("Failed to close mail session")
	}

	if err := ReconstructThreads(ctx, r.store, account.ID); err != nil {
		// Imported emails keep their single-message threading defaults.
		return fmt.Errorf("thread reconstruction failed: %w", err)
	}

	imported := writer.Written()
	if err := r.store.FinishSyncCompleted(ctx, account.ID, imported); err != nil {
		return err
	}
	if err := r.store.DeleteSyncProgress(ctx, account.ID); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Mailbox mirrored")
	return nil
}
