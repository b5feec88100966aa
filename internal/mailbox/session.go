// Package mailbox manages one IMAP session per sync run: open, a lazy
// streamed fetch of the full mailbox, and guaranteed logout.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

// Security modes accepted in account configuration.
const (
	SecuritySSLTLS   = "SSL/TLS"
	SecurityStartTLS = "STARTTLS"
	SecurityNone     = "None"
)

// gmailThreadID is the Gmail FETCH extension carrying the server-side
// conversation id.
const gmailThreadID = imap.FetchItem("X-GM-THRID")

// ConnectConfig describes the endpoint of one linked mailbox.
type ConnectConfig struct {
	Host     string
	Port     int
	Security string
	Username string
}

// RawMessage is one message as fetched from the server, before parsing.
type RawMessage struct {
	UID           uint32
	Source        []byte
	Flags         []string
	BodyStructure *imap.BodyStructure
	InternalDate  time.Time
	// ThreadID is the server-provided conversation id, when the server
	// exposes one; empty otherwise.
	ThreadID string
}

// Session is one open IMAP session against an account's INBOX.
type Session struct {
	client    *client.Client
	logger    *logrus.Logger
	username  string
	gmail     bool
	exists    uint32
	loggedOut bool
}

// Open connects, authenticates and selects INBOX read-only. On any partial
// failure the connection is torn down before returning.
func Open(cfg ConnectConfig, password string, logger *logrus.Logger) (*Session, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	tlsConfig := &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	var cl *client.Client
	var err error
	switch cfg.Security {
	case SecuritySSLTLS:
		cl, err = client.DialTLS(addr, tlsConfig)
	case SecurityStartTLS:
		cl, err = client.Dial(addr)
		if err == nil {
			if serr := cl.StartTLS(tlsConfig); serr != nil {
				cl.Logout() //nolint:errcheck
				err = fmt.Errorf("STARTTLS failed: %w", serr)
			}
		}
	case SecurityNone:
		cl, err = client.Dial(addr)
	default:
		return nil, fmt.Errorf("unsupported security mode: %q", cfg.Security)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := cl.Login(cfg.Username, password); err != nil {
		cl.Logout() //nolint:errcheck
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	mbox, err := cl.Select("INBOX", true)
	if err != nil {
		cl.Logout() //nolint:errcheck
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"account": cfg.Username,
		"exists":  mbox.Messages,
	}).Info("Opened IMAP session")

	return &Session{
		client:   cl,
		logger:   logger,
		username: cfg.Username,
		gmail:    cfg.Host == "imap.gmail.com",
		exists:   mbox.Messages,
	}, nil
}

// Exists reports how many messages the selected mailbox holds.
func (s *Session) Exists() uint32 {
	return s.exists
}

// FetchAll streams every message in the mailbox to fn, one at a time in
// server sequence order. If fn returns an error the remaining stream is
// drained and the error is returned. fn errors for a single message must be
// handled by the caller; returning one aborts the whole fetch.
func (s *Session) FetchAll(ctx context.Context, fn func(*RawMessage) error) error {
	if s.exists == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, s.exists)

	items := []imap.FetchItem{
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		imap.FetchBodyStructure,
		imap.FetchRFC822,
	}
	if s.gmail {
		items = append(items, gmailThreadID)
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- s.client.Fetch(seqSet, items, messages)
	}()

	var fnErr error
	for msg := range messages {
		if fnErr != nil {
			continue // drain so the fetch goroutine can finish
		}
		if err := ctx.Err(); err != nil {
			fnErr = err
			continue
		}
		if err := fn(s.rawMessage(msg)); err != nil {
			fnErr = err
		}
	}

	if err := <-done; err != nil && fnErr == nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	return fnErr
}

// Close logs out of the session. It is idempotent so it is safe to call on
// every exit path.
func (s *Session) Close() error {
	if s.loggedOut {
		return nil
	}
	s.loggedOut = true
	if err := s.client.Logout(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	s.logger.WithField("account", s.username).Debug("Closed IMAP session")
	return nil
}

// rawMessage converts a fetched IMAP message into a RawMessage.
func (s *Session) rawMessage(msg *imap.Message) *RawMessage {
	raw := &RawMessage{
		UID:           msg.Uid,
		Flags:         append([]string{}, msg.Flags...),
		BodyStructure: msg.BodyStructure,
		InternalDate:  msg.InternalDate,
		Source:        s.readSource(msg),
	}
	if v, ok := msg.Items[gmailThreadID]; ok && v != nil {
		raw.ThreadID = fmt.Sprintf("%v", v)
	}
	return raw
}

// readSource extracts the RFC822 source bytes from the fetched body sections.
func (s *Session) readSource(msg *imap.Message) []byte {
	if msg.Body == nil {
		return nil
	}

	// The RFC822 literal usually sits under the nil key; fall back to the
	// empty section, then to any section that yields content.
	if literal, ok := msg.Body[nil]; ok {
		return s.readLiteral(literal)
	}
	emptySection := &imap.BodySectionName{}
	if literal, ok := msg.Body[emptySection]; ok {
		return s.readLiteral(literal)
	}
	for _, literal := range msg.Body {
		if b := s.readLiteral(literal); len(b) > 0 {
			return b
		}
	}
	return nil
}

func (s *Session) readLiteral(literal imap.Literal) []byte {
	if literal == nil {
		return nil
	}
	b, err := io.ReadAll(literal)
	if err != nil {
		s.logger.WithError(err).Warn("Error reading message literal")
	}
	return b
}
