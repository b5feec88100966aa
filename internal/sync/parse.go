package sync

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// ParsedMessage is the structured form of one raw message source.
type ParsedMessage struct {
	Subject    string
	From       string
	Date       *time.Time
	HTML       string
	Text       string
	MessageID  string
	InReplyTo  string
	References []string
}

// ParseMessage parses raw RFC 822 source bytes into their structured form.
func ParseMessage(source []byte) (*ParsedMessage, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("empty message source")
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	p := &ParsedMessage{
		Subject:   env.GetHeader("Subject"),
		From:      env.GetHeader("From"),
		HTML:      env.HTML,
		Text:      env.Text,
		MessageID: strings.TrimSpace(env.GetHeader("Message-Id")),
		InReplyTo: strings.TrimSpace(env.GetHeader("In-Reply-To")),
	}

	if refs := env.GetHeader("References"); refs != "" {
		p.References = strings.Fields(refs)
	}

	if dateHdr := env.GetHeader("Date"); dateHdr != "" {
		if t, err := mail.ParseDate(dateHdr); err == nil {
			p.Date = &t
		}
	}

	return p, nil
}
