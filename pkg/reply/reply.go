// Package reply turns an institution's e-mail answer into a domain.Reply.
package reply

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// ReferenceHeader carries the verification reference on outgoing requests
// and, when the institution's mailer preserves it, on the reply.
const ReferenceHeader = "X-Reference-ID"

// maxBodySize bounds the text kept from a reply body.
const maxBodySize = 32 * 1024

var referencePattern = regexp.MustCompile(`\b(?:VER|REF)-[A-Z0-9]+(?:-[A-Z0-9]+)*\b`)

// ErrNoTextBody is returned when a message has no text/plain part.
var ErrNoTextBody = errors.New("message has no text/plain body")

// NewReferenceID mints a verification reference such as VER-20260118-1A2B3C4D.
func NewReferenceID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "VER-" + now.Format("20060102") + "-" + suffix
}

// ExtractReference returns the first reference token in s, or "".
func ExtractReference(s string) string {
	return referencePattern.FindString(strings.ToUpper(s))
}

// Option configures ParseMessage.
type Option func(*parser)

type parser struct {
	logger *slog.Logger
}

// WithLogger reports charset warnings to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *parser) { p.logger = logger }
}

// ParseMessage reads an RFC 5322 message. Unknown charsets are tolerated:
// the text may be slightly garbled but still worth analyzing.
func ParseMessage(r io.Reader, opts ...Option) (domain.Reply, error) {
	p := &parser{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return domain.Reply{}, fmt.Errorf("create mail reader: %w", err)
	}
	if mr == nil {
		return domain.Reply{}, fmt.Errorf("create mail reader: %w", err)
	}
	if err != nil {
		p.logger.Debug("mail reader created with charset warning", "error", err)
	}
	defer mr.Close()

	var rep domain.Reply
	p.readHeader(&rep, mr.Header)

	body, err := p.textBody(mr)
	if err != nil {
		return domain.Reply{}, err
	}
	rep.Body = body
	return rep, nil
}

func (p *parser) readHeader(rep *domain.Reply, h mail.Header) {
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		rep.SenderEmail = from[0].Address
		rep.SenderName = from[0].Name
	} else if err != nil {
		p.logger.Debug("unparseable From header", "error", err)
		rep.SenderEmail = strings.TrimSpace(h.Get("From"))
	}

	if subject, err := h.Subject(); err == nil {
		rep.Subject = subject
	} else {
		rep.Subject = h.Get("Subject")
	}

	if id, err := h.MessageID(); err == nil && id != "" {
		rep.ID = id
	} else {
		rep.ID = uuid.NewString()
	}

	if date, err := h.Date(); err == nil {
		rep.ReceivedAt = date.UTC()
	}

	rep.ReferenceID = strings.TrimSpace(h.Get(ReferenceHeader))
	if rep.ReferenceID == "" {
		rep.ReferenceID = ExtractReference(rep.Subject)
	}
}

func (p *parser) textBody(mr *mail.Reader) (string, error) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", ErrNoTextBody
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", fmt.Errorf("next part: %w", err)
		}
		if part == nil {
			continue
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType != "" && contentType != "text/plain" {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part.Body, maxBodySize))
		if err != nil {
			return "", fmt.Errorf("read text/plain part: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}
