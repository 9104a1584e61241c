package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/attest"
	"github.com/aretw0/attest/pkg/contacts"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/reply"
	"gopkg.in/yaml.v3"
)

// Case is a verification case read from a YAML or JSON file.
type Case struct {
	SessionID   string             `json:"session_id" yaml:"session_id"`
	Certificate domain.Certificate `json:"certificate" yaml:"certificate"`
	// ContactFound is derived from the contact directory when omitted.
	ContactFound *bool         `json:"contact_found" yaml:"contact_found"`
	Reply        *domain.Reply `json:"reply" yaml:"reply"`
	// ReplyFile points at an .eml message, relative to the case file.
	ReplyFile string `json:"reply_file" yaml:"reply_file"`
}

// LoadCase reads a case file and resolves reply_file.
func LoadCase(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read case: %w", err)
	}

	var c Case
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &c)
	} else {
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("parse case %s: %w", path, err)
	}

	if c.ReplyFile != "" {
		if c.Reply != nil {
			return nil, fmt.Errorf("case %s: reply and reply_file are mutually exclusive", path)
		}
		p := c.ReplyFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open reply: %w", err)
		}
		defer f.Close()

		r, err := reply.ParseMessage(f)
		if err != nil {
			return nil, fmt.Errorf("parse reply %s: %w", p, err)
		}
		c.Reply = &r
	}
	if c.Reply != nil && strings.TrimSpace(c.Reply.Body) == "" {
		c.Reply = nil
	}
	return &c, nil
}

// Request converts the case into a decision request. The matched contact,
// if any, is returned for the report.
func (c *Case) Request(dir *contacts.Directory) (attest.Request, *contacts.Contact) {
	req := attest.Request{
		SessionID:   c.SessionID,
		Certificate: c.Certificate,
		Reply:       c.Reply,
	}

	contact, found := dir.Lookup(c.Certificate.UniversityName)
	switch {
	case c.ContactFound != nil:
		req.ContactFound = *c.ContactFound
	case dir != nil:
		req.ContactFound = found
	default:
		req.ContactFound = c.Reply != nil
	}
	if !found {
		return req, nil
	}
	return req, &contact
}
