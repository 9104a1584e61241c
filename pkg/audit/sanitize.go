package audit

import (
	"encoding/json"
	"strings"
	"unicode"
)

var (
	// DefaultSensitiveKeywords redact any payload key containing one of them, ignoring case.
	DefaultSensitiveKeywords = []string{"password", "secret", "token", "key"}
	// DefaultAllowedKeys are exempt from redaction even if they contain a keyword.
	DefaultAllowedKeys = []string{"key_phrases"}
	// DefaultMaxStringLength is the longest string value kept verbatim, in characters.
	DefaultMaxStringLength = 1000
)

const (
	// RedactedValue replaces the value of a sensitive key.
	RedactedValue = "[REDACTED]"
	// TruncationMarker is appended to strings cut at the length limit.
	TruncationMarker = "... [truncated]"
)

// Sanitizer prepares payloads for durable storage.
type Sanitizer struct {
	keywords []string
	allow    map[string]struct{}
	maxLen   int
}

// SanitizerOption configures a Sanitizer.
type SanitizerOption func(*Sanitizer)

// WithKeywords replaces the sensitive keyword list.
func WithKeywords(keywords ...string) SanitizerOption {
	return func(s *Sanitizer) {
		s.keywords = s.keywords[:0]
		for _, k := range keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				s.keywords = append(s.keywords, k)
			}
		}
	}
}

// WithAllowedKeys replaces the list of keys exempt from redaction.
func WithAllowedKeys(keys ...string) SanitizerOption {
	return func(s *Sanitizer) {
		s.allow = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			s.allow[strings.ToLower(k)] = struct{}{}
		}
	}
}

// WithMaxStringLength sets the truncation limit. Non-positive values keep the default.
func WithMaxStringLength(n int) SanitizerOption {
	return func(s *Sanitizer) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// NewSanitizer creates a Sanitizer with the default policy.
func NewSanitizer(opts ...SanitizerOption) *Sanitizer {
	s := &Sanitizer{maxLen: DefaultMaxStringLength}
	WithKeywords(DefaultSensitiveKeywords...)(s)
	WithAllowedKeys(DefaultAllowedKeys...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Map returns a sanitized deep copy of in. Values are first normalized to
// their JSON form so the stored record equals what a reader decodes.
func (s *Sanitizer) Map(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	normalized := normalize(in)
	out := make(map[string]any, len(normalized))
	for k, v := range normalized {
		if s.sensitive(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = s.value(v)
	}
	return out
}

// String strips unsafe control characters and truncates to the limit.
func (s *Sanitizer) String(v string) string {
	v = strings.ToValidUTF8(v, "�")
	v = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return -1
		}
		return r
	}, v)

	runes := []rune(v)
	if len(runes) <= s.maxLen {
		return v
	}
	return string(runes[:s.maxLen]) + TruncationMarker
}

func (s *Sanitizer) value(v any) any {
	switch t := v.(type) {
	case string:
		return s.String(t)
	case map[string]any:
		return s.Map(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = s.value(e)
		}
		return out
	default:
		return v
	}
}

func (s *Sanitizer) sensitive(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := s.allow[lower]; ok {
		return false
	}
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// normalize round-trips a payload through JSON. Unencodable values are
// replaced by their error text rather than dropped.
func normalize(in map[string]any) map[string]any {
	raw, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			b, err := json.Marshal(v)
			if err != nil {
				out[k] = "unencodable: " + err.Error()
				continue
			}
			var decoded any
			_ = json.Unmarshal(b, &decoded)
			out[k] = decoded
		}
		return out
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
