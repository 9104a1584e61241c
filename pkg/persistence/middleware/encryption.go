package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/ports"
)

// EnvelopeKey is the single key of a sealed payload map.
const EnvelopeKey = "__encrypted__"

// ErrKeySize is returned for keys that are not 32 bytes.
var ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey seals new records. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot open a
	// record, so keys can be rotated without rewriting old sessions.
	FallbackKeys [][]byte
}

// DecodeKey parses a base64 encoded AES-256 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.AuditStore
	config EncryptionConfig
}

// NewEncryptionMiddleware seals record inputs and outputs and summary final
// results with AES-GCM. Step identifiers, tags, timestamps and success flags
// stay readable so sessions can be listed and replayed without the key.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, ErrKeySize
		}
	}
	return func(next ports.AuditStore) ports.AuditStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Append(ctx context.Context, sessionID string, record domain.StepRecord) error {
	var err error
	if record.Input, err = m.seal(record.Input); err != nil {
		return fmt.Errorf("seal input of %s: %w", record.Step, err)
	}
	if record.Output, err = m.seal(record.Output); err != nil {
		return fmt.Errorf("seal output of %s: %w", record.Step, err)
	}
	return m.next.Append(ctx, sessionID, record)
}

func (m *encryptionMiddleware) ReadAll(ctx context.Context, sessionID string) ([]domain.StepRecord, error) {
	records, err := m.next.ReadAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Input, err = m.open(records[i].Input); err != nil {
			return nil, fmt.Errorf("open input of %s: %w", records[i].Step, err)
		}
		if records[i].Output, err = m.open(records[i].Output); err != nil {
			return nil, fmt.Errorf("open output of %s: %w", records[i].Step, err)
		}
	}
	return records, nil
}

func (m *encryptionMiddleware) WriteSummary(ctx context.Context, sessionID string, summary domain.SessionSummary) error {
	sealed, err := m.seal(summary.FinalResult)
	if err != nil {
		return fmt.Errorf("seal summary: %w", err)
	}
	summary.FinalResult = sealed
	return m.next.WriteSummary(ctx, sessionID, summary)
}

func (m *encryptionMiddleware) ReadSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	summary, err := m.next.ReadSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if summary.FinalResult, err = m.open(summary.FinalResult); err != nil {
		return nil, fmt.Errorf("open summary: %w", err)
	}
	return summary, nil
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// seal replaces a payload with an envelope holding its encrypted JSON form.
func (m *encryptionMiddleware) seal(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	plainText, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}, nil
}

func (m *encryptionMiddleware) open(envelope map[string]any) (map[string]any, error) {
	if envelope == nil {
		return nil, nil
	}
	encoded, ok := envelope[EnvelopeKey].(string)
	if !ok || len(envelope) != 1 {
		// Fail closed: a plaintext payload in an encrypted log was not written by us.
		return nil, errors.New("payload is missing encrypted envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(plainText, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal decrypted payload: %w", err)
	}
	return payload, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
