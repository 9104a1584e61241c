package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/aretw0/attest/pkg/domain"
)

const (
	logExt     = ".jsonl"
	summaryExt = "_summary.json"

	// maxLineSize bounds a single record line when reading back.
	maxLineSize = 8 << 20
)

// Store implements ports.AuditStore on the local filesystem.
// Each session is a JSON Lines file appended with fsync; the summary is a
// separate JSON file replaced atomically.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to "data/audit_logs".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join("data", "audit_logs")
	}
	return &Store{BasePath: basePath}
}

// Append writes one JSON line and fsyncs the file before returning.
func (s *Store) Append(ctx context.Context, sessionID string, record domain.StepRecord) error {
	if err := validID(sessionID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure audit directory: %w", err)
	}

	path := s.logPath(sessionID)
	_, statErr := os.Stat(path)
	created := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	// 1. Write the full line
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	// 2. Fsync to ensure durability
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to fsync audit log: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}

	// 3. A new file is only durable once its directory entry is.
	if created {
		return syncDir(s.BasePath)
	}
	return nil
}

// ReadAll decodes the session's JSON Lines file. A torn final line left by a
// crash during Append is ignored.
func (s *Store) ReadAll(ctx context.Context, sessionID string) ([]domain.StepRecord, error) {
	if err := validID(sessionID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.logPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	complete := bytes.HasSuffix(data, []byte("\n"))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var records []domain.StepRecord
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec domain.StepRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			if !complete && isLastLine(data, line) {
				break
			}
			return nil, fmt.Errorf("corrupt audit log %s line %d: %w", sessionID, lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if len(records) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return records, nil
}

// WriteSummary persists the summary atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) WriteSummary(ctx context.Context, sessionID string, summary domain.SessionSummary) error {
	if err := validID(sessionID); err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure audit directory: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	// 1. Create Temp File in the same directory (atomic rename needs the same filesystem)
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+sessionID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Atomic Rename
	destPath := s.summaryPath(sessionID)
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing summary for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to summary: %w", err)
	}

	return syncDir(s.BasePath)
}

// ReadSummary loads the session summary.
func (s *Store) ReadSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	if err := validID(sessionID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.summaryPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var summary domain.SessionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &summary, nil
}

// List returns the ids of all sessions with a log file, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, logExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, logExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) logPath(id string) string     { return filepath.Join(s.BasePath, id+logExt) }
func (s *Store) summaryPath(id string) string { return filepath.Join(s.BasePath, id+summaryExt) }

// validID keeps ids from escaping BasePath. Errors wrap domain.ErrInvalidID.
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", domain.ErrInvalidID, id)
	}
	return nil
}

func isLastLine(data, line []byte) bool {
	return bytes.HasSuffix(data, line)
}

func syncDir(dir string) error {
	// Directory handles cannot be synced on Windows.
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open audit directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to fsync audit directory: %w", err)
	}
	return nil
}
