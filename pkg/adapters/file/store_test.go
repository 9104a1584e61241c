package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/attest/pkg/adapters/file"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/aretw0/attest/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunAuditStoreContract(t, store)
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	rec := domain.StepRecord{Sequence: 1, Step: "001_session_start", Tag: "session_start", Timestamp: time.Now().UTC(), Success: true}
	require.NoError(t, store.Append(ctx, "abc", rec))
	require.NoError(t, store.WriteSummary(ctx, "abc", domain.SessionSummary{SessionID: "abc"}))

	assert.FileExists(t, filepath.Join(dir, "abc.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "abc_summary.json"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, ids, "summary files must not be listed as sessions")
}

func TestFileStore_TornFinalLine(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	rec := domain.StepRecord{Sequence: 1, Step: "001_session_start", Tag: "session_start", Success: true}
	require.NoError(t, store.Append(ctx, "crash", rec))

	// Simulate a crash in the middle of the second write.
	f, err := os.OpenFile(filepath.Join(dir, "crash.jsonl"), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"sequence":2,"step":"002_tool_an`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := store.ReadAll(ctx, "crash")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "001_session_start", got[0].Step)
}

func TestFileStore_CorruptMiddleLine(t *testing.T) {
	dir := t.TempDir()
	content := "{\"sequence\":1}\nnot-json\n{\"sequence\":3}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jsonl"), []byte(content), 0644))

	_, err := file.New(dir).ReadAll(context.Background(), "bad")
	assert.ErrorContains(t, err, "line 2")
}

func TestFileStore_RejectsPathLikeIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", ".hidden"} {
		err := store.Append(ctx, id, domain.StepRecord{})
		assert.ErrorIs(t, err, domain.ErrInvalidID, "id %q", id)
		_, err = store.ReadAll(ctx, id)
		assert.ErrorIs(t, err, domain.ErrInvalidID, "id %q", id)
	}
}
