package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/attest/pkg/adapters/memory"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func newStore() *memory.Store { return memory.NewStore() }
