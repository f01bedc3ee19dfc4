package numerator

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "commesse/internal/core/numerator"
	"commesse/pkg/logger"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), logger.Nop())
	require.NoError(t, err)
	return s
}

func TestFileStore_PeekMissingCreatesRecord(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	n, err := s.Peek(ctx, corenumerator.Entrata)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(s.Path(corenumerator.Entrata))
	require.NoError(t, err)
	assert.JSONEq(t, `{"progressivo":1}`, string(data))
}

func TestFileStore_CorruptRecordIsRepaired(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, content := range []string{"{not json", `{"progressivo":0}`, `{"progressivo":-4}`, ""} {
		require.NoError(t, os.WriteFile(s.Path(corenumerator.Uscita), []byte(content), 0o644))

		n, err := s.Peek(ctx, corenumerator.Uscita)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "content %q", content)

		// Second read comes from valid storage.
		n, err = s.Peek(ctx, corenumerator.Uscita)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		data, err := os.ReadFile(s.Path(corenumerator.Uscita))
		require.NoError(t, err)
		assert.JSONEq(t, `{"progressivo":1}`, string(data))
	}
}

func TestFileStore_AdvanceIsMonotonic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for want := 1; want <= 25; want++ {
		got, err := s.Advance(ctx, corenumerator.Entrata)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	n, err := s.Peek(ctx, corenumerator.Entrata)
	require.NoError(t, err)
	assert.Equal(t, 26, n)

	// The other class is independent.
	n, err = s.Peek(ctx, corenumerator.Uscita)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileStore_ForceToNeverDecreases(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	n, err := s.ForceTo(ctx, corenumerator.Entrata, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = s.ForceTo(ctx, corenumerator.Entrata, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = s.ForceTo(ctx, corenumerator.Entrata, -10)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	got, err := s.Advance(ctx, corenumerator.Entrata)
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}

func TestFileStore_KeepsLegacyRecordFields(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Records written by the daily-reset revision carry ultimaData; it is ignored.
	legacy := "{\n  \"progressivo\": 42,\n  \"ultimaData\": \"2025-03-05\"\n}"
	require.NoError(t, os.WriteFile(s.Path(corenumerator.Uscita), []byte(legacy), 0o644))

	n, err := s.Advance(ctx, corenumerator.Uscita)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = s.Peek(ctx, corenumerator.Uscita)
	require.NoError(t, err)
	assert.Equal(t, 43, n)
}

func TestFileStore_UnknownClass(t *testing.T) {
	s := newStore(t)
	_, err := s.Peek(context.Background(), corenumerator.Class("bogus"))
	assert.Error(t, err)
}
