package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
	"commesse/pkg/logger"
)

func order(t *testing.T, root, name string, docs ...string) string {
	t.Helper()
	folder := filepath.Join(root, name)
	dir := ddt.MaterialsPath(folder)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, d := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, d), []byte("%PDF"), 0o644))
	}
	return folder
}

func TestReconcile_ForcesForward(t *testing.T) {
	root := t.TempDir()
	order(t, root, "ACME_Widget_P1_C1234", "DDT_0005W_C1234_01-03-2025.pdf", "DDT_0003W_C1234_28-02-2025.pdf")
	order(t, root, "ACME_Gadget_P2_C77", "DDT_0004T_C77_01-03-2025.pdf")

	store := numerator.NewMemoryStore(map[numerator.Class]int{numerator.Entrata: 2})
	r := New(root, store, logger.Nop())

	next, err := r.Reconcile(context.Background(), numerator.Entrata)
	require.NoError(t, err)
	assert.Equal(t, 6, next)

	n, err := store.Advance(context.Background(), numerator.Entrata)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestReconcile_NeverDecreases(t *testing.T) {
	root := t.TempDir()
	order(t, root, "ACME_Widget_P1_C1234", "DDT_0005W_C1234_01-03-2025.pdf")

	store := numerator.NewMemoryStore(map[numerator.Class]int{numerator.Entrata: 40})
	r := New(root, store, logger.Nop())

	next, err := r.Reconcile(context.Background(), numerator.Entrata)
	require.NoError(t, err)
	assert.Equal(t, 40, next)
}

func TestScanMax_PerClassGrammar(t *testing.T) {
	root := t.TempDir()
	order(t, root, "ACME_Widget_P1_C1234",
		"DDT_0009W_nodate.pdf",
		"DDT_0011T_anything.pdf",
		"DDT_0002W_C1234_01_03_2025.pdf",
	)
	// Not an order folder: ignored.
	order(t, root, "scratch", "DDT_0999W_C1_01-03-2025.pdf")

	r := New(root, numerator.NewMemoryStore(nil), logger.Nop())

	max, err := r.ScanMax(context.Background(), numerator.Entrata)
	require.NoError(t, err)
	assert.Equal(t, 2, max)

	max, err = r.ScanMax(context.Background(), numerator.Uscita)
	require.NoError(t, err)
	assert.Equal(t, 11, max)
}

func TestScanMax_ExtraFolderOutsideRoot(t *testing.T) {
	root := t.TempDir()
	elsewhere := order(t, t.TempDir(), "loose", "DDT_0042W_C5_01-03-2025.pdf")

	r := New(root, numerator.NewMemoryStore(nil), logger.Nop())

	max, err := r.ScanMax(context.Background(), numerator.Entrata, elsewhere, elsewhere)
	require.NoError(t, err)
	assert.Equal(t, 42, max)
}

func TestScanMax_MissingRoot(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "nope"), numerator.NewMemoryStore(nil), logger.Nop())

	max, err := r.ScanMax(context.Background(), numerator.Uscita)
	require.NoError(t, err)
	assert.Zero(t, max)
}

func TestReconcile_StoreError(t *testing.T) {
	store := numerator.NewMemoryStore(nil)
	store.Err = errors.New("disk full")
	r := New(t.TempDir(), store, logger.Nop())

	_, err := r.Reconcile(context.Background(), numerator.Entrata)
	assert.ErrorIs(t, err, store.Err)
}
