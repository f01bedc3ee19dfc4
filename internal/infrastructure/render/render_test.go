package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commesse/internal/core/apperror"
	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
	"commesse/pkg/logger"
)

func TestFill_SubstitutesFields(t *testing.T) {
	r := New(nil, logger.Nop())
	tpl := []byte("%PDF-1.4\n(N. {{Numero documento}}) ({{ data documento }}) ({{colli}}) ({{Unknown}})")

	out := r.Fill(tpl, map[string]string{
		ddt.FieldNumber:   "0007W",
		ddt.FieldDate:     "05/03/2025",
		ddt.FieldPackages: "6",
	})

	assert.False(t, out.Raw)
	assert.Equal(t, "%PDF-1.4\n(N. 0007W) (05/03/2025) (6) ()", string(out.Bytes))
	assert.Equal(t, []string{"Unknown"}, out.Missing)
}

func TestFill_EscapesLiteralStrings(t *testing.T) {
	r := New(nil, logger.Nop())
	out := r.Fill([]byte("({{Descrizione}})"), map[string]string{ddt.FieldDescription: `Assembraggio (lotto 2) a\b`})
	assert.Equal(t, `(Assembraggio \(lotto 2\) a\\b)`, string(out.Bytes))
}

func TestFill_RawCopyWithoutPlaceholders(t *testing.T) {
	r := New(nil, logger.Nop())
	tpl := []byte("%PDF-1.4 static form")

	out := r.Fill(tpl, map[string]string{ddt.FieldNumber: "0007W"})
	assert.True(t, out.Raw)
	assert.Equal(t, tpl, out.Bytes)

	// The output must not alias the template.
	out.Bytes[0] = 'X'
	assert.Equal(t, byte('%'), tpl[0])
}

func TestLoad(t *testing.T) {
	r := New(nil, logger.Nop())

	_, err := r.Load("TEMPLATE_ENTRATA", "")
	assert.True(t, apperror.HasCode(err, apperror.CodeConfigurationMissing))

	_, err = r.Load("TEMPLATE_ENTRATA", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.True(t, apperror.HasCode(err, apperror.CodeConfigurationMissing))

	path := filepath.Join(t.TempDir(), "master.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	data, err := r.Load("TEMPLATE_ENTRATA", path)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)
}

func TestRender_ByClass(t *testing.T) {
	dir := t.TempDir()
	entrata := filepath.Join(dir, "entrata.pdf")
	require.NoError(t, os.WriteFile(entrata, []byte("[{{Numero documento}}]"), 0o644))

	r := New(Templates{
		numerator.Entrata: {Setting: "TEMPLATE_ENTRATA", Path: entrata},
	}, logger.Nop())

	data, raw, err := r.Render(numerator.Entrata, map[string]string{ddt.FieldNumber: "0007W"})
	require.NoError(t, err)
	assert.False(t, raw)
	assert.Equal(t, "[0007W]", string(data))

	_, _, err = r.Render(numerator.Uscita, nil)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "TEMPLATE_USCITA", appErr.Details["setting"])
}
