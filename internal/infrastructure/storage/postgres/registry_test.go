package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
	"commesse/pkg/logger"
)

type mockDB struct {
	sql  []string
	args [][]any
	tag  pgconn.CommandTag
	err  error
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.sql = append(m.sql, sql)
	m.args = append(m.args, args)
	return m.tag, m.err
}

func (m *mockDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func newRegistry(t *testing.T, db DB) *Registry {
	t.Helper()
	r, err := NewRegistry(db, logger.Nop())
	require.NoError(t, err)
	return r
}

func sampleNotice() ddt.Notice {
	return ddt.Notice{
		Class:          numerator.Entrata,
		Number:         7,
		DocumentNumber: "0007W",
		OrderCode:      "C9999",
		Date:           time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Quantity:       "40",
		Packages:       3,
		Outbound:       ddt.OutboundRef{Number: "0017T", Date: "04/03/2025"},
		Folder:         "/srv/ACME_Widget_P1_C9999",
		FilePath:       "/srv/ACME_Widget_P1_C9999/MATERIALI/DDT_0007W_C9999_05-03-2025.pdf",
		Fields:         map[string]string{ddt.FieldNumber: "0007W"},
	}
}

func TestRegistry_InsertQuery(t *testing.T) {
	r := newRegistry(t, &mockDB{})
	entry, err := r.entryFromNotice(sampleNotice())
	require.NoError(t, err)

	sql, args, err := r.insertQuery(entry).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO ddt_registry (id,class,number,document_number,"), sql)
	assert.Contains(t, sql, "$16")
	assert.True(t, strings.HasSuffix(sql, "ON CONFLICT (class, number) DO NOTHING"), sql)
	require.Len(t, args, len(registryColumns))
	assert.Equal(t, "entrata", args[1])
	assert.Equal(t, 7, args[2])
	assert.Equal(t, CompressionNone, args[14])
}

func TestRegistry_ListQuery(t *testing.T) {
	r := newRegistry(t, &mockDB{})

	sql, args, err := r.listQuery(RegistryFilter{OrderCode: "C9999", Class: numerator.Entrata, Limit: 10}).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT "+strings.Join(registryColumns, ", ")+" FROM ddt_registry WHERE order_code = $1 AND class = $2 ORDER BY issued_at DESC LIMIT 10",
		sql)
	assert.Equal(t, []any{"C9999", "entrata"}, args)

	sql, args, err = r.listQuery(RegistryFilter{}).ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "FROM ddt_registry ORDER BY issued_at DESC LIMIT 100"), sql)
	assert.Empty(t, args)
}

func TestRegistry_CompressesLargeFieldSnapshots(t *testing.T) {
	r := newRegistry(t, &mockDB{})
	n := sampleNotice()
	n.Fields = map[string]string{ddt.FieldDescription: strings.Repeat("Assembraggio ", 400)}

	entry, err := r.entryFromNotice(n)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, entry.CompressionAlgo)
	assert.Nil(t, entry.Fields)
	assert.NotEmpty(t, entry.FieldsCompressed)

	raw, err := r.decoder.DecodeAll(entry.FieldsCompressed, nil)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Assembraggio Assembraggio")
}

func TestRegistry_Record(t *testing.T) {
	db := &mockDB{tag: pgconn.NewCommandTag("INSERT 0 1")}
	r := newRegistry(t, db)

	require.NoError(t, r.Record(context.Background(), sampleNotice()))
	require.Len(t, db.sql, 1)
	assert.Contains(t, db.sql[0], "INSERT INTO ddt_registry")

	db.err = errors.New("connection reset")
	err := r.Record(context.Background(), sampleNotice())
	assert.ErrorIs(t, err, db.err)
}

func TestRegistry_EnsureSchema(t *testing.T) {
	db := &mockDB{}
	r := newRegistry(t, db)

	require.NoError(t, r.EnsureSchema(context.Background()))
	assert.Contains(t, db.sql[0], "CREATE TABLE IF NOT EXISTS ddt_registry")
	assert.Contains(t, db.sql[0], "UNIQUE (class, number)")
}
