package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/zstd"

	"commesse/internal/core/id"
	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
	"commesse/pkg/logger"
)

const registryTable = "ddt_registry"

// CompressionAlgo specifies how the field snapshot is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DB is the subset of pgxpool.Pool used by the registry.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Entry is one issued document.
type Entry struct {
	ID               id.ID           `db:"id" json:"id"`
	Class            string          `db:"class" json:"class"`
	Number           int             `db:"number" json:"number"`
	DocumentNumber   string          `db:"document_number" json:"documentNumber"`
	OrderCode        string          `db:"order_code" json:"orderCode"`
	IssueDate        time.Time       `db:"issue_date" json:"issueDate"`
	Quantity         string          `db:"quantity" json:"quantity"`
	Packages         int             `db:"packages" json:"packages"`
	OutboundNumber   string          `db:"outbound_number" json:"outboundNumber,omitempty"`
	OutboundDate     string          `db:"outbound_date" json:"outboundDate,omitempty"`
	Folder           string          `db:"folder" json:"folder"`
	FilePath         string          `db:"file_path" json:"filePath"`
	Fields           json.RawMessage `db:"fields" json:"fields,omitempty"`
	FieldsCompressed []byte          `db:"fields_compressed" json:"-"`
	CompressionAlgo  CompressionAlgo `db:"compression_algo" json:"-"`
	IssuedAt         time.Time       `db:"issued_at" json:"issuedAt"`
}

var registryColumns = []string{
	"id", "class", "number", "document_number", "order_code", "issue_date",
	"quantity", "packages", "outbound_number", "outbound_date", "folder", "file_path",
	"fields", "fields_compressed", "compression_algo", "issued_at",
}

// RegistryFilter narrows a listing.
type RegistryFilter struct {
	OrderCode string
	Class     numerator.Class
	Limit     uint64
}

// Registry stores issued documents. It is a notify sink and backs the listing endpoint.
type Registry struct {
	db                DB
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
	log               *logger.Logger
}

// NewRegistry creates a registry on db.
func NewRegistry(db DB, log *logger.Logger) (*Registry, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Registry{
		db:                db,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 2 * 1024,
		log:               log.WithComponent("ddt-registry"),
	}, nil
}

// Builder returns a squirrel builder with PostgreSQL placeholders.
func (r *Registry) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// EnsureSchema creates the registry table if it does not exist.
func (r *Registry) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ddt_registry (
			id                UUID PRIMARY KEY,
			class             TEXT NOT NULL,
			number            INTEGER NOT NULL,
			document_number   TEXT NOT NULL,
			order_code        TEXT NOT NULL,
			issue_date        DATE NOT NULL,
			quantity          TEXT NOT NULL DEFAULT '',
			packages          INTEGER NOT NULL DEFAULT 1,
			outbound_number   TEXT NOT NULL DEFAULT '',
			outbound_date     TEXT NOT NULL DEFAULT '',
			folder            TEXT NOT NULL,
			file_path         TEXT NOT NULL,
			fields            JSONB,
			fields_compressed BYTEA,
			compression_algo  TEXT NOT NULL DEFAULT 'none',
			issued_at         TIMESTAMPTZ NOT NULL,
			UNIQUE (class, number)
		);
		CREATE INDEX IF NOT EXISTS idx_ddt_registry_order ON ddt_registry (order_code, issued_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("create ddt_registry: %w", err)
	}
	return nil
}

// Name implements notify.Sink.
func (r *Registry) Name() string { return "postgres-registry" }

// Record implements notify.Sink.
func (r *Registry) Record(ctx context.Context, n ddt.Notice) error {
	entry, err := r.entryFromNotice(n)
	if err != nil {
		return err
	}
	sql, args, err := r.insertQuery(entry).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("insert registry entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.log.Warnw("registry entry already present", "class", entry.Class, "number", entry.Number)
	}
	return nil
}

// List returns entries newest first.
func (r *Registry) List(ctx context.Context, f RegistryFilter) ([]Entry, error) {
	sql, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	entries := make([]Entry, 0)
	if err := pgxscan.Select(ctx, r.db, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if e.CompressionAlgo == CompressionZstd && len(e.FieldsCompressed) > 0 {
			raw, err := r.decoder.DecodeAll(e.FieldsCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress fields: %w", err)
			}
			e.Fields = raw
			e.FieldsCompressed = nil
		}
	}
	return entries, nil
}

func (r *Registry) entryFromNotice(n ddt.Notice) (Entry, error) {
	e := Entry{
		ID:              n.ID,
		Class:           n.Class.String(),
		Number:          n.Number,
		DocumentNumber:  n.DocumentNumber,
		OrderCode:       n.OrderCode,
		IssueDate:       n.Date,
		Quantity:        n.Quantity,
		Packages:        n.Packages,
		OutboundNumber:  n.Outbound.Number,
		OutboundDate:    n.Outbound.Date,
		Folder:          n.Folder,
		FilePath:        n.FilePath,
		CompressionAlgo: CompressionNone,
		IssuedAt:        n.IssuedAt.UTC(),
	}
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.IssuedAt.IsZero() {
		e.IssuedAt = time.Now().UTC()
	}

	if len(n.Fields) > 0 {
		raw, err := json.Marshal(n.Fields)
		if err != nil {
			return Entry{}, fmt.Errorf("marshal fields: %w", err)
		}
		if len(raw) > r.compressThreshold {
			e.FieldsCompressed = r.encoder.EncodeAll(raw, nil)
			e.CompressionAlgo = CompressionZstd
		} else {
			e.Fields = raw
		}
	}
	return e, nil
}

func (r *Registry) insertQuery(e Entry) squirrel.InsertBuilder {
	return r.Builder().
		Insert(registryTable).
		Columns(registryColumns...).
		Values(
			e.ID, e.Class, e.Number, e.DocumentNumber, e.OrderCode, e.IssueDate,
			e.Quantity, e.Packages, e.OutboundNumber, e.OutboundDate, e.Folder, e.FilePath,
			e.Fields, e.FieldsCompressed, e.CompressionAlgo, e.IssuedAt,
		).
		Suffix("ON CONFLICT (class, number) DO NOTHING")
}

func (r *Registry) listQuery(f RegistryFilter) squirrel.SelectBuilder {
	q := r.Builder().
		Select(registryColumns...).
		From(registryTable)
	if f.OrderCode != "" {
		q = q.Where(squirrel.Eq{"order_code": f.OrderCode})
	}
	if f.Class != "" {
		q = q.Where(squirrel.Eq{"class": f.Class.String()})
	}
	limit := f.Limit
	if limit == 0 || limit > 500 {
		limit = 100
	}
	return q.OrderBy("issued_at DESC").Limit(limit)
}
