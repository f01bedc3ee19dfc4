// Package generator issues numbered delivery notes into order folders.
//
// One Generate call runs strictly in this order: acquire locks, reconcile the
// counter with disk, peek, same-day check, render, exclusive write, advance,
// release. The counter only advances after the file exists, so a crash in
// between leaves a file that the next reconcile accounts for.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"commesse/internal/core/apperror"
	"commesse/internal/core/id"
	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
	"commesse/internal/domain/guard"
	"commesse/pkg/logger"
	pkgnumerator "commesse/pkg/numerator"
)

var tracer = otel.Tracer("commesse/generator")

// Notes attached to successful results that did not write a new file.
const (
	NoteAlreadyIssued = "document already issued today for this order, no new file"
	NoteWriteRace     = "document written by a concurrent request, no new file"
	NotePreview       = "preview only, nothing written"
	NoteRawTemplate   = "template has no fillable fields, raw copy written"
	NoteAdvanceFailed = "document written but counter not advanced, next reconcile will catch up"
)

// Locker takes named cross-process locks.
type Locker interface {
	Acquire(ctx context.Context, names ...string) (release func(), err error)
}

// Reconciler moves a counter forward to match documents on disk.
type Reconciler interface {
	Reconcile(ctx context.Context, class numerator.Class, extra ...string) (int, error)
}

// Renderer produces document bytes for a class. raw reports a template copied unchanged.
type Renderer interface {
	Render(class numerator.Class, fields map[string]string) (data []byte, raw bool, err error)
}

// Request selects the folder and class. Advance=false only previews the next number.
type Request struct {
	Folder  string
	Class   numerator.Class
	Advance bool
}

// Result is the outcome of a successful Generate call.
type Result struct {
	OK             bool   `json:"ok"`
	DocumentNumber string `json:"documentNumber,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FilePath       string `json:"filePath,omitempty"`
	Note           string `json:"note,omitempty"`

	Number  int         `json:"-"`
	Created bool        `json:"-"`
	Preview bool        `json:"-"`
	Notice  *ddt.Notice `json:"-"`
}

// Generator wires the counter, locks, reconciler and renderer together.
type Generator struct {
	store      numerator.CounterStore
	locks      Locker
	reconciler Reconciler
	renderer   Renderer
	now        func() time.Time
	log        *logger.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a Generator.
func New(store numerator.CounterStore, locks Locker, reconciler Reconciler, renderer Renderer, log *logger.Logger, opts ...Option) *Generator {
	if log == nil {
		log = logger.Default()
	}
	g := &Generator{
		store:      store,
		locks:      locks,
		reconciler: reconciler,
		renderer:   renderer,
		now:        time.Now,
		log:        log.WithComponent("generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate issues (or previews) the next document of req.Class for req.Folder.
// Every error returned is an *apperror.AppError.
func (g *Generator) Generate(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "ddt.generate", trace.WithAttributes(
		attribute.String("ddt.class", req.Class.String()),
		attribute.String("ddt.folder", req.Folder),
		attribute.Bool("ddt.advance", req.Advance),
	))
	defer func() {
		if err != nil {
			err = toAppError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		g.logOutcome(ctx, req, res, err)
		span.End()
	}()

	if !req.Class.Valid() {
		return nil, apperror.NewInvalidInput(fmt.Sprintf("unknown document class %q", req.Class))
	}
	folder, err := ResolveFolder(req.Folder)
	if err != nil {
		return nil, err
	}

	materials := ddt.MaterialsPath(folder)
	if err := os.MkdirAll(materials, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", ddt.MaterialsDir, err)
	}

	release, err := g.locks.Acquire(ctx, LockNames(req.Class, folder)...)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := g.reconciler.Reconcile(ctx, req.Class, folder); err != nil {
		return nil, err
	}
	next, err := g.store.Peek(ctx, req.Class)
	if err != nil {
		return nil, fmt.Errorf("peek %s: %w", req.Class, err)
	}
	span.SetAttributes(attribute.Int("ddt.number", next))

	meta, err := ddt.LoadMetadata(folder)
	if err != nil {
		g.log.Warnw("order metadata unreadable, using folder name", "folder", folder, "error", err)
		meta = ddt.Metadata{}
	}
	code := ddt.OrderCode(folder, meta)
	today := g.now()

	found, existing, err := guard.HasSameDay(materials, code, req.Class, today)
	if err != nil {
		return nil, err
	}
	if found {
		hit := &Result{OK: true, FileName: existing, FilePath: filepath.Join(materials, existing), Note: NoteAlreadyIssued}
		if doc, ok := ddt.Parse(existing); ok {
			hit.Number = doc.Number
			hit.DocumentNumber = doc.DocumentNumber()
		}
		return hit, nil
	}

	if !pkgnumerator.Fits(next) {
		return nil, apperror.NewSequenceExhausted(req.Class.String(), next)
	}
	name, err := ddt.FileName(req.Class, next, code, today)
	if err != nil {
		return nil, apperror.NewInvalidInput(err.Error())
	}
	path := filepath.Join(materials, name)
	res = &Result{
		OK:             true,
		Number:         next,
		DocumentNumber: pkgnumerator.Format(req.Class, next),
		FileName:       name,
		FilePath:       path,
	}

	if !req.Advance {
		res.Preview = true
		res.Note = NotePreview
		return res, nil
	}

	names, err := ddt.List(materials)
	if err != nil {
		return nil, err
	}
	fields, outbound := g.fields(req.Class, folder, res.DocumentNumber, today, meta, names)

	data, raw, err := g.renderer.Render(req.Class, fields)
	if err != nil {
		return nil, err
	}
	if raw {
		res.Note = NoteRawTemplate
	}

	if err := writeExclusive(path, data); err != nil {
		if errors.Is(err, fs.ErrExist) {
			res.Note = NoteWriteRace
			return res, nil
		}
		return nil, err
	}
	res.Created = true

	if _, err := g.advance(ctx, req.Class); err != nil {
		g.log.Errorw("counter advance failed after write", "class", req.Class, "file", path, "error", err)
		res.Note = NoteAdvanceFailed
	}

	res.Notice = &ddt.Notice{
		ID:             id.New(),
		Class:          req.Class,
		Number:         next,
		DocumentNumber: res.DocumentNumber,
		OrderCode:      code,
		Date:           today,
		Quantity:       string(meta.Quantity),
		Packages:       ddt.Packages(meta),
		Outbound:       outbound,
		Folder:         folder,
		FilePath:       path,
		Fields:         fields,
		IssuedAt:       g.now(),
	}
	return res, nil
}

// Peek returns the stored next number for class, reconciled with disk.
// It takes the class counter lock like any other counter mutation.
func (g *Generator) Peek(ctx context.Context, class numerator.Class) (int, error) {
	if !class.Valid() {
		return 0, apperror.NewInvalidInput(fmt.Sprintf("unknown document class %q", class))
	}
	release, err := g.locks.Acquire(ctx, CounterLockName(class))
	if err != nil {
		return 0, toAppError(err)
	}
	defer release()

	if _, err := g.reconciler.Reconcile(ctx, class); err != nil {
		return 0, toAppError(err)
	}
	n, err := g.store.Peek(ctx, class)
	if err != nil {
		return 0, toAppError(err)
	}
	return n, nil
}

// Advance issues a raw number for class without writing any document.
func (g *Generator) Advance(ctx context.Context, class numerator.Class) (int, error) {
	if !class.Valid() {
		return 0, apperror.NewInvalidInput(fmt.Sprintf("unknown document class %q", class))
	}
	release, err := g.locks.Acquire(ctx, CounterLockName(class))
	if err != nil {
		return 0, toAppError(err)
	}
	defer release()

	if _, err := g.reconciler.Reconcile(ctx, class); err != nil {
		return 0, toAppError(err)
	}
	next, err := g.store.Peek(ctx, class)
	if err != nil {
		return 0, toAppError(err)
	}
	if !pkgnumerator.Fits(next) {
		return 0, apperror.NewSequenceExhausted(class.String(), next)
	}
	n, err := g.advance(ctx, class)
	if err != nil {
		return 0, toAppError(err)
	}
	return n, nil
}

func (g *Generator) advance(ctx context.Context, class numerator.Class) (int, error) {
	ctx, span := tracer.Start(ctx, "ddt.counter.advance",
		trace.WithAttributes(attribute.String("ddt.class", class.String())))
	defer span.End()

	n, err := g.store.Advance(ctx, class)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("advance %s: %w", class, err)
	}
	span.SetAttributes(attribute.Int("ddt.number", n))
	return n, nil
}

func (g *Generator) fields(class numerator.Class, folder, number string, today time.Time, meta ddt.Metadata, names []string) (map[string]string, ddt.OutboundRef) {
	date := today.Format(ddt.DisplayLayout)
	fields := map[string]string{
		ddt.FieldNumber:      number,
		ddt.FieldDate:        date,
		ddt.FieldDescription: "Assembraggio " + ddt.DisplayName(folder, meta),
		ddt.FieldQuantity:    string(meta.Quantity),
		ddt.FieldPackages:    strconv.Itoa(ddt.Packages(meta)),
		ddt.FieldTransport:   date,
		ddt.FieldPickup:      date,
		ddt.FieldPage:        "1/1",
	}

	var ref ddt.OutboundRef
	if class == numerator.Entrata {
		if r, ok := ddt.LatestOutbound(names); ok {
			ref = r
			fields[ddt.FieldOutboundRef] = r.Number
			fields[ddt.FieldOutboundDay] = r.Date
		}
	}
	return fields, ref
}

func (g *Generator) logOutcome(ctx context.Context, req Request, res *Result, err error) {
	log := g.log.WithContext(ctx).With("class", req.Class, "folder", req.Folder, "advance", req.Advance)
	switch {
	case err != nil && apperror.IsBusy(err):
		log.Warnw("generate busy", "outcome", "busy")
	case err != nil:
		log.Warnw("generate failed", "outcome", "error", "error", err)
	default:
		outcome := "issued"
		switch {
		case res.Preview:
			outcome = "preview"
		case !res.Created:
			outcome = "noop"
		}
		log.Infow("generate", "outcome", outcome, "number", res.DocumentNumber, "file", res.FileName, "note", res.Note)
	}
}

// ResolveFolder validates an order folder and returns its absolute path.
func ResolveFolder(folder string) (string, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "", apperror.NewInvalidInput("order folder is required")
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", apperror.NewInvalidInput("invalid order folder path").WithCause(err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", apperror.NewInvalidInput("order folder not found").WithDetail("folder", folder)
	}
	return abs, nil
}

// writeExclusive creates path and writes data. fs.ErrExist means another writer got there first.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", filepath.Base(path), errors.Join(werr, cerr))
	}
	return nil
}

func toAppError(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewInternal(err).WithDetail("reason", "canceled")
	}
	return apperror.NewInternal(err)
}
