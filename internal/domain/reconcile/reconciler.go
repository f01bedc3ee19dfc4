// Package reconcile keeps a counter at or above the highest document number
// found on disk. It only ever moves a counter forward.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"commesse/internal/core/numerator"
	"commesse/internal/domain/ddt"
	"commesse/pkg/logger"
)

var tracer = otel.Tracer("commesse/reconcile")

// Reconciler scans order folders under Root.
type Reconciler struct {
	root  string
	store numerator.CounterStore
	log   *logger.Logger
}

// New creates a Reconciler. An empty root limits scans to explicitly named folders.
func New(root string, store numerator.CounterStore, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Default()
	}
	return &Reconciler{root: root, store: store, log: log.WithComponent("reconciler")}
}

// Root returns the orders root folder.
func (r *Reconciler) Root() string { return r.root }

// Folders lists the order folders under root in directory order.
// A missing root is logged and yields nothing.
func (r *Reconciler) Folders() ([]string, error) {
	if r.root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		r.log.Warnw("orders root not found", "root", r.root)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list orders root: %w", err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() && ddt.IsOrderFolderName(e.Name()) {
			out = append(out, filepath.Join(r.root, e.Name()))
		}
	}
	return out, nil
}

// ScanMax returns the highest class number found in the MATERIALI folder of
// every order under root plus the extra folders, or 0 when there is none.
func (r *Reconciler) ScanMax(ctx context.Context, class numerator.Class, extra ...string) (int, error) {
	folders, err := r.Folders()
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(folders)+len(extra))
	highest := 0
	for _, folder := range append(folders, extra...) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		key := filepath.Clean(folder)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		names, err := ddt.List(ddt.MaterialsPath(folder))
		if err != nil {
			// One unreadable folder must not block numbering for the rest.
			r.log.Warnw("skip unreadable order folder", "folder", folder, "error", err)
			continue
		}
		for _, name := range names {
			if n, ok := ddt.NumberOf(class, name); ok && n > highest {
				highest = n
			}
		}
	}
	return highest, nil
}

// Reconcile forces the class counter to at least ScanMax+1 and returns the stored value.
// The caller must hold the class counter lock.
func (r *Reconciler) Reconcile(ctx context.Context, class numerator.Class, extra ...string) (int, error) {
	ctx, span := tracer.Start(ctx, "reconcile",
		trace.WithAttributes(attribute.String("ddt.class", class.String())))
	defer span.End()

	highest, err := r.ScanMax(ctx, class, extra...)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("scan %s: %w", class, err)
	}
	span.SetAttributes(attribute.Int("ddt.disk_max", highest))

	next, err := r.store.ForceTo(ctx, class, highest+1)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("force %s counter: %w", class, err)
	}
	return next, nil
}
