package trigger

import (
	"context"
	"time"

	"commesse/internal/domain/ddt"
	"commesse/pkg/logger"
)

// FolderLister is satisfied by reconcile.Reconciler.
type FolderLister interface {
	Folders() ([]string, error)
}

// Archiver receives archival transitions; satisfied by Debouncer.
type Archiver interface {
	Archived(folder string) bool
}

// Watcher polls every order's report.json and forwards false to true
// transitions of the archival flag. The first scan only records a baseline,
// so orders archived before startup are not re-issued.
type Watcher struct {
	folders  FolderLister
	target   Archiver
	interval time.Duration
	log      *logger.Logger

	baseline map[string]bool
	primed   bool
}

// NewWatcher creates a Watcher.
func NewWatcher(folders FolderLister, target Archiver, interval time.Duration, log *logger.Logger) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logger.Default()
	}
	return &Watcher{
		folders:  folders,
		target:   target,
		interval: interval,
		log:      log.WithComponent("archive-watcher"),
		baseline: make(map[string]bool),
	}
}

// Run scans until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}

// Scan checks every folder once and returns how many transitions it forwarded.
func (w *Watcher) Scan() int {
	folders, err := w.folders.Folders()
	if err != nil {
		w.log.Errorw("failed to list order folders", "error", err)
		return 0
	}

	seen := make(map[string]bool, len(folders))
	fired := 0
	for _, folder := range folders {
		seen[folder] = true
		meta, err := ddt.LoadMetadata(folder)
		if err != nil {
			// Keep the previous state: a half-written report must not look like a transition.
			w.log.Debugw("order metadata unreadable", "folder", folder, "error", err)
			continue
		}

		was, known := w.baseline[folder]
		w.baseline[folder] = meta.Archived
		if !w.primed || !meta.Archived || was {
			continue
		}
		if !known {
			w.log.Infow("new archived order folder", "folder", folder)
		}
		if w.target.Archived(folder) {
			fired++
		}
	}

	for folder := range w.baseline {
		if !seen[folder] {
			delete(w.baseline, folder)
		}
	}
	w.primed = true
	return fired
}
