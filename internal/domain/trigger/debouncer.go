// Package trigger issues the inbound note automatically when an order is archived.
//
// Upstream status writes arrive in bursts, so every event for a folder
// restarts a quiescence timer and only the last one fires.
package trigger

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"commesse/internal/core/apperror"
	appctx "commesse/internal/core/context"
	"commesse/internal/core/numerator"
	"commesse/internal/domain/generator"
	"commesse/pkg/logger"
)

// Issuer is satisfied by generator.Service.
type Issuer interface {
	Issue(ctx context.Context, folder string, class numerator.Class) (*generator.Result, error)
}

// Config tunes the debouncer.
type Config struct {
	Window      time.Duration // quiescence window per folder
	RetryDelay  time.Duration // wait between attempts after Busy
	MaxAttempts int           // total attempts per firing
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Window:      15 * time.Second,
		RetryDelay:  2 * time.Second,
		MaxAttempts: 3,
	}
}

type pending struct {
	timer *time.Timer
}

// Debouncer coalesces archival events per folder.
type Debouncer struct {
	issuer Issuer
	cfg    Config
	log    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[string]*pending
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Debouncer. Zero config fields take defaults.
func New(issuer Issuer, cfg Config, log *logger.Logger) *Debouncer {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if log == nil {
		log = logger.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = appctx.WithOrigin(ctx, appctx.OriginAutomatic)
	return &Debouncer{
		issuer: issuer,
		cfg:    cfg,
		log:    log.WithComponent("archive-trigger"),
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]*pending),
	}
}

// Archived records that folder's archival flag went from false to true.
// It returns false once the debouncer is stopped.
func (d *Debouncer) Archived(folder string) bool {
	key := filepath.Clean(folder)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}

	if p, ok := d.timers[key]; ok && p.timer.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	p := &pending{}
	p.timer = time.AfterFunc(d.cfg.Window, func() { d.fire(key, p) })
	d.timers[key] = p
	d.log.Debugw("archival event debounced", "folder", key, "window", d.cfg.Window.String())
	return true
}

// Pending returns the number of folders waiting for their window to elapse.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels pending timers and waits for running issues to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for key, p := range d.timers {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// fire runs the issue for key. The map entry is dropped only if it is still p,
// since a newer event may have rescheduled key after p's timer expired.
func (d *Debouncer) fire(key string, p *pending) {
	defer d.wg.Done()

	d.mu.Lock()
	if d.timers[key] == p {
		delete(d.timers, key)
	}
	d.mu.Unlock()

	ctx := appctx.WithTrace(d.ctx, appctx.NewTraceContext())
	log := d.log.WithContext(ctx).With("folder", key)
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		res, err := d.issuer.Issue(ctx, key, numerator.Entrata)
		switch {
		case err == nil:
			log.Infow("automatic inbound note", "number", res.DocumentNumber, "file", res.FileName, "note", res.Note)
			return
		case apperror.IsBusy(err) && attempt < d.cfg.MaxAttempts:
			log.Warnw("busy, retrying", "attempt", attempt)
			select {
			case <-time.After(d.cfg.RetryDelay):
			case <-ctx.Done():
				return
			}
		default:
			// Duplicates and missing outbound notes are expected outcomes here.
			log.Warnw("automatic inbound note not issued", "attempt", attempt, "error", err)
			return
		}
	}
}
