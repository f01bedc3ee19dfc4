// Package notify delivers issued-document notices to best-effort sinks.
//
// Notify never blocks and never reports failure to the caller. A single
// background goroutine feeds every sink in order, so register rows are
// appended in issue order.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"commesse/internal/domain/ddt"
	"commesse/pkg/logger"
)

// Sink records a notice somewhere outside the engine.
type Sink interface {
	Name() string
	Record(ctx context.Context, n ddt.Notice) error
}

// Config tunes the dispatcher.
type Config struct {
	QueueSize   int
	SinkTimeout time.Duration
}

type job struct {
	ctx    context.Context
	notice ddt.Notice
}

// Dispatcher queues notices and delivers them asynchronously.
type Dispatcher struct {
	sinks   []Sink
	queue   chan job
	timeout time.Duration
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New starts a dispatcher delivering to sinks.
func New(cfg Config, log *logger.Logger, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Default()
	}
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan job, cfg.QueueSize),
		timeout: cfg.SinkTimeout,
		log:     log.WithComponent("notify"),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues n. A full queue or a closed dispatcher drops it with a warning.
func (d *Dispatcher) Notify(ctx context.Context, n ddt.Notice) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warnw("dispatcher closed, notice dropped", "number", n.DocumentNumber)
		return
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), notice: n}:
	default:
		d.log.Warnw("notification queue full, notice dropped", "number", n.DocumentNumber, "order", n.OrderCode)
	}
}

// Close stops accepting notices and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain notifications: %w", ctx.Err())
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		for _, s := range d.sinks {
			d.deliver(j, s)
		}
	}
}

func (d *Dispatcher) deliver(j job, s Sink) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	log := d.log.WithContext(ctx).With("sink", s.Name(), "number", j.notice.DocumentNumber, "order", j.notice.OrderCode)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("notification sink panicked", "panic", r)
		}
	}()

	if err := s.Record(ctx, j.notice); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Errorw("notification sink timed out", "error", err)
			return
		}
		log.Errorw("notification failed", "error", err)
		return
	}
	log.Debugw("notification delivered")
}
