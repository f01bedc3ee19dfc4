// Package lock implements cross-process mutual exclusion with sentinel files.
//
// A lock is held while a sentinel file exists in the lock directory. The
// sentinel is created with O_CREATE|O_EXCL, so two processes sharing the
// directory can never both succeed. Acquisition is try-once: contention is
// reported as apperror.CodeBusy and retry policy belongs to the caller.
package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"commesse/internal/core/apperror"
	"commesse/internal/core/id"
	"commesse/pkg/logger"
)

// DefaultStaleAfter is the age past which a sentinel is treated as abandoned.
const DefaultStaleAfter = 2 * time.Minute

// Token proves ownership of an acquired lock.
type Token struct {
	Name  string
	Owner id.ID
	path  string
}

// sentinel is the JSON body of a lock file.
type sentinel struct {
	Owner     string    `json:"owner"`
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manager creates and removes lock sentinels under one directory.
type Manager struct {
	dir        string
	staleAfter time.Duration
	log        *logger.Logger
	now        func() time.Time

	hostOnce sync.Once
	host     string
}

// Option configures a Manager.
type Option func(*Manager)

// WithStaleAfter overrides DefaultStaleAfter. Zero or negative disables stale breaking.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) { m.staleAfter = d }
}

// WithClock replaces time.Now for the createdAt field written into sentinels.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates the lock directory if needed.
func NewManager(dir string, log *logger.Logger, opts ...Option) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("lock directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}
	m := &Manager{
		dir:        dir,
		staleAfter: DefaultStaleAfter,
		log:        log.WithComponent("lock-manager"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dir returns the lock directory.
func (m *Manager) Dir() string { return m.dir }

// Path returns the sentinel file used for name.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name+".lock")
}

// TryAcquire creates the sentinel for name or fails with a Busy error.
// A sentinel untouched for longer than the stale threshold is removed and creation is retried once.
func (m *Manager) TryAcquire(ctx context.Context, name string) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok, err := m.create(name)
	if err == nil || !errors.Is(err, fs.ErrExist) {
		return tok, err
	}

	if m.breakStale(name) {
		tok, err = m.create(name)
		if err == nil || !errors.Is(err, fs.ErrExist) {
			return tok, err
		}
	}

	m.log.Warnw("lock busy", "lock", name)
	return nil, apperror.NewBusy(name)
}

// Release removes the sentinel if it still belongs to tok. A missing sentinel is not an error.
func (m *Manager) Release(tok *Token) error {
	if tok == nil {
		return nil
	}

	data, err := os.ReadFile(tok.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock %s: %w", tok.Name, err)
	}

	var s sentinel
	if err := json.Unmarshal(data, &s); err == nil && s.Owner != tok.Owner.String() {
		// Broken as stale and taken over by someone else.
		m.log.Warnw("lock owned by another holder, not released", "lock", tok.Name, "owner", s.Owner)
		return nil
	}

	if err := os.Remove(tok.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock %s: %w", tok.Name, err)
	}
	return nil
}

// Held reports whether a sentinel for name currently exists.
func (m *Manager) Held(name string) bool {
	_, err := os.Stat(m.Path(name))
	return err == nil
}

func (m *Manager) create(name string) (*Token, error) {
	path := m.Path(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		return nil, fmt.Errorf("create lock %s: %w", name, err)
	}

	owner := id.New()
	body, _ := json.Marshal(sentinel{
		Owner:     owner.String(),
		PID:       os.Getpid(),
		Host:      m.hostname(),
		CreatedAt: m.now().UTC(),
	})
	_, werr := f.Write(body)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock %s: %w", name, errors.Join(werr, cerr))
	}

	return &Token{Name: name, Owner: owner, path: path}, nil
}

// snapshot is what breakStale judged: the exact sentinel body and its mtime.
type snapshot struct {
	data []byte
	mod  time.Time
}

// breakStale removes the sentinel for name when it has not been touched for
// longer than the threshold. Age is measured on the lock directory's clock
// (sentinel mtime against a freshly written clock file), never against the
// time embedded by the holder, so peers with skewed clocks agree.
func (m *Manager) breakStale(name string) bool {
	if m.staleAfter <= 0 {
		return false
	}
	path := m.Path(name)

	info, err := os.Stat(path)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}

	now, err := m.dirNow()
	if err != nil {
		m.log.Errorw("failed to read lock dir clock", "error", err)
		return false
	}
	age := now.Sub(info.ModTime())
	if age < m.staleAfter {
		return false
	}

	if !m.discard(name, snapshot{data: data, mod: info.ModTime()}) {
		return false
	}
	var s sentinel
	_ = json.Unmarshal(data, &s)
	m.log.Warnw("stale lock removed", "lock", name, "owner", s.Owner, "host", s.Host, "age", age.String())
	return true
}

// discard moves the sentinel aside under a unique name and deletes it only if
// it is still the one that was judged stale. A sentinel recreated in the
// meantime is put back without clobbering a newer one.
func (m *Manager) discard(name string, judged snapshot) bool {
	path := m.Path(name)
	tomb := fmt.Sprintf("%s.%s.stale", path, id.New())

	if err := os.Rename(path, tomb); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true
		}
		m.log.Errorw("failed to move stale lock", "lock", name, "error", err)
		return false
	}

	info, ierr := os.Stat(tomb)
	data, derr := os.ReadFile(tomb)
	if ierr == nil && derr == nil && bytes.Equal(data, judged.data) && info.ModTime().Equal(judged.mod) {
		if err := os.Remove(tomb); err != nil {
			m.log.Errorw("failed to remove stale lock", "lock", name, "error", err)
		}
		return true
	}

	// Someone else replaced the sentinel after it was judged.
	if err := os.Link(tomb, path); err != nil {
		m.log.Errorw("failed to restore live lock", "lock", name, "error", err)
	}
	_ = os.Remove(tomb)
	return false
}

// dirNow returns the current time as the filesystem holding the locks sees it.
func (m *Manager) dirNow() (time.Time, error) {
	clockFile := filepath.Join(m.dir, ".clock")
	if err := os.WriteFile(clockFile, []byte(m.hostname()), 0o644); err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(clockFile)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (m *Manager) hostname() string {
	m.hostOnce.Do(func() {
		m.host, _ = os.Hostname()
	})
	return m.host
}

// Set is a group of tokens acquired in order and released in reverse.
type Set struct {
	m      *Manager
	tokens []*Token
}

// AcquireAll takes every named lock in order. If any is busy the ones
// already taken are released before returning the error.
func (m *Manager) AcquireAll(ctx context.Context, names ...string) (*Set, error) {
	set := &Set{m: m}
	for _, name := range names {
		tok, err := m.TryAcquire(ctx, name)
		if err != nil {
			set.Release()
			return nil, err
		}
		set.tokens = append(set.tokens, tok)
	}
	return set, nil
}

// Release frees every token in the set. Errors are logged.
func (s *Set) Release() {
	if s == nil {
		return
	}
	for i := len(s.tokens) - 1; i >= 0; i-- {
		if err := s.m.Release(s.tokens[i]); err != nil {
			s.m.log.Errorw("failed to release lock", "lock", s.tokens[i].Name, "error", err)
		}
	}
	s.tokens = nil
}

// Acquire takes every named lock in order and returns a func that releases them.
func (m *Manager) Acquire(ctx context.Context, names ...string) (func(), error) {
	set, err := m.AcquireAll(ctx, names...)
	if err != nil {
		return nil, err
	}
	return set.Release, nil
}
