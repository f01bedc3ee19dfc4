// Package numerator provides CounterStore implementations.
//
// FileStore keeps one tiny JSON record per class ({"progressivo": N}) in the
// operator-configured data directory. The record is re-read on every call and
// rewritten atomically, so several processes or a restarted one always agree
// on the value as long as they serialise mutations through the lock manager.
package numerator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	corenumerator "commesse/internal/core/numerator"
	"commesse/pkg/logger"
)

type record struct {
	Progressivo int `json:"progressivo"`
}

// FileStore is the default CounterStore.
type FileStore struct {
	dir string
	log *logger.Logger
}

// Ensure compile-time interface compliance.
var _ corenumerator.CounterStore = (*FileStore)(nil)

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("counter store directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create counter dir: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}
	return &FileStore{dir: dir, log: log.WithComponent("counter-store")}, nil
}

// Path returns the record location for class. File names match the legacy server.
func (s *FileStore) Path(class corenumerator.Class) string {
	return filepath.Join(s.dir, "bolle_in_"+string(class)+".json")
}

// Peek implements CounterStore.
func (s *FileStore) Peek(_ context.Context, class corenumerator.Class) (int, error) {
	return s.read(class)
}

// Advance implements CounterStore.
func (s *FileStore) Advance(_ context.Context, class corenumerator.Class) (int, error) {
	n, err := s.read(class)
	if err != nil {
		return 0, err
	}
	if err := s.write(class, n+1); err != nil {
		return 0, err
	}
	return n, nil
}

// ForceTo implements CounterStore. The stored value never decreases.
func (s *FileStore) ForceTo(_ context.Context, class corenumerator.Class, candidateNext int) (int, error) {
	n, err := s.read(class)
	if err != nil {
		return 0, err
	}
	if candidateNext <= n {
		return n, nil
	}
	if err := s.write(class, candidateNext); err != nil {
		return 0, err
	}
	s.log.Infow("counter forced forward", "class", class, "from", n, "to", candidateNext)
	return candidateNext, nil
}

// read returns the stored value, repairing a missing or corrupt record to 1.
func (s *FileStore) read(class corenumerator.Class) (int, error) {
	if !class.Valid() {
		return 0, fmt.Errorf("unknown class %q", class)
	}
	path := s.Path(class)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.repair(class, "missing")
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", class, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return s.repair(class, "corrupt")
	}
	if rec.Progressivo < 1 {
		return s.repair(class, "out of range")
	}
	return rec.Progressivo, nil
}

func (s *FileStore) repair(class corenumerator.Class, reason string) (int, error) {
	s.log.Warnw("counter record repaired", "class", class, "reason", reason, "path", s.Path(class))
	if err := s.write(class, 1); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *FileStore) write(class corenumerator.Class, value int) error {
	data, err := json.Marshal(record{Progressivo: value})
	if err != nil {
		return fmt.Errorf("marshal counter: %w", err)
	}
	if err := atomic.WriteFile(s.Path(class), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write counter %s: %w", class, err)
	}
	return nil
}
