package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commesse/internal/core/apperror"
	"commesse/pkg/logger"
)

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), logger.Nop(), opts...)
	require.NoError(t, err)
	return m
}

func TestTryAcquire_SecondCallerIsBusy(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	tok, err := m.TryAcquire(ctx, "ddt-counter-uscita")
	require.NoError(t, err)
	assert.True(t, m.Held("ddt-counter-uscita"))

	_, err = m.TryAcquire(ctx, "ddt-counter-uscita")
	require.Error(t, err)
	assert.True(t, apperror.IsBusy(err))
	assert.Equal(t, 423, apperror.GetHTTPStatus(err))

	require.NoError(t, m.Release(tok))
	assert.False(t, m.Held("ddt-counter-uscita"))

	tok, err = m.TryAcquire(ctx, "ddt-counter-uscita")
	require.NoError(t, err)
	require.NoError(t, m.Release(tok))
}

func TestRelease_IsIdempotent(t *testing.T) {
	m := newManager(t)

	tok, err := m.TryAcquire(context.Background(), "x")
	require.NoError(t, err)

	require.NoError(t, m.Release(tok))
	require.NoError(t, m.Release(tok))
	require.NoError(t, m.Release(nil))
}

func TestRelease_KeepsForeignSentinel(t *testing.T) {
	m := newManager(t)

	tok, err := m.TryAcquire(context.Background(), "x")
	require.NoError(t, err)

	foreign, _ := json.Marshal(sentinel{Owner: "someone-else", CreatedAt: time.Now()})
	require.NoError(t, os.WriteFile(m.Path("x"), foreign, 0o644))

	require.NoError(t, m.Release(tok))
	assert.True(t, m.Held("x"))
}

func writeSentinel(t *testing.T, path string, s sentinel, mod time.Time) {
	t.Helper()
	body, err := json.Marshal(s)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func readOwner(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s sentinel
	require.NoError(t, json.Unmarshal(data, &s))
	return s.Owner
}

func TestTryAcquire_BreaksStaleSentinel(t *testing.T) {
	m := newManager(t, WithStaleAfter(time.Minute))
	old := time.Now().Add(-5 * time.Minute)
	writeSentinel(t, m.Path("x"), sentinel{Owner: "crashed", PID: 1, CreatedAt: old}, old)

	tok, err := m.TryAcquire(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, tok.Owner.String(), readOwner(t, m.Path("x")))

	tombs, err := filepath.Glob(filepath.Join(m.Dir(), "*.stale"))
	require.NoError(t, err)
	assert.Empty(t, tombs)
}

func TestTryAcquire_FreshSentinelIsNotBroken(t *testing.T) {
	m := newManager(t, WithStaleAfter(time.Minute))
	// The embedded time is ignored; only the file's age counts.
	writeSentinel(t, m.Path("x"), sentinel{Owner: "alive", CreatedAt: time.Now().Add(-time.Hour)}, time.Now())

	_, err := m.TryAcquire(context.Background(), "x")
	assert.True(t, apperror.IsBusy(err))
	assert.Equal(t, "alive", readOwner(t, m.Path("x")))
}

func TestTryAcquire_SkewedClocksKeepMutualExclusion(t *testing.T) {
	dir := t.TempDir()
	a, err := NewManager(dir, logger.Nop(), WithStaleAfter(2*time.Minute))
	require.NoError(t, err)
	ahead := func() time.Time { return time.Now().Add(3 * time.Minute) }
	b, err := NewManager(dir, logger.Nop(), WithStaleAfter(2*time.Minute), WithClock(ahead))
	require.NoError(t, err)
	behind := func() time.Time { return time.Now().Add(-3 * time.Minute) }
	c, err := NewManager(dir, logger.Nop(), WithStaleAfter(2*time.Minute), WithClock(behind))
	require.NoError(t, err)

	ctx := context.Background()
	tok, err := c.TryAcquire(ctx, "ddt-counter-entrata")
	require.NoError(t, err)

	_, err = b.TryAcquire(ctx, "ddt-counter-entrata")
	assert.True(t, apperror.IsBusy(err))
	_, err = a.TryAcquire(ctx, "ddt-counter-entrata")
	assert.True(t, apperror.IsBusy(err))
	assert.Equal(t, tok.Owner.String(), readOwner(t, c.Path("ddt-counter-entrata")))

	require.NoError(t, c.Release(tok))
	tok, err = b.TryAcquire(ctx, "ddt-counter-entrata")
	require.NoError(t, err)
	require.NoError(t, b.Release(tok))
}

func TestDiscard_RestoresReplacedSentinel(t *testing.T) {
	m := newManager(t, WithStaleAfter(time.Minute))
	old := time.Now().Add(-5 * time.Minute)
	writeSentinel(t, m.Path("x"), sentinel{Owner: "crashed", CreatedAt: old}, old)
	info, err := os.Stat(m.Path("x"))
	require.NoError(t, err)
	data, err := os.ReadFile(m.Path("x"))
	require.NoError(t, err)
	judged := snapshot{data: data, mod: info.ModTime()}

	// Another process broke the stale sentinel and took the lock first.
	require.NoError(t, os.Remove(m.Path("x")))
	tok, err := m.TryAcquire(context.Background(), "x")
	require.NoError(t, err)

	assert.False(t, m.discard("x", judged))
	assert.Equal(t, tok.Owner.String(), readOwner(t, m.Path("x")))

	tombs, err := filepath.Glob(filepath.Join(m.Dir(), "*.stale"))
	require.NoError(t, err)
	assert.Empty(t, tombs)
}

func TestDiscard_MissingSentinel(t *testing.T) {
	m := newManager(t)
	assert.True(t, m.discard("gone", snapshot{}))
}

func TestTryAcquire_CanceledContext(t *testing.T) {
	m := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.TryAcquire(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Held("x"))
}

func TestTryAcquire_MutualExclusion(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := m.TryAcquire(ctx, "shared"); err == nil {
				winners.Add(1)
			} else {
				assert.True(t, apperror.IsBusy(err))
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestAcquireAll_ReleasesOnBusy(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	held, err := m.TryAcquire(ctx, "counter")
	require.NoError(t, err)

	_, err = m.AcquireAll(ctx, "folder", "counter")
	require.Error(t, err)
	assert.True(t, apperror.IsBusy(err))
	assert.False(t, m.Held("folder"))

	require.NoError(t, m.Release(held))

	set, err := m.AcquireAll(ctx, "folder", "counter")
	require.NoError(t, err)
	assert.True(t, m.Held("folder"))
	assert.True(t, m.Held("counter"))

	set.Release()
	assert.False(t, m.Held("folder"))
	assert.False(t, m.Held("counter"))

	release, err := m.Acquire(ctx, "folder", "counter")
	require.NoError(t, err)
	assert.True(t, m.Held("counter"))
	release()
	assert.False(t, m.Held("folder"))
}
