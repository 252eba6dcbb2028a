// Package registrylock guards repository mutations across processes.
//
// The lock keeps two booleans in registry.lock for tools that only read the
// flags, and holds an exclusive OS file lock on registry.flock while they are
// set. The OS lock disappears when the holding process exits, so flags left
// behind by a crash are recognised as stale and reset by the next holder.
package registrylock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofrs/flock"
	"github.com/moby/sys/atomicwriter"
)

const (
	StateFileName = "registry.lock"
	FlockFileName = "registry.flock"
)

var ErrRegistryLocked = errors.New("registry is locked by another process")

type State struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

type Lock struct {
	dir        string
	statePath  string
	fl         *flock.Flock
	log        logr.Logger
	retryDelay time.Duration
}

type Option func(*Lock)

func WithLogger(log logr.Logger) Option {
	return func(l *Lock) { l.log = log }
}

// WithRetryDelay sets how often Acquire polls a held lock while waiting on ctx.
func WithRetryDelay(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.retryDelay = d
		}
	}
}

// New returns a lock rooted at dir, normally the repository root.
func New(dir string, opts ...Option) *Lock {
	l := &Lock{
		dir:        dir,
		statePath:  filepath.Join(dir, StateFileName),
		fl:         flock.New(filepath.Join(dir, FlockFileName)),
		log:        logr.Discard(),
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the persisted flags. A missing file means unlocked.
func (l *Lock) Load() (State, error) {
	data, err := os.ReadFile(l.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("read registry lock: %w", err)
	}
	var st State
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decode registry lock %s: %w", l.statePath, err)
	}
	return st, nil
}

func (l *Lock) save(st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := atomicwriter.WriteFile(l.statePath, data, 0o644); err != nil {
		return fmt.Errorf("write registry lock: %w", err)
	}
	return nil
}

// LockWrite sets both flags.
func (l *Lock) LockWrite() error {
	return l.save(State{Read: true, Write: true})
}

// UnlockWrite clears both flags.
func (l *Lock) UnlockWrite() error {
	return l.save(State{})
}

func (l *Lock) IsReadLocked() (bool, error) {
	st, err := l.Load()
	return st.Read, err
}

func (l *Lock) IsWriteLocked() (bool, error) {
	st, err := l.Load()
	return st.Write, err
}

// TryAcquire takes the lock without waiting.
func (l *Lock) TryAcquire() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrRegistryLocked, l.fl.Path())
	}
	return l.markHeld()
}

// Acquire waits for the lock until ctx is done. A context without deadline
// behaves like TryAcquire.
func (l *Lock) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		return l.TryAcquire()
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	ok, err := l.fl.TryLockContext(ctx, l.retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w (%s): %v", ErrRegistryLocked, l.fl.Path(), err)
		}
		return fmt.Errorf("lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrRegistryLocked, l.fl.Path())
	}
	return l.markHeld()
}

func (l *Lock) markHeld() error {
	st, err := l.Load()
	if err != nil {
		// The OS lock is ours, so an unreadable flag file is stale by definition.
		l.log.Info("resetting unreadable registry lock", "path", l.statePath, "error", err.Error())
	} else if st.Read || st.Write {
		l.log.Info("resetting stale registry lock", "path", l.statePath, "stale", true)
	}
	if err := l.LockWrite(); err != nil {
		_ = l.fl.Unlock()
		return err
	}
	return nil
}

// Release clears the flags and drops the OS lock.
func (l *Lock) Release() error {
	if !l.fl.Locked() {
		return nil
	}
	clearErr := l.UnlockWrite()
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.fl.Path(), err)
	}
	return clearErr
}

// Held reports whether this process holds the OS lock.
func (l *Lock) Held() bool {
	return l.fl.Locked()
}

// WithWriteLock runs fn while holding the lock.
func (l *Lock) WithWriteLock(ctx context.Context, fn func() error) (err error) {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if relErr := l.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn()
}
