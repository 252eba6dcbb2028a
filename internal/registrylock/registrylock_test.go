package registrylock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFlagTransitions(t *testing.T) {
	l := New(t.TempDir())
	if r, err := l.IsReadLocked(); err != nil || r {
		t.Fatalf("fresh lock read=%v err=%v", r, err)
	}
	if err := l.LockWrite(); err != nil {
		t.Fatalf("lock write: %v", err)
	}
	r, _ := l.IsReadLocked()
	w, _ := l.IsWriteLocked()
	if !r || !w {
		t.Fatalf("after LockWrite read=%v write=%v", r, w)
	}
	if err := l.UnlockWrite(); err != nil {
		t.Fatalf("unlock write: %v", err)
	}
	r, _ = l.IsReadLocked()
	w, _ = l.IsWriteLocked()
	if r || w {
		t.Fatalf("after UnlockWrite read=%v write=%v", r, w)
	}
}

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	if err := l.TryAcquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !l.Held() {
		t.Fatalf("expected lock to be held")
	}
	st, err := l.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !st.Read || !st.Write {
		t.Fatalf("expected flags set while held, got %+v", st)
	}

	other := New(dir)
	if err := other.TryAcquire(); !errors.Is(err, ErrRegistryLocked) {
		t.Fatalf("expected ErrRegistryLocked, got %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	st, _ = l.Load()
	if st.Read || st.Write {
		t.Fatalf("expected flags cleared after release, got %+v", st)
	}
	if err := other.TryAcquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := other.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestAcquireWaitsUntilDeadline(t *testing.T) {
	dir := t.TempDir()
	holder := New(dir)
	if err := holder.TryAcquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	waiter := New(dir, WithRetryDelay(10*time.Millisecond))
	if err := waiter.Acquire(ctx); !errors.Is(err, ErrRegistryLocked) {
		t.Fatalf("expected ErrRegistryLocked after deadline, got %v", err)
	}
}

func TestStaleFlagsAreReset(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StateFileName), []byte(`{"read":true,"write":true}`), 0o644); err != nil {
		t.Fatalf("write stale state: %v", err)
	}
	l := New(dir)
	if err := l.WithWriteLock(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("with write lock: %v", err)
	}
	st, err := l.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Read || st.Write {
		t.Fatalf("expected stale flags to be cleared, got %+v", st)
	}
}

func TestWithWriteLockReturnsCallbackError(t *testing.T) {
	l := New(t.TempDir())
	boom := errors.New("boom")
	if err := l.WithWriteLock(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if l.Held() {
		t.Fatalf("expected lock to be released after callback")
	}
}
