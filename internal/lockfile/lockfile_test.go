package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLockfile_AcquireRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "sessions", "Bit-O-Asm-1", "solve.lock")
	lock := New(lockPath)

	if err := lock.TryAcquire("s1"); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if !lock.Locked() {
		t.Error("Lock should be locked")
	}
	if lock.Owner().PID != os.Getpid() || lock.Owner().SessionID != "s1" {
		t.Errorf("unexpected owner %+v", lock.Owner())
	}

	owner, err := Read(lockPath)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if owner.SessionID != "s1" || owner.Acquired.IsZero() {
		t.Errorf("unexpected recorded owner %+v", owner)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
	if lock.Locked() {
		t.Error("Lock should not be locked after release")
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lockfile should be removed after release")
	}

	if err := lock.TryAcquire("s2"); err != nil {
		t.Fatalf("Failed to acquire lock after release: %v", err)
	}
	lock.Release()
}

func TestLockfile_AlreadyLocked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "solve.lock")

	first := New(lockPath)
	if err := first.TryAcquire("s1"); err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer first.Release()

	second := New(lockPath)
	err := second.TryAcquire("s2")
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked, got %v", err)
	}
	if second.Locked() {
		t.Error("Second lock should not be held")
	}
}

func TestLockfile_StaleLockIsReplaced(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "solve.lock")
	// PID 0 never names a live solver
	if err := os.WriteFile(lockPath, []byte("0\nold-session\n"), 0644); err != nil {
		t.Fatal(err)
	}

	lock := New(lockPath)
	if err := lock.TryAcquire("fresh"); err != nil {
		t.Fatalf("Failed to replace stale lock: %v", err)
	}
	defer lock.Release()

	owner, err := Read(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	if owner.SessionID != "fresh" {
		t.Errorf("SessionID = %q, want fresh", owner.SessionID)
	}
}

func TestLockfile_CorruptLockIsReplaced(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "solve.lock")
	if err := os.WriteFile(lockPath, []byte("not a pid"), 0644); err != nil {
		t.Fatal(err)
	}

	lock := New(lockPath)
	if err := lock.TryAcquire("fresh"); err != nil {
		t.Fatalf("Failed to replace corrupt lock: %v", err)
	}
	lock.Release()
}

func TestLockfile_ReleaseUnheld(t *testing.T) {
	if err := New(filepath.Join(t.TempDir(), "solve.lock")).Release(); err != nil {
		t.Errorf("Release of unheld lock returned %v", err)
	}
}
