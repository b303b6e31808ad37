package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("unexpected lock path %q", lock.Path())
	}
	owner, err := ReadOwner(lock.Path())
	if err != nil {
		t.Fatalf("Failed to read owner: %v", err)
	}
	if owner.PID != os.Getpid() {
		t.Errorf("expected owner pid %d, got %d", os.Getpid(), owner.PID)
	}
	if owner.StartedAt.IsZero() {
		t.Error("expected start time recorded")
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatalf("Second lock acquisition should have failed")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got: %T", err)
	}
	if lockErr.Owner.PID != os.Getpid() {
		t.Errorf("expected conflicting owner to be this process, got %d", lockErr.Owner.PID)
	}
	if !strings.Contains(err.Error(), "another SafeBirth instance") || !strings.Contains(err.Error(), dir) {
		t.Errorf("unhelpful error message: %s", err)
	}

	// the failed attempt must not have clobbered the owner record
	owner, err := ReadOwner(filepath.Join(dir, LockFileName))
	if err != nil || owner.PID != os.Getpid() {
		t.Errorf("owner record damaged: %+v, %v", owner, err)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("Lock file should be removed after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Multiple releases should be safe: %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock after release: %v", err)
	}
	again.Release()
}

func TestReadOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	if err := os.WriteFile(path, []byte("pid=12345\nstarted=2024-03-01T10:00:00Z\nother=x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	owner, err := ReadOwner(path)
	if err != nil {
		t.Fatalf("ReadOwner: %v", err)
	}
	if owner.PID != 12345 {
		t.Errorf("expected pid 12345, got %d", owner.PID)
	}
	if !owner.StartedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start time %v", owner.StartedAt)
	}

	if err := os.WriteFile(path, []byte("pid=abc\n"), 0644); err != nil {
		t.Fatal(err)
	}
	owner, _ = ReadOwner(path)
	if owner.PID != 0 {
		t.Errorf("expected no pid for invalid record, got %d", owner.PID)
	}
	if owner.String() != "unknown process" {
		t.Errorf("unexpected owner string %q", owner.String())
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Errorf("Our own process should be detected as running")
	}
}

func TestNonExistentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Should be able to create directory and acquire lock: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Directory should have been created: %v", err)
	}
}
