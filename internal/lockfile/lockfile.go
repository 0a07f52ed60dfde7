// Package lockfile keeps two solver processes off the same challenge
// directory. The lock records who holds it so a crashed run can be detected
// and replaced.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLocked is returned when a live process already holds the lock.
var ErrLocked = errors.New("challenge is already being solved")

// Owner describes the process holding a lock.
type Owner struct {
	PID       int
	SessionID string
	Acquired  time.Time
}

// Lockfile is a file-based lock for one challenge directory.
type Lockfile struct {
	path   string
	file   *os.File
	owner  Owner
	locked bool
}

// New creates a lock at path. Nothing is touched until TryAcquire.
func New(path string) *Lockfile {
	return &Lockfile{path: path}
}

// TryAcquire takes the lock for sessionID. A lock left behind by a process
// that no longer runs is removed first.
func (l *Lockfile) TryAcquire(sessionID string) error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := l.create()
	if os.IsExist(err) {
		holder, stale, reason := l.inspect()
		if !stale {
			return fmt.Errorf("%w: session %s (PID %d)", ErrLocked, holder.SessionID, holder.PID)
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lockfile (%s): %w", reason, err)
		}
		file, err = l.create()
	}
	if err != nil {
		return fmt.Errorf("failed to create lockfile: %w", err)
	}

	l.file = file
	l.owner = Owner{PID: os.Getpid(), SessionID: sessionID, Acquired: time.Now()}
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n%s\n", l.owner.PID, l.owner.SessionID, l.owner.Acquired.Format(time.RFC3339))
	if _, err := l.file.WriteString(content); err != nil {
		l.Release()
		return fmt.Errorf("failed to write to lockfile: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}
	return nil
}

func (l *Lockfile) create() (*os.File, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

// inspect reads the current holder. Unreadable files count as stale.
func (l *Lockfile) inspect() (Owner, bool, string) {
	holder, err := Read(l.path)
	if err != nil {
		return holder, true, err.Error()
	}
	if running, reason := isProcessRunning(holder.PID); !running {
		return holder, true, reason
	}
	return holder, false, ""
}

// Read parses the lockfile at path.
func Read(path string) (Owner, error) {
	var owner Owner
	data, err := os.ReadFile(path)
	if err != nil {
		return owner, fmt.Errorf("cannot read lockfile: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return owner, errors.New("invalid PID in lockfile")
	}
	owner.PID = pid
	if len(lines) >= 2 {
		owner.SessionID = strings.TrimSpace(lines[1])
	}
	if len(lines) >= 3 {
		owner.Acquired, _ = time.Parse(time.RFC3339, strings.TrimSpace(lines[2]))
	}
	return owner, nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}

	var err error
	if l.file != nil {
		err = l.file.Close()
		l.file = nil
	}
	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		err = errors.Join(err, fmt.Errorf("failed to remove lockfile: %w", removeErr))
	}

	l.locked = false
	return err
}

// Owner returns the holder recorded by TryAcquire.
func (l *Lockfile) Owner() Owner { return l.owner }

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool { return l.locked }

// Path returns the lockfile path
func (l *Lockfile) Path() string { return l.path }
