package submit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created in the lock directory while a submission runs.
const LockFileName = "submit.lock"

// ErrBusy reports that another process on this workstation is submitting.
var ErrBusy = errors.New("another project is being created on this workstation, try again when it has finished")

// Lock is an advisory file lock held for the duration of one submission.
type Lock struct {
	path string
	lock *flock.Flock
}

// NewLock returns a lock backed by dir/submit.lock.
func NewLock(dir string) *Lock {
	path := filepath.Join(dir, LockFileName)
	return &Lock{path: path, lock: flock.New(path)}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Guard runs fn while holding the lock. It does not wait: when the lock is
// taken the result carries ErrBusy and fn is not called. A nil Lock just
// runs fn.
func (l *Lock) Guard(fn func() Result) Result {
	if l == nil {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return Result{Err: fmt.Errorf("submit: ensure lock dir: %w", err)}
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return Result{Err: fmt.Errorf("submit: acquire lock: %w", err)}
	}
	if !ok {
		return Result{Err: ErrBusy}
	}
	defer func() {
		_ = l.lock.Unlock()
	}()
	return fn()
}
