// Package lockfile keeps a second planboard server from opening the same
// state database.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrHeld is returned when another process owns the lock.
var ErrHeld = errors.New("lockfile: another planboard instance is running")

// Lock is an exclusive flock on a file. Keep it for the life of the process.
type Lock struct {
	f *os.File
}

// Acquire takes the lock without blocking and records our pid in the file.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w (lock: %s)", ErrHeld, path)
	}

	if err := f.Truncate(0); err == nil {
		f.Seek(0, 0)
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &Lock{f: f}, nil
}

func (l *Lock) Path() string {
	if l == nil || l.f == nil {
		return ""
	}
	return l.f.Name()
}

// Release unlocks and removes the file. Safe to call more than once.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	name := l.f.Name()
	l.f.Close()
	os.Remove(name)
	l.f = nil
}
