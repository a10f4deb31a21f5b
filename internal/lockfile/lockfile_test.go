package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planboard.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	defer l.Release()

	if _, err := Acquire(path); !errors.Is(err, ErrHeld) {
		t.Fatalf("second lock error = %v, want ErrHeld", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid, _ := strconv.Atoi(strings.TrimSpace(string(raw))); pid != os.Getpid() {
		t.Fatalf("lock file pid = %q, want %d", raw, os.Getpid())
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planboard.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Release()
	l.Release()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("lock file should be removed, stat err = %v", err)
	}

	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("lock after release should succeed: %v", err)
	}
	if l2.Path() != path {
		t.Fatalf("Path() = %q, want %q", l2.Path(), path)
	}
	l2.Release()
}
