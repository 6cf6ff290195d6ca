package collector

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrRunActive means another collection run holds the lock.
var ErrRunActive = errors.New("another collection run is active")

// acquireLock takes an exclusive run lock by creating path with this
// process's pid. A lock whose owner is no longer alive is stolen: the
// previous run crashed without cleanup.
func acquireLock(path string) (release func() error, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() error { return os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lock %s: %w", path, err)
		}
		pid, readErr := lockOwner(path)
		if readErr == nil && pid > 0 && processAlive(pid) {
			return nil, fmt.Errorf("lock %s held by pid %d: %w", path, pid, ErrRunActive)
		}
		// Stale lock: owner is gone, take it over.
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("lock %s: %w", path, ErrRunActive)
}

func lockOwner(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
