package daemon

import (
	"fmt"
	"os"
	"time"
)

// ErrLockHeld is returned when the writer lock is held by another daemon
// instance that answered its health endpoint.
var ErrLockHeld = fmt.Errorf("writer lock held by a live hub")

const (
	reclaimMaxAttempts = 5
	reclaimBackoff     = 100 * time.Millisecond
)

// HealthChecker probes a candidate host/port for liveness and returns the
// instance_id it advertises. ok is false if the endpoint didn't respond
// within timeout or returned something unparseable.
type HealthChecker func(host string, port int, timeout time.Duration) (instanceID string, ok bool)

// WriterLock is the workspace-wide mutual-exclusion primitive: only the
// daemon holding it may accept writes. Unlike the teacher's flock-based
// lock, it is a plain file whose presence is meaningful on its own — a
// stale lock from a dead daemon is reclaimed by the algorithm below rather
// than relying on the OS to release it when the process dies.
type WriterLock struct {
	path string
}

// AcquireLock implements spec.md §4.5 step 2: attempt an exclusive
// create; on EEXIST, read the sibling server.json and health-check the
// instance it names. A live instance means the lock is genuinely held —
// fail with ErrLockHeld. An unreachable or mismatched instance means the
// lock is stale — remove it and retry, bounded by reclaimMaxAttempts.
func AcquireLock(lockPath, serverJSONPath, instanceID string, check HealthChecker) (*WriterLock, error) {
	for attempt := 0; attempt < reclaimMaxAttempts; attempt++ {
		if err := tryCreateLock(lockPath); err == nil {
			return &WriterLock{path: lockPath}, nil
		} else if !os.IsExist(err) {
			return nil, fmt.Errorf("create writer lock: %w", err)
		}

		info, err := ReadServerJSON(serverJSONPath)
		if err != nil {
			// No server.json (or unreadable): the lock is an orphan from a
			// daemon that died between lock-create and server.json-write.
			if removeErr := os.Remove(lockPath); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("remove orphaned lock: %w", removeErr)
			}
			time.Sleep(reclaimBackoff)
			continue
		}

		advertised, ok := check(info.Host, info.Port, 2*time.Second)
		if ok && advertised == info.InstanceID {
			return nil, ErrLockHeld
		}

		// Unreachable, or answered with a different instance_id than the
		// one server.json names: the prior owner is dead. Reclaim.
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
		time.Sleep(reclaimBackoff)
	}
	return nil, fmt.Errorf("acquire writer lock: exhausted %d attempts", reclaimMaxAttempts)
}

func tryCreateLock(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	content := fmt.Sprintf("%d\n%s", os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("write lock content: %w", err)
	}
	return nil
}

// Release removes the lock file. Idempotent.
func (l *WriterLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove writer lock: %w", err)
	}
	return nil
}
