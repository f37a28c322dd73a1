package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	lockDirName    = ".convert.lock"
	lockHolderFile = "holder.json"
)

// LockHolder describes the invocation holding a run lock. It is persisted
// inside the lock directory so a blocked caller can say who is busy, and so
// a lock left behind by a crashed process can be recognized and reclaimed.
type LockHolder struct {
	PID        int    `json:"pid"`
	Hostname   string `json:"hostname,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	Operation  string `json:"operation,omitempty"`
	AcquiredAt string `json:"acquired_at"`
}

// RunLock guards a run directory against concurrent invocations. Acquisition
// relies on os.Mkdir being atomic on every platform we care about.
type RunLock struct {
	dir string
}

// AcquireRunLock takes the per-run lock for the given operation ("convert",
// "requeue"). A lock whose holder process is dead on this host is treated as
// a leftover from a crashed invocation and reclaimed, so a crash never wedges
// the run until someone deletes the lock by hand.
func AcquireRunLock(runDir, runID, operation string) (RunLock, error) {
	target := strings.TrimSpace(runDir)
	if target == "" {
		return RunLock{}, fmt.Errorf("run directory is required")
	}
	dir := filepath.Join(target, lockDirName)
	holderPath := filepath.Join(dir, lockHolderFile)

	for attempt := 0; ; attempt++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return RunLock{}, fmt.Errorf("acquire lock for run %s: %w", target, err)
		}

		var holder LockHolder
		readErr := ReadJSON(holderPath, &holder)
		if attempt == 0 && readErr == nil && holderIsStale(holder) {
			_ = os.Remove(holderPath)
			_ = os.Remove(dir)
			continue
		}

		label := holder.RunID
		if label == "" {
			label = target
		}
		if readErr == nil && holder.PID > 0 {
			return RunLock{}, fmt.Errorf(
				"run %s is busy: %s in progress (pid=%d host=%s since %s)",
				label, holder.Operation, holder.PID, holder.Hostname, holder.AcquiredAt,
			)
		}
		return RunLock{}, fmt.Errorf("run %s is busy: lock held at %s", label, dir)
	}

	holder := LockHolder{
		PID:        os.Getpid(),
		Hostname:   localHostname(),
		RunID:      runID,
		Operation:  operation,
		AcquiredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := WriteJSON(holderPath, holder); err != nil {
		_ = os.Remove(dir)
		return RunLock{}, fmt.Errorf("record lock holder for run %s: %w", target, err)
	}
	return RunLock{dir: dir}, nil
}

func (l RunLock) Release() error {
	if strings.TrimSpace(l.dir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.dir, lockHolderFile))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock %s: %w", l.dir, err)
	}
	return nil
}

// holderIsStale reports whether the recorded holder was a process on this
// host that no longer exists. Locks from other hosts are never reclaimed;
// liveness cannot be checked remotely.
func holderIsStale(h LockHolder) bool {
	if h.PID <= 0 || h.Hostname == "" || h.Hostname != localHostname() {
		return false
	}
	proc, err := os.FindProcess(h.PID)
	if err != nil {
		return true
	}
	sigErr := proc.Signal(syscall.Signal(0))
	if sigErr == nil || errors.Is(sigErr, syscall.EPERM) {
		return false
	}
	return true
}

func localHostname() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
