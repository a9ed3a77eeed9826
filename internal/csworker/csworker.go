// Package csworker implements the critical-section worker: the
// out-of-process collaborator that performs the observable work
// between RequestLock and ReleaseLock. It appends two timestamped
// lines to a shared append-only log, one at entry and one at exit,
// each followed by a durability fence, so that mutual exclusion can
// be checked after the fact by inspecting the log.
package csworker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Worker writes taken/released records to a shared log file.
type Worker struct {
	logPath string
}

// New returns a Worker appending to logPath, created if absent.
func New(logPath string) *Worker {
	return &Worker{logPath: logPath}
}

// Run appends the "Lock taken" record, sleeps for duration (bounded by
// ctx), then appends "Lock released". It is invoked synchronously
// between a peer's RequestLock and ReleaseLock calls; its log output
// is what the mutual-exclusion test oracle observes.
func (w *Worker) Run(ctx context.Context, pid int32, duration time.Duration) error {
	f, err := os.OpenFile(w.logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "csworker: open %s", w.logPath)
	}
	defer f.Close()

	if err := appendLine(f, pid, false); err != nil {
		return err
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		return ctx.Err()
	}

	return appendLine(f, pid, true)
}

// appendLine writes one "[Process <pid>] [Time <ns>] Lock
// taken|released" line and fences it to stable storage before
// returning.
func appendLine(f *os.File, pid int32, released bool) error {
	state := "taken"
	if released {
		state = "released"
	}
	line := fmt.Sprintf("[Process %d] [Time %d] Lock %s\n", pid, currentTimeNanos(), state)

	if _, err := f.WriteString(line); err != nil {
		return errors.Wrap(err, "csworker: write log line")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "csworker: fsync log")
	}
	return nil
}

func currentTimeNanos() int64 {
	return time.Now().UnixNano()
}
