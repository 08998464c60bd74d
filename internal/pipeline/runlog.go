package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
)

// RunLog is the append-only per-file summary log. Each line reads
// "File: <path>, Righe: <raw>, Righe Pulite: <clean>". Appends take an
// exclusive lock on a sibling ".lock" file so concurrent workers and
// processes never interleave lines.
type RunLog struct {
	path string
}

// NewRunLog returns a run log writing to path.
func NewRunLog(path string) *RunLog {
	return &RunLog{path: path}
}

// Path returns the log file location.
func (l *RunLog) Path() string {
	return l.path
}

// Append writes one summary line.
func (l *RunLog) Append(ctx context.Context, file string, raw, clean int) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "runlog: create dir %s", dir)
		}
	}

	lock := flock.New(l.path + ".lock")
	locked, err := lock.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil {
		return eris.Wrap(err, "runlog: lock")
	}
	if !locked {
		return eris.New("runlog: lock not acquired")
	}
	defer lock.Unlock() //nolint:errcheck

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "runlog: open %s", l.path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := fmt.Fprintf(f, "File: %s, Righe: %d, Righe Pulite: %d\n", file, raw, clean); err != nil {
		return eris.Wrap(err, "runlog: write")
	}
	return nil
}
