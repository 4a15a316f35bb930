// Package volumelock enforces the Integrated Runner's single-reader-per-
// volume rule (spec §5: two Readers open against the same volume is a
// configuration error, not a race to resolve). Adapted from the teacher's
// daemon.lock pattern: an flock-held, JSON-annotated lock file per resource,
// one process per file.
package volumelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/corvid-io/actmem/internal/lockfile"
)

// ErrHeld is returned when a volume is already locked by another process.
var ErrHeld = errors.New("volume already locked by another process")

// Info is the metadata recorded inside a held lock file, useful for
// diagnosing which process owns a volume.
type Info struct {
	PID       int       `json:"pid"`
	Volume    string    `json:"volume"`
	StartedAt time.Time `json:"started_at"`
}

// Lock represents a held per-volume lock. Close releases it.
type Lock struct {
	file *os.File
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

func lockFileName(volume string) string {
	return unsafeChars.ReplaceAllString(volume, "_") + ".lock"
}

// Acquire takes an exclusive, non-blocking lock on the named volume under
// lockDir, creating lockDir if needed. It returns ErrHeld if another process
// already holds the volume's lock.
func Acquire(lockDir, volume string) (*Lock, error) {
	if err := os.MkdirAll(lockDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock dir %s: %w", lockDir, err)
	}

	path := filepath.Join(lockDir, lockFileName(volume))
	// #nosec G304 - path is built from a sanitized volume identifier under a caller-controlled dir
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := lockfile.FlockExclusiveNonBlocking(f); err != nil {
		_ = f.Close()
		if lockfile.IsLocked(err) || errors.Is(err, lockfile.ErrLockBusy) {
			return nil, fmt.Errorf("%s: %w", volume, ErrHeld)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	info := Info{PID: os.Getpid(), Volume: volume, StartedAt: time.Now().UTC()}
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
	_ = f.Sync()

	return &Lock{file: f}, nil
}

// Close releases the lock.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}
	_ = lockfile.FlockUnlock(l.file)
	err := l.file.Close()
	l.file = nil
	return err
}
