package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSWatchReader emulates the journal-reader contract on platforms without a
// native change-journal API (or in tests) by watching a directory tree with
// fsnotify and synthesizing RawRecords from filesystem events. Each
// fsnotify operation is translated to the closest reason bit (see
// fsEventReasons), which the Collector then maps to an activity_type as for
// any other backend; an event with no such translation carries no reason
// bits and becomes activity_type unknown (spec §4.1).
type FSWatchReader struct {
	CountingReader

	root    string
	volume  string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending []RawRecord
	usn     uint64
}

// NewFSWatchReader creates an emulated Reader rooted at dir. The volume
// label is used only for identification (stats, lock keys); it need not
// match any OS-level volume concept.
func NewFSWatchReader(volume, dir string) *FSWatchReader {
	return &FSWatchReader{root: dir, volume: volume}
}

func (r *FSWatchReader) Volume() string { return r.volume }

// Open starts the underlying fsnotify watch, recursively adding every
// existing subdirectory.
func (r *FSWatchReader) Open(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("journal: opening fswatch backend: %w", err)
	}

	err = filepath.WalkDir(r.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort; unreadable subtrees are skipped, not fatal
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: %v", ErrUnsupportedVolume, err)
	}

	r.watcher = w
	go r.drain(ctx)
	return nil
}

func (r *FSWatchReader) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.recordEvent(ev)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				r.recordError()
			}
		}
	}
}

func (r *FSWatchReader) recordEvent(ev fsnotify.Event) {
	info, statErr := os.Lstat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	var size *int64
	if statErr == nil && !isDir {
		sz := info.Size()
		size = &sz
	}

	r.mu.Lock()
	r.usn++
	rec := RawRecord{
		ReferenceNumber: r.usn, // no stable inode-like identity available; see entity resolver fallback
		Timestamp:       time.Now().UTC(),
		FilePath:        ev.Name,
		FileName:        filepath.Base(ev.Name),
		IsDirectory:     isDir,
		FileSize:        size,
		ReasonBits:      fsEventReasons(ev.Op),
		USN:             r.usn,
	}
	r.pending = append(r.pending, rec)
	r.mu.Unlock()

	if ev.Op&fsnotify.Create == fsnotify.Create && isDir {
		_ = r.watcher.Add(ev.Name)
	}
}

// fsEventReasons maps fsnotify operations onto the same reason-bit
// vocabulary a native journal would emit, so the Collector's fixed mapping
// table (spec §4.2) applies uniformly regardless of backend.
func fsEventReasons(op fsnotify.Op) []string {
	var reasons []string
	if op&fsnotify.Create == fsnotify.Create {
		reasons = append(reasons, "FILE_CREATE")
	}
	if op&fsnotify.Remove == fsnotify.Remove {
		reasons = append(reasons, "FILE_DELETE")
	}
	if op&fsnotify.Write == fsnotify.Write {
		reasons = append(reasons, "DATA_OVERWRITE")
	}
	if op&fsnotify.Rename == fsnotify.Rename {
		reasons = append(reasons, "RENAME_OLD_NAME")
	}
	if op&fsnotify.Chmod == fsnotify.Chmod {
		reasons = append(reasons, "SECURITY_CHANGE")
	}
	if len(reasons) == 0 {
		return nil
	}
	return reasons
}

// QueryMetadata reports the emulated journal's current range. first_usn is
// always 0 since the emulation has no durable pre-existing journal to
// rewind into.
func (r *FSWatchReader) QueryMetadata(ctx context.Context) (Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Metadata{JournalID: 1, FirstUSN: 0, NextUSN: r.usn}, nil
}

// ReadBatch returns buffered records at or after nextUSN.
func (r *FSWatchReader) ReadBatch(ctx context.Context, nextUSN uint64, maxRecords int) ([]RawRecord, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []RawRecord
	var kept []RawRecord
	for _, rec := range r.pending {
		if rec.USN >= nextUSN {
			if maxRecords <= 0 || len(out) < maxRecords {
				out = append(out, rec)
			} else {
				kept = append(kept, rec)
			}
		}
	}
	r.pending = kept

	next := nextUSN
	if len(out) > 0 {
		next = out[len(out)-1].USN + 1
	}
	return out, next, nil
}

// Close stops the underlying watcher.
func (r *FSWatchReader) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}
