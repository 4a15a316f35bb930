// Package obslog provides lightweight, append-only event logging
// independent of the structured *slog.Logger each component is handed.
// Adapted from internal/debug/debug.go's LogEvent/LogEventWithContext
// pair: same pipe-delimited line format, with the project root taken from
// the ACTMEM_PROJECT_ROOT environment variable instead of a directory walk,
// and issue/agent/session identifiers replaced by a volume identifier.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var logMutex sync.Mutex

// ProjectRootEnv names the environment variable that points at the project
// root; the events log lives under <root>/.actmem/events.log.
const ProjectRootEnv = "ACTMEM_PROJECT_ROOT"

// LogEvent appends one line to the events log: TIMESTAMP|EVENT|VOLUME|DETAIL.
// Failures are silent — observability logging must never be allowed to
// fail a pipeline cycle.
func LogEvent(event, volume, detail string) {
	root := os.Getenv(ProjectRootEnv)
	if root == "" {
		return
	}

	logMutex.Lock()
	defer logMutex.Unlock()

	dir := filepath.Join(root, ".actmem")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return
	}

	// #nosec G304 - path is derived from a configured project root, not
	// user-controlled request data
	f, err := os.OpenFile(filepath.Join(dir, "events.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s|%s|%s|%s\n", time.Now().UTC().Format(time.RFC3339), event, volume, detail)
	_, _ = f.WriteString(line)
}
