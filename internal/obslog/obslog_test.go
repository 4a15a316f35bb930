package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogEventAppendsPipeDelimitedLine(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ProjectRootEnv, dir)

	LogEvent("cycle_complete", "C:", "activities=3")

	data, err := os.ReadFile(filepath.Join(dir, ".actmem", "events.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "|cycle_complete|C:|activities=3\n")
}

func TestLogEventIsNoOpWithoutProjectRoot(t *testing.T) {
	t.Setenv(ProjectRootEnv, "")
	LogEvent("cycle_complete", "C:", "x")
}
