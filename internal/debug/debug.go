// Package debug holds the small set of process-wide output toggles shared
// by cmd/activityd: verbose/debug tracing and quiet mode.
package debug

import (
	"fmt"
	"os"
)

var (
	enabled     = os.Getenv("ACTMEM_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

// Enabled reports whether debug tracing is on, via ACTMEM_DEBUG or SetVerbose.
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppresses non-essential output).
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet reports whether quiet mode is enabled.
func IsQuiet() bool {
	return quietMode
}

// Logf writes to stderr when debug tracing is enabled.
func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Printf writes to stdout when debug tracing is enabled, regardless of quiet mode.
func Printf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Printf(format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled.
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled.
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
