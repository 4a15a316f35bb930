// Package jsonl provides bulk read/write helpers for the line-delimited
// JSON files exchanged with offline collectors (spec §4.4
// process_jsonl_file).
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/corvid-io/actmem/internal/types"
)

// maxLineBytes bounds a single JSONL record; offline collectors can emit
// large attribute blobs so the default bufio.Scanner limit is too small.
const maxLineBytes = 64 * 1024 * 1024

// Result holds the activities parsed from a JSONL source plus the number of
// lines skipped for being malformed (spec §7 "Data" error class: skip the
// record, count it, keep going).
type Result struct {
	Activities []*types.Activity
	ErrorCount int64
}

// ReadActivitiesFromFile reads activities from a JSONL file, one Activity
// per line. Blank lines are skipped.
func ReadActivitiesFromFile(path string) (Result, error) {
	// #nosec G304 - controlled path from caller
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening jsonl file: %w", err)
	}
	defer file.Close()

	return scanActivities(file)
}

// ReadActivitiesFromData reads activities from in-memory JSONL data.
func ReadActivitiesFromData(data []byte) (Result, error) {
	return scanActivities(bytes.NewReader(data))
}

func scanActivities(r io.Reader) (Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineBytes)

	var result Result
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var a types.Activity
		if err := json.Unmarshal(line, &a); err != nil {
			result.ErrorCount++
			continue
		}
		result.Activities = append(result.Activities, &a)
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("scanning jsonl: %w", err)
	}
	return result, nil
}

// WriteActivitiesToFile writes activities as JSONL, one per line, truncating
// any existing file at path. Used by tests and by the file-backup path
// (spec §4.7 backup_to_files).
func WriteActivitiesToFile(path string, activities []*types.Activity) error {
	// #nosec G304 - controlled path from caller
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating jsonl file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, a := range activities {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshaling activity %s: %w", a.ActivityID, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing activity %s: %w", a.ActivityID, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}
