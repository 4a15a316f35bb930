package jsonl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-io/actmem/internal/types"
)

func TestWriteThenReadActivitiesRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.jsonl")

	want := []*types.Activity{
		{ActivityID: "a1", ActivityType: types.ActivityCreate, FilePath: `C:\a.txt`, Timestamp: time.Now().UTC().Truncate(time.Second)},
		{ActivityID: "a2", ActivityType: types.ActivityModify, FilePath: `C:\b.txt`, Timestamp: time.Now().UTC().Truncate(time.Second)},
	}

	require.NoError(t, WriteActivitiesToFile(path, want))

	result, err := ReadActivitiesFromFile(path)
	require.NoError(t, err)
	require.Len(t, result.Activities, 2)
	assert.Zero(t, result.ErrorCount)
	assert.Equal(t, want[0].ActivityID, result.Activities[0].ActivityID)
	assert.Equal(t, want[1].FilePath, result.Activities[1].FilePath)
}

func TestReadActivitiesFromFileSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.jsonl")
	data := []byte(`{"activity_id":"a1","activity_type":"create"}` + "\n\n" + `{"activity_id":"a2","activity_type":"delete"}` + "\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	result, err := ReadActivitiesFromFile(path)
	require.NoError(t, err)
	require.Len(t, result.Activities, 2)
	assert.Zero(t, result.ErrorCount)
}

func TestReadActivitiesFromDataSkipsMalformedLinesAndCountsThem(t *testing.T) {
	data := []byte(`{"activity_id":"a1","activity_type":"create"}` + "\n" +
		`not valid json` + "\n" +
		`{"activity_id":"a2","activity_type":"delete"}` + "\n" +
		`{"activity_id": broken}` + "\n")

	result, err := ReadActivitiesFromData(data)
	require.NoError(t, err)
	require.Len(t, result.Activities, 2)
	assert.Equal(t, "a1", result.Activities[0].ActivityID)
	assert.Equal(t, "a2", result.Activities[1].ActivityID)
	assert.EqualValues(t, 2, result.ErrorCount)
}
