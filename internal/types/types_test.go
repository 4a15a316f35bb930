package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActivityClone(t *testing.T) {
	size := int64(1024)
	a := &Activity{
		ActivityID:   "a-1",
		EntityID:     "e-1",
		Timestamp:    time.Now().UTC(),
		ActivityType: ActivityModify,
		FilePath:     `C:\Users\Alice\Documents\report.docx`,
		FileSize:     &size,
		Attributes:   map[string]string{"usn_reason": "DATA_EXTEND"},
	}

	clone := a.Clone()
	clone.Attributes["usn_reason"] = "DATA_OVERWRITE"
	*clone.FileSize = 2048

	assert.Equal(t, "DATA_EXTEND", a.Attributes["usn_reason"], "mutating the clone's map must not affect the original")
	assert.EqualValues(t, 1024, *a.FileSize, "mutating the clone's pointee must not affect the original")
	assert.Equal(t, a.ActivityID, clone.ActivityID)
}

func TestImportanceBucket(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.0, "0.0-0.1"},
		{0.05, "0.0-0.1"},
		{0.35, "0.3-0.4"},
		{0.99, "0.9-1.0"},
		{1.0, "0.9-1.0"},
		{-1.0, "0.0-0.1"},
		{2.0, "0.9-1.0"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ImportanceBucket(c.score))
	}
}
