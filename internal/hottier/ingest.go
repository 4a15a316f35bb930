package hottier

import (
	"context"

	"github.com/corvid-io/actmem/internal/jsonl"
)

// ProcessJSONLFile bulk-ingests activities from a line-delimited JSON file
// emitted by an offline collector (spec §4.4). It is a thin wrapper around
// StoreActivities so the two ingestion entry points share one code path and
// therefore one idempotence guarantee. The returned count is how many lines
// were malformed and skipped rather than stored.
func ProcessJSONLFile(ctx context.Context, store Store, path string) ([]string, int64, error) {
	result, err := jsonl.ReadActivitiesFromFile(path)
	if err != nil {
		return nil, 0, err
	}
	ids, err := store.StoreActivities(ctx, result.Activities)
	return ids, result.ErrorCount, err
}
