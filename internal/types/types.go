// Package types defines the data model shared across the activity memory
// pipeline: Activity, TierRecord, Entity, and Cursor.
package types

import "time"

// ActivityType classifies a normalized change event.
type ActivityType string

// Activity type constants, fixed by the journal-reason mapping table.
const (
	ActivityCreate         ActivityType = "create"
	ActivityDelete         ActivityType = "delete"
	ActivityRename         ActivityType = "rename"
	ActivityModify         ActivityType = "modify"
	ActivitySecurityChange ActivityType = "security_change"
	ActivityRead           ActivityType = "read"
	ActivityClose          ActivityType = "close"
	ActivityInfoChange     ActivityType = "info_change"
	ActivityUnknown        ActivityType = "unknown"
)

// Tier identifies which memory tier a record currently belongs to.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Activity is one normalized change event for one file at one instant.
type Activity struct {
	ActivityID      string            `json:"activity_id"`
	EntityID        string            `json:"entity_id"`
	Timestamp       time.Time         `json:"timestamp"`
	ActivityType    ActivityType      `json:"activity_type"`
	FilePath        string            `json:"file_path"`
	FileName        string            `json:"file_name"`
	IsDirectory     bool              `json:"is_directory"`
	FileSize        *int64            `json:"file_size,omitempty"`
	Volume          string            `json:"volume"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	ImportanceScore float64           `json:"importance_score"`
	TierMembership  Tier              `json:"tier_membership"`
	AccessCount     int64             `json:"access_count"`
	SearchHits      int64             `json:"search_hits"`
}

// Clone returns a deep copy so callers cannot mutate shared state through an
// aliased map or pointer.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	out := *a
	if a.Attributes != nil {
		out.Attributes = make(map[string]string, len(a.Attributes))
		for k, v := range a.Attributes {
			out.Attributes[k] = v
		}
	}
	if a.FileSize != nil {
		sz := *a.FileSize
		out.FileSize = &sz
	}
	return &out
}

// TierRecord is what the database actually stores: an Activity plus
// bookkeeping fields that never appear on the wire format emitted to
// callers.
type TierRecord struct {
	Activity
	Version        int64      `json:"version"`
	InsertedAt     time.Time  `json:"inserted_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	BackReferences []string   `json:"back_references,omitempty"`
}

// PriorPath records a path an Entity occupied before a rename, and the
// window of time for which it was live.
type PriorPath struct {
	Path      string    `json:"path"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
}

// Entity is the logical file identity preserved across renames and moves,
// keyed by (volume, file reference number).
type Entity struct {
	EntityID            string      `json:"entity_id"`
	Path                string      `json:"path"`
	PriorPaths          []PriorPath `json:"prior_paths,omitempty"`
	FileReferenceNumber uint64      `json:"file_reference_number"`
	Volume              string      `json:"volume"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Cursor is the persisted position within one volume's change journal.
type Cursor struct {
	VolumeID string `json:"volume_id"`
	JournalID uint64 `json:"journal_id"`
	NextUSN  uint64 `json:"next_usn"`
}

// Statistics summarizes the hot-tier collection for get_statistics.
type Statistics struct {
	TotalCount    int64            `json:"total_count"`
	ByType        map[string]int64 `json:"by_type"`
	ByImportance  map[string]int64 `json:"by_importance"`
	ByTime        map[string]int64 `json:"by_time"`
	ErrorCount    int64            `json:"error_count"`
	NotFoundCount int64            `json:"not_found_count"`
}

// ImportanceBucket returns the bucket label ("0.0-0.1", ..., "0.9-1.0") an
// importance score falls into for get_statistics.by_importance.
func ImportanceBucket(score float64) string {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	lo := int(score * 10)
	if lo >= 10 {
		lo = 9
	}
	hi := lo + 1
	labels := [...]string{"0.0", "0.1", "0.2", "0.3", "0.4", "0.5", "0.6", "0.7", "0.8", "0.9", "1.0"}
	return labels[lo] + "-" + labels[hi]
}
