package eventbus

import "time"

// EventType identifies a pipeline lifecycle event flowing through the bus.
type EventType string

const (
	// EventBatchCollected fires once per Collector cycle, after
	// normalization but before scoring and storage.
	EventBatchCollected EventType = "BatchCollected"

	// EventBatchStored fires after a batch has been durably written to the
	// hot tier.
	EventBatchStored EventType = "BatchStored"

	// EventCycleError fires when a Collector or hot-tier error aborts a
	// cycle.
	EventCycleError EventType = "CycleError"

	// EventConsolidationHotToWarm fires after a hot->warm consolidation
	// pass completes, successfully or not.
	EventConsolidationHotToWarm EventType = "ConsolidationHotToWarm"

	// EventConsolidationWarmToCold fires after a warm->cold consolidation
	// pass completes.
	EventConsolidationWarmToCold EventType = "ConsolidationWarmToCold"

	// EventVolumeLockDenied fires when the Runner fails to acquire a
	// volume's lock at startup.
	EventVolumeLockDenied EventType = "VolumeLockDenied"
)

// Event represents a single pipeline event.
type Event struct {
	Type        EventType  `json:"event_type"`
	Volume      string     `json:"volume,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	Count       int        `json:"count,omitempty"`
	Error       string     `json:"error,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Result aggregates handler responses for an event.
type Result struct {
	Warnings []string `json:"warnings,omitempty"`
}
