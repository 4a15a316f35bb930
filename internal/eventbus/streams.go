package eventbus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	// StreamActivityEvents is the JetStream stream carrying pipeline
	// lifecycle events for external observers (dashboards, alerting).
	StreamActivityEvents = "ACTIVITY_EVENTS"

	// SubjectActivityPrefix is the subject prefix for all pipeline events.
	SubjectActivityPrefix = "activity."
)

// SubjectForEvent returns the NATS subject for a given event type.
func SubjectForEvent(eventType EventType) string {
	return SubjectActivityPrefix + string(eventType)
}

// ConnectJetStream dials natsURL and returns a ready JetStream context with
// the ACTIVITY_EVENTS stream ensured. Callers attach the result to a Bus via
// SetJetStream.
func ConnectJetStream(natsURL string) (nats.JetStreamContext, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", natsURL, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("acquiring jetstream context: %w", err)
	}
	if err := EnsureStream(js); err != nil {
		nc.Close()
		return nil, err
	}
	return js, nil
}

// EnsureStream creates the ACTIVITY_EVENTS JetStream stream if it doesn't
// already exist. Called by ConnectJetStream, which cmd/activityd uses when
// --nats-url is set.
func EnsureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamActivityEvents); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamActivityEvents,
			Subjects: []string{SubjectActivityPrefix + ">"},
			Storage:  nats.FileStorage,
			// Retain last 10000 messages or 100MB, whichever comes first.
			MaxMsgs:  10000,
			MaxBytes: 100 << 20,
		})
		if err != nil {
			return fmt.Errorf("create %s stream: %w", StreamActivityEvents, err)
		}
	}
	return nil
}
