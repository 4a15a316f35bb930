package eventbus

import (
	"context"
	"testing"
)

type recordingHandler struct {
	id       string
	priority int
	types    []EventType
	calls    []EventType
	order    *[]string
}

func (h *recordingHandler) ID() string            { return h.id }
func (h *recordingHandler) Handles() []EventType  { return h.types }
func (h *recordingHandler) Priority() int         { return h.priority }
func (h *recordingHandler) Handle(_ context.Context, e *Event, _ *Result) error {
	h.calls = append(h.calls, e.Type)
	if h.order != nil {
		*h.order = append(*h.order, h.id)
	}
	return nil
}

func TestDispatchCallsOnlyMatchingHandlers(t *testing.T) {
	b := New()
	stored := &recordingHandler{id: "stored", types: []EventType{EventBatchStored}}
	errored := &recordingHandler{id: "errored", types: []EventType{EventCycleError}}
	b.Register(stored)
	b.Register(errored)

	if _, err := b.Dispatch(context.Background(), &Event{Type: EventBatchStored, Count: 3}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(stored.calls) != 1 {
		t.Fatalf("expected stored handler to be called once, got %d", len(stored.calls))
	}
	if len(errored.calls) != 0 {
		t.Fatalf("expected errored handler to be skipped, got %d calls", len(errored.calls))
	}
}

func TestDispatchOrdersHandlersByPriority(t *testing.T) {
	b := New()
	var order []string
	low := &recordingHandler{id: "low", priority: 1, types: []EventType{EventBatchCollected}, order: &order}
	high := &recordingHandler{id: "high", priority: 0, types: []EventType{EventBatchCollected}, order: &order}
	b.Register(low)
	b.Register(high)

	_, err := b.Dispatch(context.Background(), &Event{Type: EventBatchCollected})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(high.calls) != 1 || len(low.calls) != 1 {
		t.Fatalf("expected both handlers called once")
	}
	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected handlers in priority order [high low], got %v", order)
	}
}

func TestUnregisterRemovesHandler(t *testing.T) {
	b := New()
	h := &recordingHandler{id: "h1", types: []EventType{EventBatchStored}}
	b.Register(h)

	if !b.Unregister("h1") {
		t.Fatal("expected Unregister to report true for a known handler")
	}
	if b.Unregister("h1") {
		t.Fatal("expected second Unregister of the same ID to report false")
	}

	if _, err := b.Dispatch(context.Background(), &Event{Type: EventBatchStored}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(h.calls) != 0 {
		t.Fatalf("expected unregistered handler not to be called, got %d calls", len(h.calls))
	}
}

func TestDispatchNilEventReturnsError(t *testing.T) {
	b := New()
	if _, err := b.Dispatch(context.Background(), nil); err == nil {
		t.Fatal("expected error dispatching a nil event")
	}
}
