package history

import (
	"testing"
	"time"
)

func TestEventCarriesRecord(t *testing.T) {
	e := Event{
		Type:       EventStart,
		OccurredAt: time.Now(),
		Record:     Record{Name: "web", PID: 123, Status: "running"},
	}
	if e.Record.Name != "web" || e.Record.PID != 123 {
		t.Fatalf("unexpected record: %+v", e.Record)
	}
}

func TestEventTypesAreDistinct(t *testing.T) {
	types := []EventType{EventStart, EventStop, EventRestart, EventHealthFail, EventFailed}
	seen := make(map[EventType]bool)
	for _, et := range types {
		if seen[et] {
			t.Fatalf("duplicate event type %q", et)
		}
		seen[et] = true
	}
}
