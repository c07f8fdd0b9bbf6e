package statestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nolan-k/warden/internal/workspace"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return New(ws)
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("web")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rec := Record{PID: 123, MonitorPID: 456, Program: "/bin/true-serving", Port: 7777}
	if err := s.Save("web", rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("web")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.PID != rec.PID || got.MonitorPID != rec.MonitorPID || got.Port != rec.Port {
		t.Fatalf("round-trip mismatch: got %+v want %+v", got, rec)
	}
}

func TestSaveRejectsUnsafeName(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save("../escape", Record{}); err == nil {
		t.Fatalf("expected error for unsafe name")
	}
}

func TestClearRunningPreservesCounters(t *testing.T) {
	s := newTestStore(t)
	rec := Record{PID: 1, MonitorPID: 2, RestartCount: 5, LastStartEpochMS: 42}
	if err := s.Save("web", rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.ClearRunning("web"); err != nil {
		t.Fatalf("ClearRunning: %v", err)
	}
	got, err := s.Load("web")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.PID != 0 || got.MonitorPID != 0 {
		t.Fatalf("expected pid/monitor_pid cleared, got %+v", got)
	}
	if got.RestartCount != 5 || got.LastStartEpochMS != 42 {
		t.Fatalf("expected counters preserved, got %+v", got)
	}
}

func TestClearRunningOnMissingRecordIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	if err := s.ClearRunning("ghost"); err != nil {
		t.Fatalf("ClearRunning on missing record: %v", err)
	}
}

func TestUnknownFieldsDoNotFailLoad(t *testing.T) {
	s := newTestStore(t)
	path := s.ws.StateFile("web")
	if err := workspace.EnsureDir(filepath.Dir(path)); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	// Simulate a record written by a newer binary with an extra field.
	raw := []byte(`{"pid": 5, "program": "/bin/true", "totally_unknown_field": "x"}`)
	if err := os.WriteFile(path, raw, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rec, err := s.Load("web")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.PID != 5 {
		t.Fatalf("expected pid 5, got %d", rec.PID)
	}
}

func TestNamesEnumeratesSavedRecords(t *testing.T) {
	s := newTestStore(t)
	for _, n := range []string{"web", "worker"} {
		if err := s.Save(n, Record{Program: n}); err != nil {
			t.Fatalf("Save(%s): %v", n, err)
		}
	}
	names, err := s.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}

func TestRemoveDeletesRecord(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save("web", Record{PID: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Remove("web"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Load("web"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Remove, got %v", err)
	}
}
