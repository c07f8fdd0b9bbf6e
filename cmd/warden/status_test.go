package main

import (
	"os/exec"
	"runtime"
	"testing"

	"github.com/nolan-k/warden/internal/statestore"
	"github.com/nolan-k/warden/internal/workspace"
)

func newTestStore(t *testing.T) *statestore.Store {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return statestore.New(ws)
}

func TestBuildSnapshotUnknownNameIsStopped(t *testing.T) {
	store := newTestStore(t)
	sn, err := buildSnapshot(store, "never-started")
	if err != nil {
		t.Fatalf("buildSnapshot: %v", err)
	}
	if sn.Status != "stopped" {
		t.Fatalf("expected stopped status for unknown name, got %q", sn.Status)
	}
	if sn.PID != 0 {
		t.Fatalf("expected zero pid, got %d", sn.PID)
	}
}

func TestBuildSnapshotDeadPIDIsStopped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/true")
	}
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Skipf("true not available: %v", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	store := newTestStore(t)
	rec := statestore.Record{PID: pid, RestartCount: 2}
	if err := store.Save("web", rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sn, err := buildSnapshot(store, "web")
	if err != nil {
		t.Fatalf("buildSnapshot: %v", err)
	}
	if sn.Status != "stopped" {
		t.Fatalf("expected a set-but-dead pid to report stopped, got %q", sn.Status)
	}
	if sn.RestartCount != 2 {
		t.Fatalf("expected restart_count to survive, got %d", sn.RestartCount)
	}
}
