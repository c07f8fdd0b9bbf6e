package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/nolan-k/warden/internal/config"
	"github.com/nolan-k/warden/internal/statestore"
	"github.com/nolan-k/warden/internal/workspace"
)

func TestArgvRendersContractInOrder(t *testing.T) {
	c := Context{
		ProcessName: "web",
		Program:     "/usr/bin/web",
		ConfigPath:  "/etc/warden.yaml",
		WorkingDir:  "/srv/web",
		Workspace:   "/srv/ws",
		Args:        []string{"--port", "8080"},
		Env:         map[string]string{"B": "2", "A": "1"},
		AutoRestart: true,
	}
	got := c.Argv("/usr/bin/warden")
	want := []string{
		"/usr/bin/warden", "monitor",
		"--process-name", "web",
		"--program", "/usr/bin/web",
		"--config", "/etc/warden.yaml",
		"--working-dir", "/srv/web",
		"--workspace", "/srv/ws",
		"--arg", "--port",
		"--arg", "8080",
		"--env", "A=1",
		"--env", "B=2",
		"--auto-restart",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("argv mismatch:\n got=%v\nwant=%v", got, want)
	}
}

func TestArgvOmitsAutoRestartWhenFalse(t *testing.T) {
	c := Context{ProcessName: "web", Program: "/bin/web", ConfigPath: "c", WorkingDir: "."}
	got := c.Argv("warden")
	for _, a := range got {
		if a == "--auto-restart" {
			t.Fatal("did not expect --auto-restart flag")
		}
	}
}

func TestSetMonitorPIDOnMissingRecord(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	store := statestore.New(ws)
	if err := SetMonitorPID(store, "web", 4242); err != nil {
		t.Fatalf("SetMonitorPID: %v", err)
	}
	rec, err := store.Load("web")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.MonitorPID != 4242 {
		t.Fatalf("expected monitor_pid=4242, got %d", rec.MonitorPID)
	}
}

func TestWaitForReadyTimesOutWhenMonitorNeverAppears(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	store := statestore.New(ws)
	tuning := config.Tuning{InitWaitSecs: 0}

	start := time.Now()
	err = WaitForReady(context.Background(), store, "web", tuning, "")
	if err != ErrMonitorNeverAppeared {
		t.Fatalf("expected ErrMonitorNeverAppeared, got %v", err)
	}
	if time.Since(start) > 6*time.Second {
		t.Fatalf("took too long to time out: %v", time.Since(start))
	}
}

func TestWaitForReadySucceedsOnceMonitorPIDIsAlive(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	store := statestore.New(ws)
	if err := SetMonitorPID(store, "web", os.Getpid()); err != nil {
		t.Fatalf("SetMonitorPID: %v", err)
	}
	tuning := config.Tuning{InitWaitSecs: 1}
	if err := WaitForReady(context.Background(), store, "web", tuning, ""); err != nil {
		t.Fatalf("WaitForReady: %v", err)
	}
}

func TestWaitForReadyRunsHealthCheckAfterMonitorAppears(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	store := statestore.New(ws)
	if err := SetMonitorPID(store, "web", os.Getpid()); err != nil {
		t.Fatalf("SetMonitorPID: %v", err)
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	tuning := config.Tuning{InitWaitSecs: 1, HealthCheckTimeoutSecs: 1, HealthCheckRetries: 3, RetryIntervalSecs: 0}
	if err := WaitForReady(context.Background(), store, "web", tuning, ts.URL); err != nil {
		t.Fatalf("WaitForReady: %v", err)
	}
}
