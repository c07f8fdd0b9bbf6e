package main

import (
	"testing"
	"time"
)

func TestMatchesFiltersName(t *testing.T) {
	sn := snapshot{Name: "web-1", Status: "running"}
	if !matchesFilters(sn, listFlags{NameFilter: "web"}) {
		t.Fatal("expected substring match")
	}
	if matchesFilters(sn, listFlags{NameFilter: "api"}) {
		t.Fatal("expected no match for unrelated substring")
	}
}

func TestMatchesFiltersStatus(t *testing.T) {
	sn := snapshot{Name: "web", Status: "stopped"}
	if matchesFilters(sn, listFlags{Status: "running"}) {
		t.Fatal("expected stopped process to fail a running filter")
	}
	if !matchesFilters(sn, listFlags{Status: "stopped"}) {
		t.Fatal("expected stopped process to match a stopped filter")
	}
}

func TestMatchesFiltersUptimeBounds(t *testing.T) {
	sn := snapshot{Name: "web", Status: "running", UptimeSec: 60}
	if !matchesFilters(sn, listFlags{MinUptime: 30 * time.Second, MaxUptime: 90 * time.Second}) {
		t.Fatal("expected uptime within bounds to match")
	}
	if matchesFilters(sn, listFlags{MinUptime: 90 * time.Second}) {
		t.Fatal("expected uptime below min to fail")
	}
	if matchesFilters(sn, listFlags{MaxUptime: 30 * time.Second}) {
		t.Fatal("expected uptime above max to fail")
	}
}

func TestMatchesFiltersCPUAndMem(t *testing.T) {
	sn := snapshot{Name: "web", Status: "running", CPUPercent: 12.5, MemBytes: 50 * 1024 * 1024}
	if !matchesFilters(sn, listFlags{MinCPU: 10, MaxCPU: 20, MinMemMB: 10, MaxMemMB: 100}) {
		t.Fatal("expected process within cpu/mem bounds to match")
	}
	if matchesFilters(sn, listFlags{MinCPU: 50}) {
		t.Fatal("expected low cpu to fail a high min-cpu filter")
	}
	if matchesFilters(sn, listFlags{MaxMemMB: 10}) {
		t.Fatal("expected high mem to fail a low max-mem filter")
	}
}

func TestFormatBytes(t *testing.T) {
	if got := formatBytes(0); got != "N/A" {
		t.Fatalf("expected N/A for zero bytes, got %q", got)
	}
	if got := formatBytes(5 * 1024 * 1024); got != "5.0MB" {
		t.Fatalf("expected 5.0MB, got %q", got)
	}
}
