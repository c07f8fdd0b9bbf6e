package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbe2xxPasses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	p := New(time.Second)
	ok, err := p.Probe(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !ok {
		t.Fatal("expected 204 to pass")
	}
}

func TestProbeNon2xxFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := New(time.Second)
	ok, err := p.Probe(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if ok {
		t.Fatal("expected 503 to fail")
	}
}

func TestProbeConnectionErrorFails(t *testing.T) {
	p := New(200 * time.Millisecond)
	ok, err := p.Probe(context.Background(), "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if ok {
		t.Fatal("expected failure result")
	}
}

func TestProbeTimeoutFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := New(20 * time.Millisecond)
	ok, err := p.Probe(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if ok {
		t.Fatal("expected failure result")
	}
}

func TestNewDefaultsTimeout(t *testing.T) {
	p := New(0)
	if p.client.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", p.client.Timeout)
	}
}
