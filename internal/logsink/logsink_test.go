package logsink

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nolan-k/warden/internal/workspace"
)

func TestOpenCreatesDayDirAndAppends(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	day := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	w, err := Open(ws, "web", day, Stdout)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := Open(ws, "web", day, Stdout)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := w2.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := ws.ProcessLogDir("web", day) + "/stdout.log"
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := string(b); got != "first\nsecond\n" {
		t.Fatalf("expected appended content, got %q", got)
	}
}

func TestStreamsWriteSeparateFiles(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	day := time.Now()

	out, err := Open(ws, "web", day, Stdout)
	if err != nil {
		t.Fatalf("Open stdout: %v", err)
	}
	defer func() { _ = out.Close() }()
	errW, err := Open(ws, "web", day, Stderr)
	if err != nil {
		t.Fatalf("Open stderr: %v", err)
	}
	defer func() { _ = errW.Close() }()

	if _, err := out.Write([]byte("o\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("e\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}

	dir := ws.ProcessLogDir("web", day)
	stdout, err := os.ReadFile(dir + "/stdout.log")
	if err != nil {
		t.Fatalf("read stdout.log: %v", err)
	}
	stderr, err := os.ReadFile(dir + "/stderr.log")
	if err != nil {
		t.Fatalf("read stderr.log: %v", err)
	}
	if string(stdout) != "o\n" || string(stderr) != "e\n" {
		t.Fatalf("unexpected contents: stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestPumpCopiesUntilEOF(t *testing.T) {
	src := strings.NewReader("a\nb\nc")
	var buf bytes.Buffer
	if err := Pump(src, &buf); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if buf.String() != "a\nb\nc" {
		t.Fatalf("unexpected pump output: %q", buf.String())
	}
}

func TestPumpPreservesInvalidUTF8(t *testing.T) {
	raw := []byte{0xff, 0xfe, '\n'}
	src := bytes.NewReader(raw)
	var buf bytes.Buffer
	if err := Pump(src, &buf); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), raw) {
		t.Fatalf("expected bytes preserved as-is, got %v", buf.Bytes())
	}
}
