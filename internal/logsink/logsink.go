// Package logsink writes a supervised process's stdout/stderr to
// per-process-per-day append-only files, and bridges the pipe reader
// goroutines the supervisor spawns for each stream.
package logsink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nolan-k/warden/internal/workspace"
)

// Stream identifies which child pipe a writer is attached to.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

func (s Stream) filename() string {
	if s == Stderr {
		return "stderr.log"
	}
	return "stdout.log"
}

// Writer is an append-only destination for one process's one stream on one
// day. It is not safe for concurrent writers — the supervisor guarantees a
// single reader goroutine per stream, so a single writer follows.
type Writer struct {
	f *os.File
}

// Open lazily creates <workspace>/.state/processes/<name>/logs/<day>/ and
// opens (or appends to) the stream's log file within it.
func Open(ws *workspace.Layout, name string, day time.Time, stream Stream) (*Writer, error) {
	dir := ws.ProcessLogDir(name, day)
	if err := workspace.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("logsink: create dir: %w", err)
	}
	path := filepath.Join(dir, stream.filename())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("logsink: open %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

func (w *Writer) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *Writer) Close() error                { return w.f.Close() }

// Pump copies r to w line-by-line until EOF or error, then returns. It is
// meant to run as a background goroutine per child pipe; its exit does not
// imply the child has exited, only that the child closed that pipe end.
// Lines are copied byte-for-byte — invalid UTF-8 is not rejected or altered.
func Pump(r io.Reader, w io.Writer) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if _, werr := w.Write(line); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
