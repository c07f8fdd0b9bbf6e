package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nolan-k/warden/internal/workspace"
)

// ErrNotFound is returned by Load when no record exists for a name. It is a
// normal value, not a failure: callers treat it the way spec.md §4.1 does —
// "NotFound is a normal value, not an error."
var ErrNotFound = errors.New("statestore: record not found")

// Store loads, saves, and clears per-process records under a workspace.
// Concurrent writers are tolerated (last-writer-wins); the write-temp-then-
// rename discipline guarantees no reader ever observes a partial file.
type Store struct {
	ws *workspace.Layout
}

func New(ws *workspace.Layout) *Store { return &Store{ws: ws} }

// Load reads the record for name. Returns ErrNotFound (wrapped, check with
// errors.Is) if no record has ever been written for this name.
func (s *Store) Load(name string) (Record, error) {
	if !workspace.SafeName(name) {
		return Record{}, fmt.Errorf("statestore: invalid process name %q", name)
	}
	b, err := os.ReadFile(s.ws.StateFile(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("statestore: corrupt record for %s: %w", name, err)
	}
	return rec, nil
}

// Save atomically persists rec for name: write to a temp file in the same
// directory, then rename over the target. The rename is atomic on every OS
// warden supports, so a concurrent reader never observes a partial write.
func (s *Store) Save(name string, rec Record) error {
	if !workspace.SafeName(name) {
		return fmt.Errorf("statestore: invalid process name %q", name)
	}
	dir := s.ws.ProcessDir(name)
	if err := workspace.EnsureDir(dir); err != nil {
		return fmt.Errorf("statestore: create dir: %w", err)
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("statestore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(b)
	closeErr := tmp.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("statestore: write temp: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("statestore: close temp: %w", closeErr)
	}
	if err := os.Rename(tmpPath, s.ws.StateFile(name)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("statestore: rename: %w", err)
	}
	return nil
}

// ClearRunning loads the record (tolerating NotFound, starting from a zero
// Record), nulls pid/monitor_pid, and saves. A NotFound predecessor is
// treated as "nothing to clear, but persist the cleared shape anyway" so a
// subsequent Load never errors.
func (s *Store) ClearRunning(name string) error {
	rec, err := s.Load(name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	rec.ClearRunning()
	return s.Save(name, rec)
}

// Remove deletes the record and its directory tree entirely. This is the
// explicit-removal path spec.md §3.1 reserves for user action, distinct from
// the ordinary stop flow which only clears pid/monitor_pid.
func (s *Store) Remove(name string) error {
	if !workspace.SafeName(name) {
		return fmt.Errorf("statestore: invalid process name %q", name)
	}
	err := os.RemoveAll(s.ws.ProcessDir(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Names enumerates every process name with a record under the workspace, for
// list().
func (s *Store) Names() ([]string, error) {
	return s.ws.ListNames()
}
