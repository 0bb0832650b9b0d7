// Package corpus provides an immutable, indexable snapshot of log lines and
// an atomically swappable store around it. It is intentionally small and
// dependency-free, but engineered with production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Immutable, read-only snapshots after construction (safe for concurrent use)
//   - Atomic publication of a reloaded corpus via atomic.Pointer
//   - A monotonically increasing generation so cursor-holding callers can
//     detect that their positions were computed against an older sequence
//
// Lines are addressed by 0-based position. A reload produces a brand-new
// Snapshot with a higher generation; positions from one generation are
// meaningless against another, which is why the search layer drops all scan
// sessions when the generation changes.
package corpus

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// Snapshot is one immutable view of the corpus. All methods are safe for
// concurrent use; the line slice is never mutated after construction.
type Snapshot struct {
	lines []string
	gen   uint64
}

// Len returns the number of lines in the snapshot.
func (s *Snapshot) Len() int { return len(s.lines) }

// Line returns the line at 0-based position i. The caller must keep
// 0 <= i < Len().
func (s *Snapshot) Line(i int) string { return s.lines[i] }

// Generation identifies the load that produced this snapshot. It increases
// by one on every reload and never repeats within a process.
func (s *Snapshot) Generation() uint64 { return s.gen }

// LoadFunc produces the full ordered line sequence of the corpus.
// Implementations must return already-trimmed, non-empty lines.
type LoadFunc func() ([]string, error)

// FileLoader returns a LoadFunc that reads path as UTF-8 text, one line per
// entry, dropping blank lines and surrounding whitespace. A missing file
// yields an empty corpus rather than an error, matching the behavior of a
// freshly provisioned deployment with no log file yet.
func FileLoader(path string) LoadFunc {
	return func() ([]string, error) {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		defer f.Close()
		return readLines(f)
	}
}

// LinesLoader returns a LoadFunc serving a fixed line slice. Blank entries
// are dropped and the rest trimmed, same as FileLoader. Intended for tests
// and embedded corpora.
func LinesLoader(lines []string) LoadFunc {
	return func() ([]string, error) {
		out := make([]string, 0, len(lines))
		for _, ln := range lines {
			if t := strings.TrimSpace(ln); t != "" {
				out = append(out, t)
			}
		}
		return out, nil
	}
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	// Log lines can be long; the default 64KiB token cap is not enough.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" {
			out = append(out, t)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Store owns the current corpus snapshot and republishes it atomically on
// reload. Readers call Snapshot() and keep using the returned value for the
// whole scan; they observe either the old or the new corpus, never a mix.
type Store struct {
	load LoadFunc
	cur  atomic.Pointer[Snapshot]
	gen  atomic.Uint64
}

// NewStore creates a Store with an empty generation-zero snapshot. Call
// Reload to perform the initial load.
func NewStore(load LoadFunc) *Store {
	st := &Store{load: load}
	st.cur.Store(&Snapshot{})
	return st
}

// Snapshot returns the currently published corpus view.
func (st *Store) Snapshot() *Snapshot {
	return st.cur.Load()
}

// Reload invokes the loader and, on success, publishes the fresh snapshot
// with a bumped generation in a single pointer swap. On loader failure the
// previous snapshot stays published.
func (st *Store) Reload() (*Snapshot, error) {
	lines, err := st.load()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{lines: lines, gen: st.gen.Add(1)}
	st.cur.Store(snap)
	return snap, nil
}
