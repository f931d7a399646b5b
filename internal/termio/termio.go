// Package termio owns the local terminal's raw-mode state and size queries.
//
// Raw mode is process-wide, single-writer state: exactly one component may
// hold it at a time. EnterRaw fails while another guard is outstanding, and
// Restore is idempotent so it can sit safely in a defer on every exit path.
package termio

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

// ErrRawHeld is returned by EnterRaw while another guard holds raw mode.
var ErrRawHeld = errors.New("termio: raw mode already held")

var rawHeld atomic.Bool

// RawGuard represents ownership of the terminal's raw-mode flag.
// It is not shareable; the holder must call Restore when done.
type RawGuard struct {
	fd   int
	prev *term.State

	once sync.Once
}

// EnterRaw switches stdin into raw mode and returns the guard that owns it.
// Callers must defer Restore immediately.
func EnterRaw() (*RawGuard, error) {
	if !rawHeld.CompareAndSwap(false, true) {
		return nil, ErrRawHeld
	}
	fd := int(os.Stdin.Fd())
	prev, err := term.MakeRaw(fd)
	if err != nil {
		rawHeld.Store(false)
		return nil, err
	}
	return &RawGuard{fd: fd, prev: prev}, nil
}

// Restore returns the terminal to its previous mode and releases ownership.
// Safe to call more than once.
func (g *RawGuard) Restore() {
	g.once.Do(func() {
		_ = term.Restore(g.fd, g.prev)
		rawHeld.Store(false)
	})
}

// Size reports the local terminal dimensions, falling back to 80x24 when
// stdout is not a terminal (piped output, tests).
func Size() (cols, rows int) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return 80, 24
	}
	return cols, rows
}

// IsTerminal reports whether stdin is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
