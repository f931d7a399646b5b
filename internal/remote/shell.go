package remote

import (
	"bytes"
	"io"
	"sync"

	"github.com/skiff-ssh/skiff/internal/termio"
)

// DefaultDetachByte suspends the forwarding loop when it appears in local
// input. 0x13 is Ctrl+S. Detection is a plain byte scan, so pasted binary
// data containing 0x13 also detaches; known limitation.
const DefaultDetachByte byte = 0x13

// ShellState is the lifecycle phase of a ShellSession.
type ShellState int

const (
	// ShellSuspended: no forwarding loop running, channel idle but alive.
	ShellSuspended ShellState = iota
	// ShellForwarding: a loop is actively shuttling bytes.
	ShellForwarding
	// ShellTerminated: the remote shell exited; the channel is dead.
	// Absorbing state.
	ShellTerminated
)

// shellChannel is what the forwarder needs from the underlying SSH channel
// besides its pipes. *ssh.Session satisfies it.
type shellChannel interface {
	io.Closer
	WindowChange(height, width int) error
}

// enterRawFn switches the local terminal into raw mode and returns the
// restore function. Overridable in tests, which have no terminal.
var enterRawFn = func() (restore func(), err error) {
	g, err := termio.EnterRaw()
	if err != nil {
		return nil, err
	}
	return g.Restore, nil
}

// ShellSession is a retained interactive shell channel. The remote output is
// drained by a single goroutine for the life of the channel, so output
// produced while the session is suspended is buffered and delivered on the
// next Forward. The write half and the buffered read half together form the
// reassembled duplex handle between forwarding loops.
type ShellSession struct {
	stdin  io.WriteCloser
	out    chan []byte
	ch     shellChannel
	detach byte

	mu    sync.Mutex
	state ShellState
}

func newShellSession(ch shellChannel, stdin io.WriteCloser, stdout io.Reader) *ShellSession {
	s := &ShellSession{
		stdin:  stdin,
		out:    make(chan []byte, 64),
		ch:     ch,
		detach: DefaultDetachByte,
		state:  ShellSuspended,
	}
	go s.pumpRemote(stdout)
	return s
}

// SetDetachByte overrides the detach control byte. Must be called while
// suspended, before the first Forward.
func (s *ShellSession) SetDetachByte(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detach = b
}

// State returns the current lifecycle phase.
func (s *ShellSession) State() ShellState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the remote shell process is still running.
func (s *ShellSession) Active() bool { return s.State() != ShellTerminated }

func (s *ShellSession) setState(st ShellState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// pumpRemote moves remote shell output into the buffered chunk channel.
// Runs until the remote side reaches end-of-stream or errors; the closed
// channel is how the forwarding loop observes termination.
func (s *ShellSession) pumpRemote(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.out <- chunk
		}
		if err != nil {
			close(s.out)
			return
		}
	}
}

// Resize propagates new local terminal dimensions to the remote PTY.
func (s *ShellSession) Resize(cols, rows int) error {
	return s.ch.WindowChange(rows, cols)
}

// Close tears down the channel regardless of state.
func (s *ShellSession) Close() error {
	s.terminate()
	return nil
}

// Forward runs the bidirectional forwarding loop: remote output to output,
// chunks from input to the remote stdin. The local terminal is switched to
// raw mode for the duration and restored on every exit path.
//
// Returns (true, nil) when the detach byte suspended the loop — bytes ahead
// of the detach byte in its chunk are still flushed to the remote, and the
// channel stays alive for a later Forward. Returns (false, err) when the
// remote shell exited or the channel failed; the session is then terminated
// and cannot be forwarded again.
//
// At most one Forward may run at a time; concurrent calls fail with
// ErrShellActive, and calls after termination fail with ErrShellTerminated.
func (s *ShellSession) Forward(input <-chan []byte, output io.Writer) (detached bool, err error) {
	s.mu.Lock()
	switch s.state {
	case ShellTerminated:
		s.mu.Unlock()
		return false, ErrShellTerminated
	case ShellForwarding:
		s.mu.Unlock()
		return false, ErrShellActive
	}
	s.state = ShellForwarding
	s.mu.Unlock()

	restore, err := enterRawFn()
	if err != nil {
		s.setState(ShellSuspended)
		return false, err
	}
	defer restore()

	in := input
	for {
		select {
		case chunk, ok := <-s.out:
			if !ok {
				// Remote shell exited.
				s.terminate()
				return false, nil
			}
			if _, werr := output.Write(chunk); werr != nil {
				s.terminate()
				return false, werr
			}
		case chunk, ok := <-in:
			if !ok {
				// Local input closed; keep draining remote output.
				in = nil
				continue
			}
			if i := bytes.IndexByte(chunk, s.detach); i >= 0 {
				if i > 0 {
					if _, werr := s.stdin.Write(chunk[:i]); werr != nil {
						s.terminate()
						return false, werr
					}
				}
				s.setState(ShellSuspended)
				return true, nil
			}
			if _, werr := s.stdin.Write(chunk); werr != nil {
				s.terminate()
				return false, werr
			}
		}
	}
}

func (s *ShellSession) terminate() {
	s.setState(ShellTerminated)
	_ = s.stdin.Close()
	_ = s.ch.Close()
	// Unblock the remote pump if it is mid-send; closing the channel above
	// makes its next read fail and close s.out.
	go func() {
		for range s.out {
		}
	}()
}

// InputFeed adapts a blocking reader (the local terminal) into a channel of
// owned chunks so the forwarding loop can race it against remote output
// without polling. The channel is closed when the reader reaches EOF or
// errors.
type InputFeed struct {
	ch chan []byte
}

// NewInputFeed starts draining r in the background.
func NewInputFeed(r io.Reader) *InputFeed {
	f := &InputFeed{ch: make(chan []byte)}
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				f.ch <- chunk
			}
			if err != nil {
				close(f.ch)
				return
			}
		}
	}()
	return f
}

// Chunks is the receive side of the feed.
func (f *InputFeed) Chunks() <-chan []byte { return f.ch }
