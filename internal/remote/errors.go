package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned when a channel is requested on a session
	// that has been invalidated by a transport error or idle timeout.
	ErrSessionClosed = errors.New("remote: session closed")

	// ErrShellTerminated is returned when Forward is called after the remote
	// shell process has exited. The shell channel cannot be reused.
	ErrShellTerminated = errors.New("remote: shell terminated")

	// ErrShellActive is returned when Forward is called while another
	// forwarding loop is already running on the same shell.
	ErrShellActive = errors.New("remote: shell forwarding already active")
)

// TransportError reports a network or SSH handshake failure. The session that
// produced it is unusable and must be discarded, not retried in place.
type TransportError struct {
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote: transport %s: %v", e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports a rejected or unloadable credential. The user must supply
// a different identity; reconnecting with the same parameters will not help.
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote: auth as %q: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ChannelSetupError reports a failure while preparing a channel (open,
// PTY request, subsystem negotiation, exec/shell start). The channel attempt
// is abandoned; other channels on the same session remain usable.
type ChannelSetupError struct {
	Step string // "open", "pty", "subsystem", "exec", "shell", "pipe"
	Err  error
}

func (e *ChannelSetupError) Error() string {
	return fmt.Sprintf("remote: channel setup (%s): %v", e.Step, e.Err)
}

func (e *ChannelSetupError) Unwrap() error { return e.Err }

// RemoteOperationError reports a failed file or exec operation. It is local
// to the call that produced it and does not invalidate the channel.
type RemoteOperationError struct {
	Op   string
	Path string
	// Output and ExitCode are set for failed one-shot command executions.
	Output   string
	ExitCode int
	Err      error
}

func (e *RemoteOperationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("remote: %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("remote: %s: %v", e.Op, e.Err)
}

func (e *RemoteOperationError) Unwrap() error { return e.Err }

// LocalIOError reports a local filesystem failure during an upload or
// download.
type LocalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }
