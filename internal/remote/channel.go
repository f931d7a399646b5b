package remote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skiff-ssh/skiff/internal/termio"
	cryptossh "golang.org/x/crypto/ssh"
)

// termSizeFn reports the local terminal dimensions used to size remote PTY
// requests. Overridable in tests.
var termSizeFn = termio.Size

var ptyModes = cryptossh.TerminalModes{
	cryptossh.ECHO:          1,
	cryptossh.TTY_OP_ISPEED: 14400,
	cryptossh.TTY_OP_OSPEED: 14400,
}

// Exec opens a fresh channel, requests a PTY sized to the local terminal and
// runs command on it, consuming the channel. The combined output is returned
// once the remote delivers an exit status; a non-zero status becomes a
// *RemoteOperationError carrying the captured output and the code.
func (s *Session) Exec(command string) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return "", &ChannelSetupError{Step: "open", Err: err}
	}
	defer sess.Close()

	cols, rows := termSizeFn()
	if err := sess.RequestPty("xterm-256color", rows, cols, ptyModes); err != nil {
		return "", &ChannelSetupError{Step: "pty", Err: err}
	}

	out, err := sess.CombinedOutput(command)
	if err != nil {
		var exitErr *cryptossh.ExitError
		if errors.As(err, &exitErr) {
			return "", &RemoteOperationError{
				Op:       "exec",
				Output:   string(out),
				ExitCode: exitErr.ExitStatus(),
				Err:      fmt.Errorf("command exited with code %d", exitErr.ExitStatus()),
			}
		}
		if s.Invalidated() {
			return "", &TransportError{Addr: s.params.Addr(), Err: err}
		}
		return "", &ChannelSetupError{Step: "exec", Err: err}
	}
	return string(out), nil
}

// OpenShell opens a channel with a PTY sized to the local terminal and starts
// a login shell whose working directory is initialDir. Unlike Exec the
// channel is retained: the returned ShellSession is suspended and resumed
// across forwarding loops and lives until the remote shell exits or the
// session ends.
func (s *Session) OpenShell(initialDir string) (*ShellSession, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, &ChannelSetupError{Step: "open", Err: err}
	}

	cols, rows := termSizeFn()
	if err := sess.RequestPty("xterm-256color", rows, cols, ptyModes); err != nil {
		_ = sess.Close()
		return nil, &ChannelSetupError{Step: "pty", Err: err}
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return nil, &ChannelSetupError{Step: "pipe", Err: err}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, &ChannelSetupError{Step: "pipe", Err: err}
	}

	// cd before exec so the shell opens in the directory the browser is
	// showing. The path is quoted to survive spaces and quotes.
	cmd := fmt.Sprintf("cd %s && exec $SHELL -l", shellQuote(initialDir))
	if err := sess.Start(cmd); err != nil {
		_ = sess.Close()
		return nil, &ChannelSetupError{Step: "shell", Err: err}
	}

	return newShellSession(sess, stdin, stdout), nil
}

// shellQuote wraps s in single quotes, escaping any embedded single quote so
// the remote shell treats the whole value as one literal word.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
