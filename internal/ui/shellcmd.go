package ui

import (
	"errors"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// startShell opens the interactive shell channel on first use and hands the
// terminal to the forwarding loop. A suspended shell is resumed instead of
// opened again, so a detached job keeps running between visits.
func (m Model) startShell() (tea.Model, tea.Cmd) {
	if m.shell == nil || !m.shell.Active() {
		sh, err := m.sess.OpenShell(m.dir)
		if err != nil {
			if m.transportLost(err) {
				return m.fail(err)
			}
			m.errText = err.Error()
			return m, nil
		}
		if m.detachByte != 0 {
			sh.SetDetachByte(m.detachByte)
		}
		m.shell = sh
		m.log.Info().Str("dir", m.dir).Msg("shell opened")
	}
	m.status = ""
	runner := &shellRunner{shell: m.shell}
	return m, tea.Exec(runner, func(err error) tea.Msg {
		if err != nil {
			return shellDoneMsg{err: err}
		}
		return shellDoneMsg{detached: runner.detached}
	})
}

// shellRunner bridges the forwarding loop into the TUI's terminal-release
// protocol: the framework hands over stdin/stdout, Run blocks until the
// shell detaches or exits, then the framework repaints.
type shellRunner struct {
	shell interface {
		Forward(input <-chan []byte, output io.Writer) (bool, error)
	}
	stdin    io.Reader
	stdout   io.Writer
	detached bool
}

func (r *shellRunner) SetStdin(in io.Reader)   { r.stdin = in }
func (r *shellRunner) SetStdout(out io.Writer) { r.stdout = out }
func (r *shellRunner) SetStderr(io.Writer)     {}

// Run feeds local input to the forwarding loop until it returns. The input
// reader polls with a short deadline so it can stop promptly after a detach
// instead of swallowing the next keystroke meant for the browser.
func (r *shellRunner) Run() error {
	stop := make(chan struct{})
	input := make(chan []byte)
	go feedInput(r.stdin, input, stop)

	detached, err := r.shell.Forward(input, r.stdout)
	close(stop)
	r.detached = detached
	return err
}

func feedInput(src io.Reader, dst chan<- []byte, stop <-chan struct{}) {
	defer close(dst)
	f, deadlines := src.(*os.File)
	if deadlines {
		defer f.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 1024)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if deadlines {
			_ = f.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		}
		n, err := src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case dst <- chunk:
			case <-stop:
				return
			}
		}
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
	}
}
