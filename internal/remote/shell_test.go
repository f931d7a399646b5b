package remote

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeShellChannel records Close and WindowChange calls.
type fakeShellChannel struct {
	mu     sync.Mutex
	closed bool
	rows   int
	cols   int
}

func (c *fakeShellChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeShellChannel) WindowChange(h, w int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows, c.cols = h, w
	return nil
}

func (c *fakeShellChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// syncWriter collects forwarded output safely across goroutines.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// shellHarness wires a ShellSession to in-memory pipes.
type shellHarness struct {
	shell     *ShellSession
	ch        *fakeShellChannel
	remoteOut *io.PipeWriter // test writes = remote shell output
	stdinRead *io.PipeReader // test reads = bytes forwarded to the remote
}

func newShellHarness(t *testing.T) *shellHarness {
	t.Helper()
	stubRawMode(t)

	outR, outW := io.Pipe()
	inR, inW := io.Pipe()
	ch := &fakeShellChannel{}
	return &shellHarness{
		shell:     newShellSession(ch, inW, outR),
		ch:        ch,
		remoteOut: outW,
		stdinRead: inR,
	}
}

// stubRawMode replaces the raw-mode hook for the duration of a test; tests
// run without a terminal.
func stubRawMode(t *testing.T) {
	t.Helper()
	orig := enterRawFn
	enterRawFn = func() (func(), error) { return func() {}, nil }
	t.Cleanup(func() { enterRawFn = orig })
}

// collectStdin drains the remote-stdin pipe into a channel of strings.
func (h *shellHarness) collectStdin() <-chan string {
	out := make(chan string, 16)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := h.stdinRead.Read(buf)
			if n > 0 {
				out <- string(buf[:n])
			}
			if err != nil {
				close(out)
				return
			}
		}
	}()
	return out
}

type forwardResult struct {
	detached bool
	err      error
}

func (h *shellHarness) forwardAsync(input <-chan []byte, output io.Writer) <-chan forwardResult {
	done := make(chan forwardResult, 1)
	go func() {
		detached, err := h.shell.Forward(input, output)
		done <- forwardResult{detached, err}
	}()
	return done
}

func waitOutput(t *testing.T, w *syncWriter, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if strings.Contains(w.String(), want) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("output %q never contained %q", w.String(), want)
		case <-time.After(time.Millisecond):
		}
	}
}

func recvString(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded stdin")
		return ""
	}
}

func recvResult(t *testing.T, ch <-chan forwardResult) forwardResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("forwarding loop did not exit")
		return forwardResult{}
	}
}

func TestForwardShuttlesBothDirections(t *testing.T) {
	h := newShellHarness(t)
	stdin := h.collectStdin()
	out := &syncWriter{}
	input := make(chan []byte)
	done := h.forwardAsync(input, out)

	go h.remoteOut.Write([]byte("login banner$ "))
	waitOutput(t, out, "login banner$ ")

	input <- []byte("ls -l\r")
	if got := recvString(t, stdin); got != "ls -l\r" {
		t.Fatalf("forwarded %q, want %q", got, "ls -l\r")
	}

	input <- []byte{DefaultDetachByte}
	r := recvResult(t, done)
	if !r.detached || r.err != nil {
		t.Fatalf("Forward = (%v, %v), want detach", r.detached, r.err)
	}
}

func TestDetachSuspendsWithoutClosingChannel(t *testing.T) {
	h := newShellHarness(t)
	out := &syncWriter{}
	input := make(chan []byte)
	done := h.forwardAsync(input, out)

	input <- []byte{DefaultDetachByte}
	r := recvResult(t, done)
	if !r.detached || r.err != nil {
		t.Fatalf("Forward = (%v, %v), want (true, nil)", r.detached, r.err)
	}
	if h.shell.State() != ShellSuspended {
		t.Fatalf("state = %v, want ShellSuspended", h.shell.State())
	}
	if h.ch.isClosed() {
		t.Fatal("detach must not close the underlying channel")
	}
	if !h.shell.Active() {
		t.Fatal("shell should remain active after detach")
	}
}

func TestDetachFlushesPrecedingBytes(t *testing.T) {
	h := newShellHarness(t)
	stdin := h.collectStdin()
	out := &syncWriter{}
	input := make(chan []byte)
	done := h.forwardAsync(input, out)

	// Bytes queued ahead of the detach byte still reach the remote side.
	input <- append([]byte("pwd\r"), DefaultDetachByte, 'x', 'y')
	if got := recvString(t, stdin); got != "pwd\r" {
		t.Fatalf("flushed %q, want %q", got, "pwd\r")
	}
	r := recvResult(t, done)
	if !r.detached {
		t.Fatal("expected detach")
	}
}

func TestResumeDeliversOutputProducedWhileSuspended(t *testing.T) {
	h := newShellHarness(t)
	out := &syncWriter{}
	input := make(chan []byte)
	done := h.forwardAsync(input, out)

	input <- []byte{DefaultDetachByte}
	recvResult(t, done)

	// The remote shell keeps running while suspended.
	go h.remoteOut.Write([]byte("finished: ok\n"))
	time.Sleep(10 * time.Millisecond)

	resumed := &syncWriter{}
	input2 := make(chan []byte)
	done2 := h.forwardAsync(input2, resumed)
	waitOutput(t, resumed, "finished: ok")

	input2 <- []byte{DefaultDetachByte}
	recvResult(t, done2)
}

func TestRemoteExitTerminates(t *testing.T) {
	h := newShellHarness(t)
	out := &syncWriter{}
	input := make(chan []byte)
	done := h.forwardAsync(input, out)

	go h.remoteOut.Write([]byte("logout\n"))
	waitOutput(t, out, "logout")
	h.remoteOut.Close() // remote end-of-stream

	r := recvResult(t, done)
	if r.detached || r.err != nil {
		t.Fatalf("Forward = (%v, %v), want clean terminate", r.detached, r.err)
	}
	if h.shell.State() != ShellTerminated {
		t.Fatalf("state = %v, want ShellTerminated", h.shell.State())
	}
	if h.shell.Active() {
		t.Fatal("Active must be false after remote exit")
	}
	if !h.ch.isClosed() {
		t.Fatal("termination must close the underlying channel")
	}
}

func TestResumeAfterTerminationFails(t *testing.T) {
	h := newShellHarness(t)
	input := make(chan []byte)
	done := h.forwardAsync(input, &syncWriter{})
	h.remoteOut.Close()
	recvResult(t, done)

	_, err := h.shell.Forward(make(chan []byte), &syncWriter{})
	if !errors.Is(err, ErrShellTerminated) {
		t.Fatalf("err = %v, want ErrShellTerminated", err)
	}
}

func TestConcurrentForwardRejected(t *testing.T) {
	h := newShellHarness(t)
	input := make(chan []byte)
	done := h.forwardAsync(input, &syncWriter{})

	deadline := time.After(2 * time.Second)
	for h.shell.State() != ShellForwarding {
		select {
		case <-deadline:
			t.Fatal("first loop never started")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := h.shell.Forward(make(chan []byte), &syncWriter{})
	if !errors.Is(err, ErrShellActive) {
		t.Fatalf("err = %v, want ErrShellActive", err)
	}

	input <- []byte{DefaultDetachByte}
	recvResult(t, done)
}

func TestForwardClosedInputKeepsDrainingRemote(t *testing.T) {
	h := newShellHarness(t)
	out := &syncWriter{}
	input := make(chan []byte)
	close(input) // local stdin EOF

	done := h.forwardAsync(input, out)
	go h.remoteOut.Write([]byte("still alive\n"))
	waitOutput(t, out, "still alive")

	h.remoteOut.Close()
	r := recvResult(t, done)
	if r.err != nil {
		t.Fatalf("err = %v", r.err)
	}
}

func TestResizePropagates(t *testing.T) {
	h := newShellHarness(t)
	if err := h.shell.Resize(120, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if h.ch.rows != 40 || h.ch.cols != 120 {
		t.Fatalf("window = %dx%d, want 120x40", h.ch.cols, h.ch.rows)
	}
}

func TestInputFeedDeliversChunksAndCloses(t *testing.T) {
	feed := NewInputFeed(strings.NewReader("abc"))
	var got []byte
	for chunk := range feed.Chunks() {
		got = append(got, chunk...)
	}
	if string(got) != "abc" {
		t.Fatalf("feed delivered %q, want %q", got, "abc")
	}
}
