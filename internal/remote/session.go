// Package remote implements the SSH session engine: one authenticated
// transport per session, multiplexed into typed channels (SFTP subsystem,
// one-shot command execution, interactive PTY shell), plus the concurrent
// listing/transfer and shell-forwarding protocols built on them.
package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	cryptossh "golang.org/x/crypto/ssh"
)

const (
	dialTimeout        = 10 * time.Second
	defaultIdleTimeout = 300 * time.Second
)

// Params identifies a remote session. Immutable once the session is
// established; also used as the persistence key for saved session state.
type Params struct {
	Host string
	Port int
	User string
	// IdentityFile is the private key path. Empty means ~/.ssh/id_rsa.
	IdentityFile string
	// HostKeyCallback is the host identity policy. Nil means accept any host
	// key. Insecure; see README.
	HostKeyCallback cryptossh.HostKeyCallback
	// IdleTimeout invalidates the session after this much transport
	// inactivity. Zero means the 300s default.
	IdleTimeout time.Duration
}

// Addr returns the dialable host:port form of the params.
func (p Params) Addr() string {
	return net.JoinHostPort(p.Host, fmt.Sprintf("%d", p.Port))
}

func (p Params) identityPath() (string, error) {
	if p.IdentityFile != "" {
		return p.IdentityFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", "id_rsa"), nil
}

// Session owns one authenticated SSH connection. No channel may be opened
// before authentication succeeds (enforced by construction: Connect only
// returns after userauth). After a transport error or idle timeout the
// session is invalid and must be discarded; every channel request then fails
// with a TransportError wrapping ErrSessionClosed.
type Session struct {
	params Params
	client *cryptossh.Client
	conn   *activityConn

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// activityConn tracks the time of the last transport read or write so the
// idle watchdog can tell a quiet connection from a dead one.
type activityConn struct {
	net.Conn
	lastActive atomic.Int64 // unix nanoseconds
}

func (c *activityConn) touch() { c.lastActive.Store(time.Now().UnixNano()) }

func (c *activityConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.touch()
	}
	return n, err
}

func (c *activityConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.touch()
	}
	return n, err
}

// Connect dials the host, performs the SSH handshake and public-key
// authentication, and returns the live session. Key problems (missing,
// unparseable, rejected) surface as *AuthError; network and handshake
// problems as *TransportError.
func Connect(ctx context.Context, params Params) (*Session, error) {
	keyPath, err := params.identityPath()
	if err != nil {
		return nil, &AuthError{User: params.User, Err: err}
	}
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, &AuthError{User: params.User, Err: fmt.Errorf("load key %q: %w", keyPath, err)}
	}
	signer, err := cryptossh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, &AuthError{User: params.User, Err: fmt.Errorf("parse key %q: %w", keyPath, err)}
	}

	hostKeyCallback := params.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = cryptossh.InsecureIgnoreHostKey() //nolint:gosec // default trust policy; see README
	}

	cfg := &cryptossh.ClientConfig{
		User:            params.User,
		Auth:            []cryptossh.AuthMethod{cryptossh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}

	addr := params.Addr()
	dialer := &net.Dialer{Timeout: dialTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Addr: addr, Err: err}
	}

	conn := &activityConn{Conn: rawConn}
	conn.touch()

	sshConn, chans, reqs, err := cryptossh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = rawConn.Close()
		return nil, classifyHandshakeErr(addr, params.User, err)
	}

	s := &Session{
		params: params,
		client: cryptossh.NewClient(sshConn, chans, reqs),
		conn:   conn,
		done:   make(chan struct{}),
	}
	go s.watchIdle()
	return s, nil
}

// classifyHandshakeErr splits NewClientConn failures into the auth vs
// transport taxonomy. x/crypto/ssh reports userauth rejection only through
// the error text, so this matches on it.
func classifyHandshakeErr(addr, user string, err error) error {
	if strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "no supported methods remain") {
		return &AuthError{User: user, Err: err}
	}
	return &TransportError{Addr: addr, Err: err}
}

// watchIdle closes the transport after IdleTimeout of inactivity. Modeled as
// a per-session janitor: ticks at a quarter of the timeout, exits as soon as
// the session is closed for any other reason.
func (s *Session) watchIdle() {
	idle := s.params.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	tick := idle / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			last := time.Unix(0, s.conn.lastActive.Load())
			if time.Since(last) >= idle {
				s.invalidate()
				return
			}
		}
	}
}

// invalidate marks the session unusable and tears down the transport.
func (s *Session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	if s.client != nil {
		_ = s.client.Close()
	}
}

// Close releases the transport and all channels multiplexed on it.
func (s *Session) Close() error {
	s.invalidate()
	return nil
}

// Invalidated reports whether the session has been closed or timed out.
func (s *Session) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) alive() error {
	if s.Invalidated() {
		return &TransportError{Addr: s.params.Addr(), Err: ErrSessionClosed}
	}
	return nil
}

// Params returns the immutable connection parameters of the session.
func (s *Session) Params() Params { return s.params }

// OpenFileTransfer negotiates the SFTP subsystem on a fresh channel and
// returns the file-transfer handle. One file-transfer channel is opened per
// interactive session and reused for all listing and transfer calls.
func (s *Session) OpenFileTransfer() (*FileChannel, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, &ChannelSetupError{Step: "subsystem", Err: err}
	}
	return &FileChannel{fs: sftpFS{client}, sess: s}, nil
}

// ParseDestination parses "[user@]host[:port]" into Params. The port
// defaults to 22 and the user to $USER (falling back to root), matching
// ssh(1) conventions. IPv6 hosts take the bracketed "[addr]:port" form; a
// bare IPv6 literal without brackets is a host with the default port.
func ParseDestination(dest string) (Params, error) {
	var user string
	hostPort := dest
	if i := strings.Index(dest, "@"); i >= 0 {
		user = dest[:i]
		hostPort = dest[i+1:]
	} else {
		user = os.Getenv("USER")
		if user == "" {
			user = "root"
		}
	}

	host, port, err := splitHostPort(hostPort)
	if err != nil {
		return Params{}, err
	}
	if host == "" {
		return Params{}, fmt.Errorf("remote: empty host in destination %q", dest)
	}
	return Params{Host: host, Port: port, User: user}, nil
}

func splitHostPort(s string) (string, int, error) {
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return "", 0, fmt.Errorf("remote: unclosed bracket in %q", s)
		}
		host := s[1:end]
		rest := s[end+1:]
		if rest == "" {
			return host, 22, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, fmt.Errorf("remote: malformed destination %q", s)
		}
		port, err := parsePort(rest[1:])
		return host, port, err
	}
	// A single colon separates host from port; more than one means an
	// unbracketed IPv6 literal with no port.
	if i := strings.LastIndex(s, ":"); i >= 0 && strings.Count(s, ":") == 1 {
		port, err := parsePort(s[i+1:])
		return s[:i], port, err
	}
	return s, 22, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("remote: invalid port %q", s)
	}
	return port, nil
}
