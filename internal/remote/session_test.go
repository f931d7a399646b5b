package remote

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDestination(t *testing.T) {
	cases := []struct {
		in      string
		want    Params
		wantErr bool
	}{
		{in: "root@example.com:2222", want: Params{Host: "example.com", Port: 2222, User: "root"}},
		{in: "deploy@10.0.0.5", want: Params{Host: "10.0.0.5", Port: 22, User: "deploy"}},
		{in: "example.com:2022", want: Params{Host: "example.com", Port: 2022}},
		{in: "root@[::1]:2222", want: Params{Host: "::1", Port: 2222, User: "root"}},
		{in: "root@[2001:db8::1]", want: Params{Host: "2001:db8::1", Port: 22, User: "root"}},
		{in: "root@::1", want: Params{Host: "::1", Port: 22, User: "root"}},
		{in: "root@host:0", wantErr: true},
		{in: "root@host:notaport", wantErr: true},
		{in: "root@host:70000", wantErr: true},
		{in: "root@[::1", wantErr: true},
		{in: "root@[::1]22", wantErr: true},
		{in: "@:22", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDestination(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseDestination(%q) succeeded, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDestination(%q): %v", tc.in, err)
			}
			if got.Host != tc.want.Host || got.Port != tc.want.Port {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			if tc.want.User != "" && got.User != tc.want.User {
				t.Fatalf("user = %q, want %q", got.User, tc.want.User)
			}
		})
	}
}

func TestParseDestinationDefaultsUser(t *testing.T) {
	t.Setenv("USER", "operator")
	p, err := ParseDestination("files.internal")
	if err != nil {
		t.Fatal(err)
	}
	if p.User != "operator" {
		t.Fatalf("user = %q, want operator", p.User)
	}

	t.Setenv("USER", "")
	p, err = ParseDestination("files.internal")
	if err != nil {
		t.Fatal(err)
	}
	if p.User != "root" {
		t.Fatalf("user = %q, want root fallback", p.User)
	}
}

func TestParamsAddr(t *testing.T) {
	p := Params{Host: "example.com", Port: 2222}
	if got := p.Addr(); got != "example.com:2222" {
		t.Fatalf("Addr() = %q", got)
	}
}

func TestIdentityPathDefault(t *testing.T) {
	p := Params{}
	path, err := p.identityPath()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, filepath.Join(".ssh", "id_rsa")) {
		t.Fatalf("default identity = %q, want ~/.ssh/id_rsa", path)
	}

	p.IdentityFile = "/keys/deploy_ed25519"
	path, err = p.identityPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != "/keys/deploy_ed25519" {
		t.Fatalf("explicit identity = %q", path)
	}
}

func TestConnectMissingKeyIsAuthError(t *testing.T) {
	params := Params{
		Host:         "example.com",
		Port:         22,
		User:         "root",
		IdentityFile: filepath.Join(t.TempDir(), "missing_key"),
	}
	_, err := Connect(t.Context(), params)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %T (%v), want *AuthError", err, err)
	}
}

func TestConnectGarbageKeyIsAuthError(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyPath, []byte("not a pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Connect(t.Context(), Params{Host: "example.com", Port: 22, User: "root", IdentityFile: keyPath})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %T (%v), want *AuthError", err, err)
	}
}

func TestClassifyHandshakeErr(t *testing.T) {
	authCause := errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [publickey]")
	if _, ok := classifyHandshakeErr("h:22", "u", authCause).(*AuthError); !ok {
		t.Fatal("userauth rejection should map to AuthError")
	}
	netCause := errors.New("read tcp: connection reset by peer")
	if _, ok := classifyHandshakeErr("h:22", "u", netCause).(*TransportError); !ok {
		t.Fatal("network failure should map to TransportError")
	}
}

func TestInvalidatedSessionRejectsChannels(t *testing.T) {
	s := &Session{
		params: Params{Host: "example.com", Port: 22, User: "root"},
		done:   make(chan struct{}),
	}
	s.invalidate()

	if !s.Invalidated() {
		t.Fatal("session should report invalidated")
	}
	_, err := s.OpenFileTransfer()
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %T, want *TransportError", err)
	}
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatal("error should wrap ErrSessionClosed")
	}

	if _, err := s.Exec("true"); !errors.As(err, &tErr) {
		t.Fatalf("Exec error = %T, want *TransportError", err)
	}
	if _, err := s.OpenShell("/"); !errors.As(err, &tErr) {
		t.Fatalf("OpenShell error = %T, want *TransportError", err)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	s := &Session{params: Params{Host: "h", Port: 22}, done: make(chan struct{})}
	s.invalidate()
	s.invalidate() // must not close done twice
	_ = s.Close()
}

func TestActivityConnTracksTraffic(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := &activityConn{Conn: a}
	conn.touch()
	before := conn.lastActive.Load()

	time.Sleep(2 * time.Millisecond)
	go func() {
		buf := make([]byte, 4)
		_, _ = b.Read(buf)
	}()
	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if conn.lastActive.Load() <= before {
		t.Fatal("write did not refresh the activity timestamp")
	}
}

func TestIdleWatchdogInvalidatesQuietSession(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := &activityConn{Conn: a}
	conn.touch()
	s := &Session{
		params: Params{Host: "h", Port: 22, IdleTimeout: 20 * time.Millisecond},
		conn:   conn,
		done:   make(chan struct{}),
	}
	go s.watchIdle()

	deadline := time.After(2 * time.Second)
	for !s.Invalidated() {
		select {
		case <-deadline:
			t.Fatal("watchdog never invalidated the idle session")
		case <-time.After(time.Millisecond):
		}
	}
	_, err := s.OpenFileTransfer()
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

func TestIdleWatchdogSparedByActivity(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := &activityConn{Conn: a}
	conn.touch()
	s := &Session{
		params: Params{Host: "h", Port: 22, IdleTimeout: 20 * time.Millisecond},
		conn:   conn,
		done:   make(chan struct{}),
	}
	go s.watchIdle()

	// Traffic keeps refreshing the timestamp, so the timeout never fires.
	stop := time.After(80 * time.Millisecond)
busy:
	for {
		select {
		case <-stop:
			break busy
		case <-time.After(2 * time.Millisecond):
			conn.touch()
		}
	}
	if s.Invalidated() {
		t.Fatal("watchdog fired despite continuous activity")
	}
	_ = s.Close()
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"/tmp":              "'/tmp'",
		"/with space/dir":   "'/with space/dir'",
		"/it's here":        `'/it'\''s here'`,
		"/plain/path/clean": "'/plain/path/clean'",
	}
	for in, want := range cases {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFileChannelSurfacesTransportErrorWhenSessionDies(t *testing.T) {
	s := &Session{params: Params{Host: "h", Port: 22}, done: make(chan struct{})}
	fs := newFakeFS()
	fs.opErr["readdir"] = errors.New("connection lost")
	fc := &FileChannel{fs: fs, sess: s}

	// Channel-local failure while the session is alive.
	_, err := fc.ListDirectory("/")
	var opErr *RemoteOperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %T, want *RemoteOperationError", err)
	}

	// Same failure after the transport died surfaces as a TransportError.
	s.invalidate()
	_, err = fc.ListDirectory("/")
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("error = %T, want *TransportError", err)
	}
}
