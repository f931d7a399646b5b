// Package store persists user-facing state between runs: the named
// connection book and the per-destination session snapshot (last directory
// and selection) used to resume browsing where the user left off.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	appDirName      = "skiff"
	connectionsFile = "connections.json"
)

// SavedConnection is one entry in the connection book.
type SavedConnection struct {
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"username"`
	IdentityFile string `json:"key_path,omitempty"`
}

// SessionState is the resumable browsing position for one destination.
type SessionState struct {
	CurrentDir    string `json:"current_dir"`
	SelectedIndex int    `json:"selected_index"`
}

// Store reads and writes JSON state files under the config directory.
type Store struct {
	dir string
}

// Open resolves the config directory, creating it if needed. SKIFF_CONFIG_DIR
// overrides the default ~/.config/skiff.
func Open() (*Store, error) {
	dir := os.Getenv("SKIFF_CONFIG_DIR")
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("store: resolve config directory: %w", err)
		}
		dir = filepath.Join(base, appDirName)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create config directory %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory state files live in.
func (s *Store) Dir() string { return s.dir }

// Connections loads the connection book. A missing file is an empty book.
func (s *Store) Connections() ([]SavedConnection, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, connectionsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read connections: %w", err)
	}
	var conns []SavedConnection
	if err := json.Unmarshal(data, &conns); err != nil {
		return nil, fmt.Errorf("store: parse connections: %w", err)
	}
	return conns, nil
}

// SaveConnection adds conn to the book, replacing any entry with the same
// name.
func (s *Store) SaveConnection(conn SavedConnection) error {
	if conn.Name == "" {
		return fmt.Errorf("store: connection name must not be empty")
	}
	conns, err := s.Connections()
	if err != nil {
		return err
	}
	replaced := false
	for i := range conns {
		if conns[i].Name == conn.Name {
			conns[i] = conn
			replaced = true
			break
		}
	}
	if !replaced {
		conns = append(conns, conn)
	}
	return s.writeConnections(conns)
}

// RemoveConnection deletes the named entry. Removing an unknown name is an
// error so typos do not silently succeed.
func (s *Store) RemoveConnection(name string) error {
	conns, err := s.Connections()
	if err != nil {
		return err
	}
	kept := conns[:0]
	for _, c := range conns {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(conns) {
		return fmt.Errorf("store: no saved connection named %q", name)
	}
	return s.writeConnections(kept)
}

// LookupConnection finds a saved connection by name.
func (s *Store) LookupConnection(name string) (SavedConnection, error) {
	conns, err := s.Connections()
	if err != nil {
		return SavedConnection{}, err
	}
	for _, c := range conns {
		if c.Name == name {
			return c, nil
		}
	}
	return SavedConnection{}, fmt.Errorf("store: no saved connection named %q", name)
}

func (s *Store) writeConnections(conns []SavedConnection) error {
	return s.writeJSON(connectionsFile, conns)
}

// sessionFile keys the snapshot by destination so distinct hosts, users and
// ports never share state.
func sessionFile(user, host string, port int) string {
	return fmt.Sprintf("session_%s@%s_%d.json", user, host, port)
}

// SessionState loads the snapshot for a destination. A missing file yields
// ok=false rather than an error.
func (s *Store) SessionState(user, host string, port int) (SessionState, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sessionFile(user, host, port)))
	if os.IsNotExist(err) {
		return SessionState{}, false, nil
	}
	if err != nil {
		return SessionState{}, false, fmt.Errorf("store: read session state: %w", err)
	}
	var st SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return SessionState{}, false, fmt.Errorf("store: parse session state: %w", err)
	}
	return st, true, nil
}

// SaveSessionState persists the snapshot for a destination.
func (s *Store) SaveSessionState(user, host string, port int, st SessionState) error {
	return s.writeJSON(sessionFile(user, host, port), st)
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("store: replace %s: %w", name, err)
	}
	return nil
}
