// Package ui is the terminal front end: a remote file browser with built-in
// editing, command execution and a detachable interactive shell, all served
// by one SSH session.
package ui

import (
	"errors"
	"path"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/skiff-ssh/skiff/internal/editor"
	"github.com/skiff-ssh/skiff/internal/remote"
	"github.com/skiff-ssh/skiff/internal/store"
)

// fileOps is the slice of the file-transfer channel the browser drives.
// Narrowed to an interface so model tests run without a server.
type fileOps interface {
	ListDirectory(dirPath string) ([]remote.FileEntry, error)
	Download(remotePath, localPath string) error
	Upload(localPath, remotePath string) error
	DeleteFile(p string) error
	DeleteDirectory(p string) error
	CreateDirectory(p string) error
	Rename(oldPath, newPath string) error
	ReadFile(p string) (string, error)
	WriteFile(p, content string) error
}

// shellOps is the slice of the session the shell toggle drives.
type shellOps interface {
	Exec(command string) (string, error)
	OpenShell(initialDir string) (*remote.ShellSession, error)
}

type view int

const (
	viewBrowser view = iota
	viewPrompt
	viewOutput
	viewEditor
)

type promptKind int

const (
	promptNone promptKind = iota
	promptMkdir
	promptRename
	promptDelete
	promptUpload
	promptExec
)

// Messages produced by background commands.
type (
	listingMsg struct {
		dir     string
		entries []remote.FileEntry
		err     error
	}
	actionMsg struct {
		status  string
		err     error
		refresh bool
	}
	execOutputMsg struct {
		command string
		output  string
		err     error
	}
	editorOpenMsg struct {
		name    string
		path    string
		content string
		err     error
	}
	shellDoneMsg struct {
		detached bool
		err      error
	}
)

// Model is the root application model for one connected session.
type Model struct {
	sess   shellOps
	files  fileOps
	st     *store.Store
	params remote.Params
	log    zerolog.Logger

	width  int
	height int

	view       view
	dir        string
	entries    []remote.FileEntry
	cursor     int
	status     string
	errText    string
	fatalErr   error
	quitting   bool
	output     string
	outputHead string

	input        textinput.Model
	prompt       promptKind
	promptTarget remote.FileEntry

	ed         *editor.State
	edPending  string
	shell      *remote.ShellSession
	detachByte byte
}

// New builds the model. startDir and startIndex come from the persisted
// session snapshot when one exists.
func New(sess *remote.Session, files *remote.FileChannel, st *store.Store, log zerolog.Logger, startDir string, startIndex int) Model {
	return newModel(sess, files, st, sess.Params(), log, startDir, startIndex)
}

func newModel(sess shellOps, files fileOps, st *store.Store, params remote.Params, log zerolog.Logger, startDir string, startIndex int) Model {
	input := textinput.New()
	input.CharLimit = 512
	if startDir == "" {
		startDir = "/"
	}
	return Model{
		sess:   sess,
		files:  files,
		st:     st,
		params: params,
		log:    log,
		view:   viewBrowser,
		dir:    startDir,
		cursor: startIndex,
		input:  input,
	}
}

// WithDetachByte overrides the shell detach control byte.
func (m Model) WithDetachByte(b byte) Model {
	m.detachByte = b
	return m
}

// FatalErr reports the error that forced the UI to exit, if any.
func (m Model) FatalErr() error { return m.fatalErr }

func (m Model) Init() tea.Cmd {
	return m.loadDir(m.dir)
}

func (m Model) loadDir(dir string) tea.Cmd {
	files := m.files
	return func() tea.Msg {
		entries, err := files.ListDirectory(dir)
		return listingMsg{dir: dir, entries: entries, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if m.shell != nil && m.shell.Active() {
			_ = m.shell.Resize(msg.Width, msg.Height)
		}
		return m, nil

	case listingMsg:
		return m.handleListing(msg)

	case actionMsg:
		if msg.err != nil {
			if m.transportLost(msg.err) {
				return m.fail(msg.err)
			}
			m.errText = msg.err.Error()
			m.status = ""
		} else {
			m.status = msg.status
			m.errText = ""
		}
		if msg.refresh {
			return m, m.loadDir(m.dir)
		}
		return m, nil

	case execOutputMsg:
		if msg.err != nil && m.transportLost(msg.err) {
			return m.fail(msg.err)
		}
		m.view = viewOutput
		m.outputHead = "$ " + msg.command
		if msg.err != nil {
			var opErr *remote.RemoteOperationError
			if errors.As(msg.err, &opErr) && opErr.Output != "" {
				m.output = opErr.Output + "\n" + errorStyle.Render(msg.err.Error())
			} else {
				m.output = errorStyle.Render(msg.err.Error())
			}
		} else {
			m.output = msg.output
		}
		return m, nil

	case editorOpenMsg:
		if msg.err != nil {
			if m.transportLost(msg.err) {
				return m.fail(msg.err)
			}
			m.errText = msg.err.Error()
			return m, nil
		}
		m.ed = editor.New(msg.name, msg.path, msg.content)
		m.view = viewEditor
		return m, nil

	case shellDoneMsg:
		return m.handleShellDone(msg)

	case tea.KeyMsg:
		switch m.view {
		case viewBrowser:
			return m.updateBrowser(msg)
		case viewPrompt:
			return m.updatePrompt(msg)
		case viewOutput:
			// Any key dismisses the output overlay.
			m.view = viewBrowser
			return m, nil
		case viewEditor:
			return m.updateEditor(msg)
		}
	}
	return m, nil
}

func (m Model) handleListing(msg listingMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if m.transportLost(msg.err) {
			return m.fail(msg.err)
		}
		m.errText = msg.err.Error()
		return m, nil
	}
	m.dir = msg.dir
	m.entries = msg.entries
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.errText = ""
	return m, nil
}

func (m Model) handleShellDone(msg shellDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if m.transportLost(msg.err) {
			return m.fail(msg.err)
		}
		m.errText = msg.err.Error()
		m.shell = nil
		return m, nil
	}
	if msg.detached {
		m.status = "Shell suspended (press s to resume)"
		return m, nil
	}
	// Remote shell exited.
	m.shell = nil
	m.status = "Shell exited"
	return m, m.loadDir(m.dir)
}

// transportLost reports whether err means the session itself is gone, in
// which case the UI exits rather than limping on.
func (m Model) transportLost(err error) bool {
	var tErr *remote.TransportError
	return errors.As(err, &tErr)
}

func (m Model) fail(err error) (tea.Model, tea.Cmd) {
	m.fatalErr = err
	m.quitting = true
	m.log.Error().Err(err).Msg("session lost")
	return m, tea.Quit
}

// persistState snapshots the browsing position for the next run.
func (m Model) persistState() {
	if m.st == nil {
		return
	}
	st := store.SessionState{CurrentDir: m.dir, SelectedIndex: m.cursor}
	if err := m.st.SaveSessionState(m.params.User, m.params.Host, m.params.Port, st); err != nil {
		m.log.Warn().Err(err).Msg("persist session state")
	}
}

func (m Model) selected() (remote.FileEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return remote.FileEntry{}, false
	}
	return m.entries[m.cursor], true
}

// entryPath resolves an entry to its absolute remote path. The synthesized
// parent entry carries a relative path.
func (m Model) entryPath(e remote.FileEntry) string {
	if e.Name == ".." {
		return remote.ParentPath(m.dir)
	}
	if path.IsAbs(e.Path) {
		return e.Path
	}
	return path.Join(m.dir, e.Name)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	switch m.view {
	case viewPrompt:
		return m.viewBrowserScreen(true)
	case viewOutput:
		return m.viewOutputScreen()
	case viewEditor:
		return m.viewEditorScreen()
	default:
		return m.viewBrowserScreen(false)
	}
}
