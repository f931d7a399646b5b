// Package editor implements the built-in modal text editor used to edit
// remote files in place. It is a pure in-memory model: the only I/O it
// performs is whole-file read/write through the file-transfer channel.
package editor

import (
	"fmt"
	"strings"
)

// Mode is the editor's input mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeInsert
	ModeCommand
	ModeSearch
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeInsert:
		return "INSERT"
	case ModeCommand:
		return "COMMAND"
	case ModeSearch:
		return "SEARCH"
	}
	return "?"
}

// Action is what a completed command asks the host application to do.
type Action int

const (
	ActionNone Action = iota
	// ActionSave: write the buffer, stay in the editor.
	ActionSave
	// ActionSaveQuit: write the buffer, then close the editor.
	ActionSaveQuit
	// ActionQuit: close the editor without writing.
	ActionQuit
)

// FileStore is the slice of the file-transfer channel the editor needs.
type FileStore interface {
	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
}

// State is the full editor state for one open file.
type State struct {
	Buffer        []string
	CursorRow     int
	CursorCol     int
	Mode          Mode
	YankRegister  []string
	StatusMessage string
	CommandBuffer string
	ScrollOffset  int
	SearchPattern string
	Filename      string
	RemotePath    string
	Modified      bool
}

// New builds editor state from file content. An empty file becomes a single
// empty line so the cursor always has somewhere to sit.
func New(filename, remotePath, content string) *State {
	var buffer []string
	if content == "" {
		buffer = []string{""}
	} else {
		buffer = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}
	return &State{
		Buffer:        buffer,
		Mode:          ModeNormal,
		StatusMessage: "Normal mode",
		Filename:      filename,
		RemotePath:    remotePath,
	}
}

// Load reads remotePath through store and opens it in a fresh editor.
func Load(store FileStore, remotePath, filename string) (*State, error) {
	content, err := store.ReadFile(remotePath)
	if err != nil {
		return nil, err
	}
	return New(filename, remotePath, content), nil
}

// Save writes the buffer back through store and clears the dirty flag.
func (s *State) Save(store FileStore) error {
	if err := store.WriteFile(s.RemotePath, s.Content()); err != nil {
		return err
	}
	s.Modified = false
	s.StatusMessage = "Saved"
	return nil
}

// Content joins the buffer back into file content.
func (s *State) Content() string {
	return strings.Join(s.Buffer, "\n")
}

// CurrentLine returns the line under the cursor.
func (s *State) CurrentLine() string {
	if s.CursorRow < len(s.Buffer) {
		return s.Buffer[s.CursorRow]
	}
	return ""
}

func (s *State) lineLen(row int) int {
	if row < len(s.Buffer) {
		return len([]rune(s.Buffer[row]))
	}
	return 0
}

// clampCursor keeps the cursor on the buffer. Normal mode stops one short of
// the line end, insert mode may sit past the last rune.
func (s *State) clampCursor() {
	if s.CursorRow >= len(s.Buffer) {
		s.CursorRow = len(s.Buffer) - 1
	}
	maxCol := s.lineLen(s.CursorRow)
	if s.Mode != ModeInsert && maxCol > 0 {
		maxCol--
	}
	if s.CursorCol > maxCol {
		s.CursorCol = maxCol
	}
}

func (s *State) MoveUp() {
	if s.CursorRow > 0 {
		s.CursorRow--
		s.clampCursor()
	}
}

func (s *State) MoveDown() {
	if s.CursorRow < len(s.Buffer)-1 {
		s.CursorRow++
		s.clampCursor()
	}
}

func (s *State) MoveLeft() {
	if s.CursorCol > 0 {
		s.CursorCol--
	} else if s.CursorRow > 0 {
		s.CursorRow--
		s.CursorCol = s.lineLen(s.CursorRow)
		if s.Mode == ModeNormal && s.CursorCol > 0 {
			s.CursorCol--
		}
	}
}

func (s *State) MoveRight() {
	maxCol := s.lineLen(s.CursorRow)
	if s.Mode != ModeInsert && maxCol > 0 {
		maxCol--
	}
	if s.CursorCol < maxCol {
		s.CursorCol++
	} else if s.CursorRow < len(s.Buffer)-1 {
		s.CursorRow++
		s.CursorCol = 0
	}
}

func (s *State) MoveLineStart() { s.CursorCol = 0 }

func (s *State) MoveLineEnd() {
	n := s.lineLen(s.CursorRow)
	if s.Mode == ModeInsert {
		s.CursorCol = n
	} else if n > 0 {
		s.CursorCol = n - 1
	} else {
		s.CursorCol = 0
	}
}

func (s *State) MoveBufferStart() {
	s.CursorRow, s.CursorCol = 0, 0
}

func (s *State) MoveBufferEnd() {
	s.CursorRow = len(s.Buffer) - 1
	s.MoveLineEnd()
}

// DeleteLine removes the current line into the yank register. The last line
// is cleared rather than removed so the buffer never becomes empty.
func (s *State) DeleteLine() {
	if len(s.Buffer) == 1 {
		s.YankRegister = []string{s.Buffer[0]}
		s.Buffer[0] = ""
	} else {
		s.YankRegister = []string{s.Buffer[s.CursorRow]}
		s.Buffer = append(s.Buffer[:s.CursorRow], s.Buffer[s.CursorRow+1:]...)
		if s.CursorRow >= len(s.Buffer) {
			s.CursorRow = len(s.Buffer) - 1
		}
	}
	s.clampCursor()
	s.Modified = true
	s.StatusMessage = "Line deleted"
}

func (s *State) YankLine() {
	s.YankRegister = []string{s.Buffer[s.CursorRow]}
	s.StatusMessage = "Line yanked"
}

func (s *State) PasteBelow() {
	if len(s.YankRegister) == 0 {
		return
	}
	tail := make([]string, len(s.Buffer[s.CursorRow+1:]))
	copy(tail, s.Buffer[s.CursorRow+1:])
	s.Buffer = append(s.Buffer[:s.CursorRow+1], append(append([]string{}, s.YankRegister...), tail...)...)
	s.CursorRow++
	s.Modified = true
	s.StatusMessage = "Pasted"
}

func (s *State) InsertRune(r rune) {
	line := []rune(s.Buffer[s.CursorRow])
	if s.CursorCol >= len(line) {
		line = append(line, r)
	} else {
		line = append(line[:s.CursorCol], append([]rune{r}, line[s.CursorCol:]...)...)
	}
	s.Buffer[s.CursorRow] = string(line)
	s.CursorCol++
	s.Modified = true
}

// DeleteRune is backspace: removes the rune before the cursor, joining with
// the previous line at column zero.
func (s *State) DeleteRune() {
	if s.CursorCol > 0 {
		line := []rune(s.Buffer[s.CursorRow])
		s.Buffer[s.CursorRow] = string(append(line[:s.CursorCol-1], line[s.CursorCol:]...))
		s.CursorCol--
		s.Modified = true
	} else if s.CursorRow > 0 {
		current := s.Buffer[s.CursorRow]
		s.Buffer = append(s.Buffer[:s.CursorRow], s.Buffer[s.CursorRow+1:]...)
		s.CursorRow--
		s.CursorCol = s.lineLen(s.CursorRow)
		s.Buffer[s.CursorRow] += current
		s.Modified = true
	}
}

// DeleteAtCursor removes the rune under the cursor.
func (s *State) DeleteAtCursor() {
	line := []rune(s.Buffer[s.CursorRow])
	if len(line) == 0 || s.CursorCol >= len(line) {
		return
	}
	s.Buffer[s.CursorRow] = string(append(line[:s.CursorCol], line[s.CursorCol+1:]...))
	s.clampCursor()
	s.Modified = true
}

// InsertNewline splits the current line at the cursor.
func (s *State) InsertNewline() {
	line := []rune(s.Buffer[s.CursorRow])
	if s.CursorCol > len(line) {
		s.CursorCol = len(line)
	}
	head, tail := string(line[:s.CursorCol]), string(line[s.CursorCol:])
	s.Buffer[s.CursorRow] = head
	rest := make([]string, len(s.Buffer[s.CursorRow+1:]))
	copy(rest, s.Buffer[s.CursorRow+1:])
	s.Buffer = append(s.Buffer[:s.CursorRow+1], append([]string{tail}, rest...)...)
	s.CursorRow++
	s.CursorCol = 0
	s.Modified = true
}

// EnterInsert switches to insert mode. after places the cursor one past the
// current rune (vim's "a").
func (s *State) EnterInsert(after bool) {
	s.Mode = ModeInsert
	if after {
		s.MoveRight()
	}
	s.StatusMessage = "Insert mode"
}

// OpenLineBelow is vim's "o": new empty line under the cursor, insert mode.
func (s *State) OpenLineBelow() {
	s.Mode = ModeInsert
	s.MoveLineEnd()
	s.InsertNewline()
	s.StatusMessage = "Insert mode"
}

// ExitInsert returns to normal mode, pulling the cursor back onto the line.
func (s *State) ExitInsert() {
	s.Mode = ModeNormal
	if s.CursorCol > 0 && s.CursorCol >= s.lineLen(s.CursorRow) {
		s.CursorCol--
	}
	s.StatusMessage = "Normal mode"
}

// ExecuteCommand interprets a ":" command and reports the requested action.
// Quit with unsaved changes is refused unless forced.
func (s *State) ExecuteCommand(command string) Action {
	switch command {
	case "w", "write":
		s.StatusMessage = "Saving..."
		return ActionSave
	case "q", "quit":
		if s.Modified {
			s.StatusMessage = "No write since last change (use :q! to override)"
			return ActionNone
		}
		return ActionQuit
	case "q!":
		return ActionQuit
	case "wq", "x":
		s.StatusMessage = "Saving and quitting..."
		return ActionSaveQuit
	default:
		s.StatusMessage = fmt.Sprintf("Unknown command: %s", command)
		return ActionNone
	}
}

// Search remembers pattern and jumps to its first occurrence at or after the
// line below the cursor, wrapping around to the top. Reports whether a match
// was found.
func (s *State) Search(pattern string) bool {
	s.SearchPattern = pattern
	if pattern == "" {
		return false
	}
	return s.SearchNext()
}

// SearchNext advances to the next line containing the current pattern.
func (s *State) SearchNext() bool {
	if s.SearchPattern == "" {
		return false
	}
	n := len(s.Buffer)
	for off := 1; off <= n; off++ {
		row := (s.CursorRow + off) % n
		if col := strings.Index(s.Buffer[row], s.SearchPattern); col >= 0 {
			s.CursorRow = row
			s.CursorCol = len([]rune(s.Buffer[row][:col]))
			s.clampCursor()
			s.StatusMessage = fmt.Sprintf("/%s", s.SearchPattern)
			return true
		}
	}
	s.StatusMessage = fmt.Sprintf("Pattern not found: %s", s.SearchPattern)
	return false
}

// UpdateScroll keeps the cursor inside the viewport with a three-line margin.
func (s *State) UpdateScroll(viewportHeight int) {
	const margin = 3
	if viewportHeight <= 0 {
		return
	}
	if s.CursorRow < s.ScrollOffset+margin {
		s.ScrollOffset = s.CursorRow - margin
		if s.ScrollOffset < 0 {
			s.ScrollOffset = 0
		}
	}
	if s.CursorRow >= s.ScrollOffset+viewportHeight-margin {
		s.ScrollOffset = s.CursorRow + margin - viewportHeight + 1
	}
}
