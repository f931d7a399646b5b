package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/skiff-ssh/skiff/internal/editor"
)

func (m Model) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.ed == nil {
		m.view = viewBrowser
		return m, nil
	}
	switch m.ed.Mode {
	case editor.ModeInsert:
		return m.editorInsertKey(msg)
	case editor.ModeCommand, editor.ModeSearch:
		return m.editorLineKey(msg)
	default:
		return m.editorNormalKey(msg)
	}
}

func (m Model) editorNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Two-key sequences: dd deletes, yy yanks.
	if m.edPending != "" {
		pending := m.edPending
		m.edPending = ""
		if pending == "d" && key == "d" {
			m.ed.DeleteLine()
		}
		if pending == "y" && key == "y" {
			m.ed.YankLine()
		}
		return m, nil
	}

	switch key {
	case "ctrl+c":
		// Same guard as :q so edits are not lost to a reflex.
		if act := m.ed.ExecuteCommand("q"); act == editor.ActionQuit {
			return m.closeEditor()
		}
		return m, nil
	case "up", "k":
		m.ed.MoveUp()
	case "down", "j":
		m.ed.MoveDown()
	case "left", "h":
		m.ed.MoveLeft()
	case "right", "l":
		m.ed.MoveRight()
	case "0", "home":
		m.ed.MoveLineStart()
	case "$", "end":
		m.ed.MoveLineEnd()
	case "g":
		m.ed.MoveBufferStart()
	case "G":
		m.ed.MoveBufferEnd()
	case "i":
		m.ed.EnterInsert(false)
	case "a":
		m.ed.EnterInsert(true)
	case "o":
		m.ed.OpenLineBelow()
	case "x":
		m.ed.DeleteAtCursor()
	case "p":
		m.ed.PasteBelow()
	case "d", "y":
		m.edPending = key
	case "n":
		m.ed.SearchNext()
	case ":":
		m.ed.Mode = editor.ModeCommand
		m.ed.CommandBuffer = ""
	case "/":
		m.ed.Mode = editor.ModeSearch
		m.ed.CommandBuffer = ""
	}
	return m, nil
}

func (m Model) editorInsertKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.ed.ExitInsert()
	case tea.KeyEnter:
		m.ed.InsertNewline()
	case tea.KeyBackspace:
		m.ed.DeleteRune()
	case tea.KeyTab:
		m.ed.InsertRune('\t')
	case tea.KeySpace:
		m.ed.InsertRune(' ')
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			m.ed.InsertRune(r)
		}
	}
	return m, nil
}

// editorLineKey edits the ":" command line or "/" search line.
func (m Model) editorLineKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.ed.CommandBuffer = ""
		m.ed.Mode = editor.ModeNormal
		return m, nil
	case tea.KeyBackspace:
		if n := len(m.ed.CommandBuffer); n > 0 {
			m.ed.CommandBuffer = m.ed.CommandBuffer[:n-1]
		}
		return m, nil
	case tea.KeyEnter:
		line := m.ed.CommandBuffer
		wasSearch := m.ed.Mode == editor.ModeSearch
		m.ed.CommandBuffer = ""
		m.ed.Mode = editor.ModeNormal
		if wasSearch {
			m.ed.Search(line)
			return m, nil
		}
		return m.runEditorCommand(line)
	case tea.KeySpace:
		m.ed.CommandBuffer += " "
		return m, nil
	case tea.KeyRunes:
		m.ed.CommandBuffer += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

func (m Model) runEditorCommand(command string) (tea.Model, tea.Cmd) {
	switch m.ed.ExecuteCommand(command) {
	case editor.ActionSave:
		if err := m.ed.Save(m.files); err != nil {
			m.ed.StatusMessage = err.Error()
		}
		return m, nil
	case editor.ActionSaveQuit:
		if err := m.ed.Save(m.files); err != nil {
			m.ed.StatusMessage = err.Error()
			return m, nil
		}
		return m.closeEditor()
	case editor.ActionQuit:
		return m.closeEditor()
	}
	return m, nil
}

func (m Model) closeEditor() (tea.Model, tea.Cmd) {
	m.ed = nil
	m.edPending = ""
	m.view = viewBrowser
	return m, m.loadDir(m.dir)
}

func (m Model) viewEditorScreen() string {
	if m.ed == nil {
		return ""
	}
	var b strings.Builder

	dirty := ""
	if m.ed.Modified {
		dirty = " [+]"
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s%s", m.ed.Filename, dirty)))
	b.WriteString("\n")

	viewHeight := m.height - 3
	if viewHeight < 1 {
		viewHeight = 20
	}
	m.ed.UpdateScroll(viewHeight)

	for row := m.ed.ScrollOffset; row < len(m.ed.Buffer) && row < m.ed.ScrollOffset+viewHeight; row++ {
		line := m.ed.Buffer[row]
		if row == m.ed.CursorRow {
			b.WriteString(renderCursorLine(line, m.ed.CursorCol))
		} else {
			b.WriteString(fileStyle.Render(line))
		}
		b.WriteString("\n")
	}

	switch m.ed.Mode {
	case editor.ModeCommand:
		b.WriteString(":" + m.ed.CommandBuffer)
	case editor.ModeSearch:
		b.WriteString("/" + m.ed.CommandBuffer)
	default:
		b.WriteString(metaStyle.Render(fmt.Sprintf("-- %s --  ", m.ed.Mode)) + statusStyle.Render(m.ed.StatusMessage))
	}
	return b.String()
}

// renderCursorLine highlights the rune under the cursor.
func renderCursorLine(line string, col int) string {
	runes := []rune(line)
	if col >= len(runes) {
		return fileStyle.Render(line) + selectedStyle.Render(" ")
	}
	return fileStyle.Render(string(runes[:col])) +
		selectedStyle.Render(string(runes[col])) +
		fileStyle.Render(string(runes[col+1:]))
}
