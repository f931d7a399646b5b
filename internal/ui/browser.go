package ui

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skiff-ssh/skiff/internal/remote"
)

func (m Model) updateBrowser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.persistState()
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil

	case "g", "home":
		m.cursor = 0
		return m, nil

	case "G", "end":
		if len(m.entries) > 0 {
			m.cursor = len(m.entries) - 1
		}
		return m, nil

	case "enter", "l", "right":
		entry, ok := m.selected()
		if !ok {
			return m, nil
		}
		if entry.IsDir {
			m.cursor = 0
			return m, m.loadDir(m.entryPath(entry))
		}
		m.persistState()
		return m, m.openEditorCmd(entry)

	case "h", "left", "backspace":
		if m.dir != "/" {
			m.cursor = 0
			return m, m.loadDir(remote.ParentPath(m.dir))
		}
		return m, nil

	case "R":
		m.status = "Refreshed"
		return m, m.loadDir(m.dir)

	case "d":
		entry, ok := m.selected()
		if !ok || entry.IsDir {
			m.errText = "Select a file to download"
			return m, nil
		}
		return m, m.downloadCmd(entry)

	case "u":
		return m.openPrompt(promptUpload, "Local file to upload: ", ""), nil

	case "n":
		return m.openPrompt(promptMkdir, "New directory name: ", ""), nil

	case "r":
		entry, ok := m.selected()
		if !ok || entry.Name == ".." {
			return m, nil
		}
		m.promptTarget = entry
		return m.openPrompt(promptRename, "Rename to: ", entry.Name), nil

	case "x", "delete":
		entry, ok := m.selected()
		if !ok || entry.Name == ".." {
			return m, nil
		}
		m.promptTarget = entry
		kind := "file"
		if entry.IsDir {
			kind = "directory"
		}
		return m.openPrompt(promptDelete, fmt.Sprintf("Delete %s %q? (y/N): ", kind, entry.Name), ""), nil

	case "e":
		entry, ok := m.selected()
		if !ok || entry.IsDir {
			m.errText = "Select a file to edit"
			return m, nil
		}
		m.persistState()
		return m, m.openEditorCmd(entry)

	case "!":
		return m.openPrompt(promptExec, "Run command: ", ""), nil

	case "s":
		return m.startShell()
	}
	return m, nil
}

func (m Model) openPrompt(kind promptKind, placeholder, value string) Model {
	m.prompt = kind
	m.input.Prompt = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
	m.view = viewPrompt
	m.errText = ""
	return m
}

func (m Model) closePrompt() Model {
	m.prompt = promptNone
	m.input.Blur()
	m.input.SetValue("")
	m.view = viewBrowser
	return m
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape, tea.KeyCtrlC:
		return m.closePrompt(), nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		kind := m.prompt
		target := m.promptTarget
		m = m.closePrompt()
		return m, m.commitPrompt(kind, target, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) commitPrompt(kind promptKind, target remote.FileEntry, value string) tea.Cmd {
	files := m.files
	dir := m.dir
	switch kind {
	case promptMkdir:
		if value == "" {
			return nil
		}
		p := path.Join(dir, value)
		return func() tea.Msg {
			err := files.CreateDirectory(p)
			return actionMsg{status: "Created " + p, err: err, refresh: err == nil}
		}
	case promptRename:
		if value == "" || value == target.Name {
			return nil
		}
		oldPath := m.entryPath(target)
		newPath := path.Join(dir, value)
		return func() tea.Msg {
			err := files.Rename(oldPath, newPath)
			return actionMsg{status: fmt.Sprintf("Renamed to %s", value), err: err, refresh: err == nil}
		}
	case promptDelete:
		if !strings.EqualFold(value, "y") {
			return nil
		}
		p := m.entryPath(target)
		isDir := target.IsDir
		return func() tea.Msg {
			var err error
			if isDir {
				err = files.DeleteDirectory(p)
			} else {
				err = files.DeleteFile(p)
			}
			return actionMsg{status: "Deleted " + target.Name, err: err, refresh: err == nil}
		}
	case promptUpload:
		if value == "" {
			return nil
		}
		remotePath := path.Join(dir, filepath.Base(value))
		return func() tea.Msg {
			err := files.Upload(value, remotePath)
			return actionMsg{status: "Uploaded " + filepath.Base(value), err: err, refresh: err == nil}
		}
	case promptExec:
		if value == "" {
			return nil
		}
		sess := m.sess
		// Run inside the directory the browser is showing.
		cmd := fmt.Sprintf("cd %s && %s", shellQuote(dir), value)
		return func() tea.Msg {
			out, err := sess.Exec(cmd)
			return execOutputMsg{command: value, output: out, err: err}
		}
	}
	return nil
}

// shellQuote mirrors the quoting the session layer applies to shell paths.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (m Model) downloadCmd(entry remote.FileEntry) tea.Cmd {
	files := m.files
	remotePath := m.entryPath(entry)
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	localPath := filepath.Join(cwd, entry.Name)
	return func() tea.Msg {
		err := files.Download(remotePath, localPath)
		return actionMsg{status: "Downloaded to " + localPath, err: err}
	}
}

func (m Model) openEditorCmd(entry remote.FileEntry) tea.Cmd {
	files := m.files
	p := m.entryPath(entry)
	name := entry.Name
	return func() tea.Msg {
		content, err := files.ReadFile(p)
		return editorOpenMsg{name: name, path: p, content: content, err: err}
	}
}

func (m Model) viewBrowserScreen(withPrompt bool) string {
	var b strings.Builder

	title := fmt.Sprintf("%s@%s:%s", m.params.User, m.params.Host, m.dir)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	listHeight := m.height - 4
	if listHeight < 1 {
		listHeight = 10
	}
	scroll := 0
	if m.cursor >= listHeight {
		scroll = m.cursor - listHeight + 1
	}

	for i := scroll; i < len(m.entries) && i < scroll+listHeight; i++ {
		e := m.entries[i]
		line := m.renderEntry(e)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(line))
		} else if e.IsDir {
			b.WriteString(dirStyle.Render(line))
		} else {
			b.WriteString(fileStyle.Render(line))
		}
		b.WriteString("\n")
	}
	if len(m.entries) == 0 {
		b.WriteString(metaStyle.Render("  (empty)"))
		b.WriteString("\n")
	}

	if withPrompt {
		b.WriteString(promptStyle.Render(m.input.View()))
		b.WriteString("\n")
	} else {
		switch {
		case m.errText != "":
			b.WriteString(errorStyle.Render(m.errText))
			b.WriteString("\n")
		case m.status != "":
			b.WriteString(statusStyle.Render(m.status))
			b.WriteString("\n")
		}
	}

	b.WriteString(helpStyle.Render("enter: open  e: edit  d: get  u: put  n: mkdir  r: rename  x: delete  !: run  s: shell  q: quit"))
	return b.String()
}

func (m Model) renderEntry(e remote.FileEntry) string {
	marker := " "
	if e.IsDir {
		marker = "/"
	}
	size := ""
	if !e.IsDir && e.Name != ".." {
		size = formatSize(e.Size)
	}
	mod := ""
	if !e.Modified.IsZero() {
		mod = e.Modified.Format("2006-01-02 15:04")
	}
	name := e.Name + marker
	return fmt.Sprintf(" %-40s %10s  %s", name, size, mod)
}

func (m Model) viewOutputScreen() string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.outputHead),
		m.output,
		helpStyle.Render("press any key to return"),
	)
	return body
}
