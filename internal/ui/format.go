package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7AA2F7")).Padding(0, 1)
	dirStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#7AA2F7")).Bold(true)
	fileStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C0CAF5"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#1A1B26")).Background(lipgloss.Color("#7AA2F7"))
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#565F89"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#565F89"))
	promptStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#7AA2F7")).Padding(0, 1)
)

// formatSize renders a byte count for the listing column.
func formatSize(size int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case size >= gb:
		return fmt.Sprintf("%.1f GB", float64(size)/float64(gb))
	case size >= mb:
		return fmt.Sprintf("%.1f MB", float64(size)/float64(mb))
	case size >= kb:
		return fmt.Sprintf("%.1f KB", float64(size)/float64(kb))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
