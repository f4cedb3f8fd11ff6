// Package ui implements a single-line progress summary for the training
// driver, styled with lipgloss and sized to the terminal.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var labelStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("13")).
	Foreground(lipgloss.Color("0")).
	Bold(true).
	Padding(0, 1)

// Summary renders "label, trained a of b" as a styled single line, clipped
// to the terminal width when one can be determined.
func Summary(label string, trained, total int64) string {
	line := fmt.Sprintf("%s %d / %d labels", labelStyle.Render(label), trained, total)
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return line
	}
	plain := fmt.Sprintf("%s %d / %d labels", label, trained, total)
	if len(plain) > width {
		return plain[:width]
	}
	return line
}
