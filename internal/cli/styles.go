// Package cli renders delayfix's terminal output: styled help, correction
// reports and errors.
package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#1F7A8C")
	accentColor  = lipgloss.Color("#FFA500")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
	okColor      = lipgloss.Color("#00AA00")
	errorColor   = lipgloss.Color("#A40000")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(okColor)

	WarnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)
)

// PrintVersion prints version information
func PrintVersion(w io.Writer, version string) {
	fmt.Fprintln(w, TitleStyle.Render("delayfix"))
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), message)
}
