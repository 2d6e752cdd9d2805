package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	authclient "github.com/goliatone/go-auth-client"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	avatarStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

func printProfile(w io.Writer, s authclient.Session, health string) {
	p := s.Profile

	lines := []string{
		avatarStyle.Render(p.Initials()) + " " + titleStyle.Render(p.Name()),
		p.Email,
		mutedStyle.Render("subject: " + p.Subject),
	}
	if p.AuthSource != authclient.AuthSourceUnknown {
		lines = append(lines, mutedStyle.Render("signed in with: "+string(p.AuthSource)))
	}
	if exp, ok := authclient.TokenExpiry(s.Token); ok {
		lines = append(lines, mutedStyle.Render("expires: "+exp.Local().Format("2006-01-02 15:04")))
	}
	if health != "" {
		lines = append(lines, mutedStyle.Render("backend: "+health))
	}

	fmt.Fprintln(w, cardStyle.Render(strings.Join(lines, "\n")))
}

func printError(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render(msg))
}
