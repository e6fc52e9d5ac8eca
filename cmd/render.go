package cmd

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

var isStdoutTTY = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }
var isStdinTTY = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// renderMarkdown renders a reply for terminal display. Piped output is left
// as plain text.
func renderMarkdown(content string, width int) string {
	if !isStdoutTTY() {
		return content
	}
	if width <= 0 || width > 100 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
