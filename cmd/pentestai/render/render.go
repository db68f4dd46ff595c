// Package render prints relay replies to a terminal.
//
// On a TTY, markdown is rendered with glamour in a style matching the
// terminal background. Anywhere else the raw markdown is written, so piped
// output stays clean. Escape sequences in model output are always stripped
// before printing.
package render

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	// DefaultWidth is used when the terminal width cannot be determined.
	DefaultWidth = 80

	minWidth = 40
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the width of the terminal behind w, or DefaultWidth.
func Width(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return DefaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	if width < minWidth {
		return minWidth
	}
	return width
}

// Style returns the glamour style for the current terminal background.
func Style() string {
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

// Sanitize removes terminal escape sequences from untrusted text.
func Sanitize(s string) string {
	return ansi.Strip(s)
}

// Renderer renders markdown for one output.
type Renderer struct {
	tty bool
	md  *glamour.TermRenderer
}

// New returns a renderer for w. The style is ignored when w is not a terminal.
func New(w io.Writer, style string) *Renderer {
	r := &Renderer{tty: IsTerminal(w)}
	if !r.tty {
		return r
	}
	return r.WithWidth(style, Width(w))
}

// WithWidth returns a renderer that always renders markdown, wrapped at width.
func (r *Renderer) WithWidth(style string, width int) *Renderer {
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		// Fall back to plain text
		return &Renderer{tty: r.tty}
	}
	return &Renderer{tty: r.tty, md: md}
}

// Markdown renders md, or returns it sanitized when rendering is unavailable.
// The result always ends in exactly one newline.
func (r *Renderer) Markdown(md string) string {
	md = Sanitize(md)
	if r.md == nil {
		return strings.TrimRight(md, "\n") + "\n"
	}
	out, err := r.md.Render(md)
	if err != nil {
		return strings.TrimRight(md, "\n") + "\n"
	}
	return strings.TrimRight(out, "\n") + "\n"
}
