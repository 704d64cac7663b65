// Package display renders classified session output (command replies,
// server events, streamed log lines, connection status notices) with a
// configurable color policy. Styling never alters the underlying text:
// mode "never" produces byte-identical output for every classification,
// which is the required mode when stdout is not a terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Mode is the color policy applied to every rendered line.
type Mode int

const (
	// ModeOff disables all styling.
	ModeOff Mode = iota
	// ModeTag colors only the bracketed tag of a line (log level tag,
	// event tag), leaving the rest untouched.
	ModeTag
	// ModeLine colors whole lines by classification and content.
	ModeLine
)

// ParseMode parses the config/flag spelling of a color mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "never":
		return ModeOff, nil
	case "tag":
		return ModeTag, nil
	case "line":
		return ModeLine, nil
	}
	return ModeOff, fmt.Errorf("invalid color mode %q (valid: never, tag, line)", s)
}

func (m Mode) String() string {
	switch m {
	case ModeTag:
		return "tag"
	case ModeLine:
		return "line"
	}
	return "never"
}

// Class identifies where a line of output came from.
type Class int

const (
	// ClassReply is the body of a command reply.
	ClassReply Class = iota
	// ClassEvent is an unsolicited server event.
	ClassEvent
	// ClassLog is a streamed server log line; Level carries the
	// FreeSWITCH log level (0 console … 7 debug).
	ClassLog
	// ClassStatus is a client-side connection status notice
	// (reconnecting, reconnected, …).
	ClassStatus
	// ClassError is a client-side error message.
	ClassError
)

// Line is one classified unit of output.
type Line struct {
	Class Class
	Text  string
	Level int
}

// Formatter maps classified lines to styled text and writes them.
type Formatter struct {
	mode Mode
	w    io.Writer
}

func New(mode Mode) *Formatter {
	return &Formatter{mode: mode, w: os.Stdout}
}

// SetWriter redirects output, useful for testing.
func (f *Formatter) SetWriter(w io.Writer) { f.w = w }

// Mode returns the configured color policy.
func (f *Formatter) Mode() Mode { return f.mode }

// Print renders the line and writes it followed by a newline.
func (f *Formatter) Print(l Line) {
	fmt.Fprintln(f.w, f.Render(l))
}

// Render returns the styled text for one line. With ModeOff the input
// text is returned unchanged.
func (f *Formatter) Render(l Line) string {
	if f.mode == ModeOff {
		return l.Text
	}

	switch l.Class {
	case ClassLog:
		return f.renderLog(l)
	case ClassEvent:
		if f.mode == ModeTag {
			return colorizeTag(l.Text, color.New(color.FgCyan))
		}
		return color.New(color.FgCyan).Sprint(l.Text)
	case ClassStatus:
		if f.mode == ModeTag {
			return l.Text
		}
		return color.New(color.FgYellow).Sprint(l.Text)
	case ClassError:
		return color.New(color.FgRed, color.Bold).Sprint(l.Text)
	default:
		return f.renderReply(l.Text)
	}
}

// renderReply styles a reply body line in ModeLine by its structural
// cues: +OK green, -ERR red, otherwise untouched. ModeTag leaves reply
// bodies alone.
func (f *Formatter) renderReply(text string) string {
	if f.mode != ModeLine {
		return text
	}
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "+OK"):
		return color.New(color.FgGreen).Sprint(text)
	case strings.HasPrefix(trimmed, "-ERR"), strings.HasPrefix(trimmed, "-USAGE"):
		return color.New(color.FgRed).Sprint(text)
	}
	return text
}

func (f *Formatter) renderLog(l Line) string {
	c := levelColor(l.Level)
	if f.mode == ModeTag {
		return colorizeTag(l.Text, c)
	}
	return c.Sprint(l.Text)
}

// levelColor matches the palette of the stock fs_cli console.
func levelColor(level int) *color.Color {
	switch level {
	case 0: // CONSOLE
		return color.New(color.FgWhite, color.Bold)
	case 1, 2: // ALERT, CRIT
		return color.New(color.FgRed, color.Bold)
	case 3: // ERR
		return color.New(color.FgRed)
	case 4: // WARNING
		return color.New(color.FgYellow)
	case 5: // NOTICE
		return color.New(color.FgCyan)
	case 6: // INFO
		return color.New(color.FgGreen)
	default: // DEBUG and below
		return color.New(color.FgYellow, color.Faint)
	}
}

// colorizeTag colors the first bracketed token of text, if any.
func colorizeTag(text string, c *color.Color) string {
	start := strings.Index(text, "[")
	if start < 0 {
		return text
	}
	end := strings.Index(text[start:], "]")
	if end < 0 {
		return text
	}
	end += start + 1
	return text[:start] + c.Sprint(text[start:end]) + text[end:]
}
