// Package display drives a character display of two lines.
package display

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Width = 16
	Rows  = 2
)

// ErrDisplay marks display I/O failures that could not be recovered.
var ErrDisplay = errors.New("display failure")

// Sink is a two-line character display.
type Sink interface {
	Clear() error
	// WriteLine writes text to line 1 or 2.
	WriteLine(line int, text string) error
}

// Closer is implemented by sinks that hold resources.
type Closer interface {
	Close() error
}

// Frame is the content of both lines at one instant.
type Frame struct {
	Line1 string
	Line2 string
}

// Show clears the sink and writes both lines of the frame, centered.
func Show(s Sink, f Frame) error {
	if err := s.Clear(); err != nil {
		return fmt.Errorf("clearing display: %w", err)
	}
	if err := s.WriteLine(1, Center(f.Line1, Width)); err != nil {
		return fmt.Errorf("writing line 1: %w", err)
	}
	if err := s.WriteLine(2, Center(f.Line2, Width)); err != nil {
		return fmt.Errorf("writing line 2: %w", err)
	}
	return nil
}

// ValidLine reports whether line addresses a display row.
func ValidLine(line int) bool {
	return line >= 1 && line <= Rows
}

// Fit cuts s to at most width runes. Character displays have no ellipsis
// glyph, so the text is cut hard.
func Fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width])
}

// Center pads s on both sides to width runes, cutting it first if needed.
// Odd padding puts the extra space on the right.
func Center(s string, width int) string {
	s = Fit(s, width)
	pad := width - len([]rune(s))
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

// PlaceAt puts s starting at column col (0-based) of a width-wide line.
// Text running past the right edge is cut.
func PlaceAt(s string, col, width int) string {
	if col < 0 {
		col = 0
	}
	if col >= width {
		return strings.Repeat(" ", width)
	}
	placed := strings.Repeat(" ", col) + Fit(s, width-col)
	return placed + strings.Repeat(" ", width-len([]rune(placed)))
}
