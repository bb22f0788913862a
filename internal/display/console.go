package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	panelColor = lipgloss.Color("#4ECDC4")
	textColor  = lipgloss.Color("#95E1D3")
	backColor  = lipgloss.Color("#16213E")
)

// Console renders the display as a framed panel on a terminal.
type Console struct {
	out   io.Writer
	plain bool

	mu    sync.Mutex
	lines [Rows]string
	style lipgloss.Style
}

// NewConsole creates a console sink. In plain mode every frame is printed
// as two bare lines without styling or screen control sequences.
func NewConsole(out io.Writer, plain bool) *Console {
	return &Console{
		out:   out,
		plain: plain,
		style: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(panelColor).
			Foreground(textColor).
			Background(backColor).
			Width(Width+2).
			Padding(0, 1),
	}
}

func (c *Console) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = [Rows]string{}
	return nil
}

// WriteLine stores the line and redraws the panel once line 2 is written.
func (c *Console) WriteLine(line int, text string) error {
	if !ValidLine(line) {
		return fmt.Errorf("%w: line %d out of range", ErrDisplay, line)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[line-1] = Fit(text, Width)
	if line != Rows {
		return nil
	}
	return c.draw()
}

func (c *Console) draw() error {
	if c.plain {
		_, err := fmt.Fprintf(c.out, "%s\n%s\n", c.lines[0], c.lines[1])
		return err
	}

	padded := make([]string, Rows)
	for i, l := range c.lines {
		padded[i] = l + strings.Repeat(" ", Width-len([]rune(l)))
	}
	// Home the cursor and clear so the panel redraws in place.
	_, err := fmt.Fprint(c.out, "\033[H\033[2J"+c.style.Render(strings.Join(padded, "\n"))+"\n")
	return err
}
