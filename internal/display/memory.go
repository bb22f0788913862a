package display

import (
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-process sink that keeps every completed frame. It backs
// dry runs and tests.
type Memory struct {
	mu     sync.Mutex
	lines  [Rows]string
	frames []Frame
	clears int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = [Rows]string{}
	m.clears++
	return nil
}

// WriteLine records a frame each time line 2 is written.
func (m *Memory) WriteLine(line int, text string) error {
	if !ValidLine(line) {
		return fmt.Errorf("%w: line %d out of range", ErrDisplay, line)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[line-1] = Fit(text, Width)
	if line == Rows {
		m.frames = append(m.frames, Frame{Line1: m.lines[0], Line2: m.lines[1]})
	}
	return nil
}

// Frames returns the recorded frames with surrounding padding removed.
func (m *Memory) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.frames))
	for i, f := range m.frames {
		out[i] = Frame{Line1: strings.TrimSpace(f.Line1), Line2: strings.TrimSpace(f.Line2)}
	}
	return out
}

func (m *Memory) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}
