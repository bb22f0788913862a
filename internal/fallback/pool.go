// Package fallback holds the canned content shown when live data is
// unavailable.
package fallback

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
)

// Category partitions the canned messages.
type Category string

const (
	Positive   Category = "positive"
	Wellness   Category = "wellness"
	Historical Category = "historical"
)

// Categories lists every known category in a stable order.
var Categories = []Category{Positive, Wellness, Historical}

// ErrEmptyPool is returned when a required category has no entries.
var ErrEmptyPool = errors.New("fallback pool is empty")

// Content is one canned message. Historical entries carry two lines.
type Content struct {
	Category Category
	Line1    string
	Line2    string
}

func (c Content) TwoLine() bool {
	return c.Line2 != ""
}

func (c Content) String() string {
	if c.TwoLine() {
		return c.Line1 + " | " + c.Line2
	}
	return c.Line1
}

// Random is the source of randomness used for picks.
type Random interface {
	IntN(n int) int
}

// Pool holds the loaded messages. It is read-only after construction.
type Pool struct {
	pools map[Category][]Content

	mu  sync.Mutex
	rnd Random
}

// New builds a pool. Every listed category in required must be non-empty.
func New(entries map[Category][]string, rnd Random, required ...Category) (*Pool, error) {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p := &Pool{pools: make(map[Category][]Content), rnd: rnd}
	for cat, lines := range entries {
		for _, line := range lines {
			c, ok := parse(cat, line)
			if !ok {
				continue
			}
			p.pools[cat] = append(p.pools[cat], c)
		}
	}
	for _, cat := range required {
		if len(p.pools[cat]) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyPool, cat)
		}
	}
	if p.total(Categories) == 0 {
		return nil, ErrEmptyPool
	}
	return p, nil
}

// lineBreakMarkers separate the two display lines of a historical entry.
var lineBreakMarkers = []string{`\n`, " | "}

func parse(cat Category, raw string) (Content, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return Content{}, false
	}
	if cat != Historical {
		return Content{Category: cat, Line1: line}, true
	}
	for _, marker := range lineBreakMarkers {
		if first, second, found := strings.Cut(line, marker); found {
			first, second = strings.TrimSpace(first), strings.TrimSpace(second)
			if first != "" && second != "" {
				return Content{Category: cat, Line1: first, Line2: second}, true
			}
		}
	}
	// A historical entry without a marker still renders on one line.
	return Content{Category: cat, Line1: line}, true
}

// Pick returns a uniformly random entry of the category.
func (p *Pool) Pick(cat Category) (Content, error) {
	entries := p.pools[cat]
	if len(entries) == 0 {
		return Content{}, fmt.Errorf("%w: %s", ErrEmptyPool, cat)
	}
	return entries[p.intN(len(entries))], nil
}

// PickAny picks uniformly across the union of the given categories, so
// larger categories are chosen proportionally more often. With no
// categories every category is eligible.
func (p *Pool) PickAny(cats ...Category) (Content, error) {
	if len(cats) == 0 {
		cats = Categories
	}
	total := p.total(cats)
	if total == 0 {
		return Content{}, ErrEmptyPool
	}
	n := p.intN(total)
	for _, cat := range cats {
		if n < len(p.pools[cat]) {
			return p.pools[cat][n], nil
		}
		n -= len(p.pools[cat])
	}
	return Content{}, ErrEmptyPool
}

// Size returns the number of entries in a category.
func (p *Pool) Size(cat Category) int {
	return len(p.pools[cat])
}

func (p *Pool) total(cats []Category) int {
	n := 0
	for _, cat := range cats {
		n += len(p.pools[cat])
	}
	return n
}

func (p *Pool) intN(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.IntN(n)
}

// LoadFile reads one entry per line. Blank lines and lines starting with
// # are skipped.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening message file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading message file %s: %w", path, err)
	}
	return lines, nil
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown fallback category %q", s)
}
