// Package history keeps the record of everything shown on the display: an
// append-only text log, an HTML log and a searchable index.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02 15:04:05"

// Record is one rendered frame.
type Record struct {
	ID    string    `json:"id"`
	At    time.Time `json:"at"`
	Line1 string    `json:"line1"`
	Line2 string    `json:"line2"`
}

// NewRecord stamps a frame with a fresh id.
func NewRecord(at time.Time, line1, line2 string) Record {
	return Record{ID: uuid.NewString(), At: at, Line1: line1, Line2: line2}
}

// Text renders the record as a text log line, without the newline.
func (r Record) Text() string {
	return fmt.Sprintf("%s: %s | %s", r.At.Format(timestampLayout), r.Line1, r.Line2)
}

// HTML renders the record as an HTML log entry.
func (r Record) HTML() string {
	return fmt.Sprintf("<div class=\"log-entry\"><strong>%s</strong>: %s | %s</div>\n",
		r.At.Format(timestampLayout), html.EscapeString(r.Line1), html.EscapeString(r.Line2))
}

// Sink receives records. Index implements it.
type Sink interface {
	Add(rec Record) error
}

// RecorderConfig locates the log files. An empty path disables that log.
type RecorderConfig struct {
	TextPath string
	HTMLPath string

	// Now stamps the HTML header of a new log. Defaults to time.Now.
	Now func() time.Time
}

// Recorder appends records to the text and HTML logs and forwards them to
// any extra sinks. Writes are buffered until Flush or Close.
type Recorder struct {
	cfg   RecorderConfig
	sinks []Sink

	mu       sync.Mutex
	textFile *os.File
	text     *bufio.Writer
	htmlFile *os.File
	html     *bufio.Writer
}

func NewRecorder(cfg RecorderConfig, sinks ...Sink) (*Recorder, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := &Recorder{cfg: cfg, sinks: sinks}
	if err := r.open(); err != nil {
		r.closeLocked()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) open() error {
	if r.cfg.TextPath != "" {
		f, err := openAppend(r.cfg.TextPath)
		if err != nil {
			return fmt.Errorf("opening text log: %w", err)
		}
		r.textFile, r.text = f, bufio.NewWriter(f)
	}

	if r.cfg.HTMLPath != "" {
		f, err := openAppend(r.cfg.HTMLPath)
		if err != nil {
			return fmt.Errorf("opening html log: %w", err)
		}
		r.htmlFile, r.html = f, bufio.NewWriter(f)

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("checking html log: %w", err)
		}
		if info.Size() == 0 {
			if _, err := r.html.WriteString(htmlHeader(r.cfg.Now())); err != nil {
				return fmt.Errorf("writing html header: %w", err)
			}
		}
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// Append writes rec to every log and sink. All targets are attempted; the
// returned error joins the failures.
func (r *Recorder) Append(rec Record) error {
	var errs []error

	r.mu.Lock()
	if r.text != nil {
		if _, err := r.text.WriteString(rec.Text() + "\n"); err != nil {
			errs = append(errs, fmt.Errorf("text log: %w", err))
		}
	}
	if r.html != nil {
		if _, err := r.html.WriteString(rec.HTML()); err != nil {
			errs = append(errs, fmt.Errorf("html log: %w", err))
		}
	}
	r.mu.Unlock()

	for _, s := range r.sinks {
		if err := s.Add(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush writes buffered log lines to disk and flushes any sink that
// batches its own writes.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	errs := []error{r.flushLocked()}
	r.mu.Unlock()

	for _, s := range r.sinks {
		if f, ok := s.(interface{ Flush() error }); ok {
			errs = append(errs, f.Flush())
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) flushLocked() error {
	var errs []error
	if r.text != nil {
		errs = append(errs, r.text.Flush())
	}
	if r.html != nil {
		errs = append(errs, r.html.Flush())
	}
	return errors.Join(errs...)
}

func (r *Recorder) closeLocked() error {
	errs := []error{r.flushLocked()}
	if r.textFile != nil {
		errs = append(errs, r.textFile.Close())
		r.textFile, r.text = nil, nil
	}
	if r.htmlFile != nil {
		errs = append(errs, r.htmlFile.Close())
		r.htmlFile, r.html = nil, nil
	}
	return errors.Join(errs...)
}

// Reset deletes both log files and starts them fresh.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.closeLocked(); err != nil {
		return err
	}
	for _, p := range []string{r.cfg.TextPath, r.cfg.HTMLPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return r.open()
}

// Close flushes pending writes and closes the log files.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func htmlHeader(created time.Time) string {
	return `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Display log</title>
<style>
body { font-family: monospace; background: #16213E; color: #95E1D3; }
h1 { color: #4ECDC4; }
.log-entry { padding: 2px 0; border-bottom: 1px solid #2a3a5e; }
</style>
</head>
<body>
<h1>Display log</h1>
<p>Created ` + created.Format(timestampLayout) + `</p>
<div class="log">
`
}
