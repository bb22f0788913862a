package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}

	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return TimeOfDay(total), nil
}

// Of returns the time-of-day component of t in t's location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Window is an inclusive time-of-day range. Windows never cross midnight.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// AllDay covers every second of the day.
var AllDay = Window{Start: 0, End: TimeOfDay(24*time.Hour - time.Second)}

// ParseWindow parses start and end times of day and validates the range.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, err
	}
	w := Window{Start: s, End: e}
	return w, w.Validate()
}

func (w Window) Validate() error {
	if w.Start > w.End {
		return fmt.Errorf("window %s-%s crosses midnight or is reversed", w.Start, w.End)
	}
	return nil
}

// Contains reports whether t's time of day lies within the window.
func (w Window) Contains(t time.Time) bool {
	tod := Of(t)
	return tod >= w.Start && tod <= w.End
}

func (w Window) Duration() time.Duration {
	return time.Duration(w.End - w.Start)
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// IntervalPolicy decides how the minimum spacing between calls is derived.
type IntervalPolicy string

const (
	// IntervalFixed uses the configured MinInterval as-is.
	IntervalFixed IntervalPolicy = "fixed"
	// IntervalSpread spaces calls evenly: window duration / daily quota.
	IntervalSpread IntervalPolicy = "spread"
)

// Descriptor is the static metadata of one provider. Immutable after load.
type Descriptor struct {
	ID          string
	DailyQuota  int
	MinInterval time.Duration
	Policy      IntervalPolicy
	Window      Window
	CacheTTL    time.Duration
}

// EffectiveInterval returns the minimum spacing between calls under the
// descriptor's policy.
func (d Descriptor) EffectiveInterval() time.Duration {
	if d.Policy == IntervalSpread {
		if d.DailyQuota <= 0 {
			return d.Window.Duration()
		}
		return d.Window.Duration() / time.Duration(d.DailyQuota)
	}
	return d.MinInterval
}

func (d Descriptor) Validate() error {
	if d.ID == "" {
		return errors.New("provider id is required")
	}
	if d.DailyQuota < 0 {
		return fmt.Errorf("provider %s: daily quota must not be negative", d.ID)
	}
	if d.MinInterval < 0 || d.CacheTTL < 0 {
		return fmt.Errorf("provider %s: durations must not be negative", d.ID)
	}
	switch d.Policy {
	case IntervalFixed, IntervalSpread:
	default:
		return fmt.Errorf("provider %s: unknown interval policy %q", d.ID, d.Policy)
	}
	if err := d.Window.Validate(); err != nil {
		return fmt.Errorf("provider %s: %w", d.ID, err)
	}
	return nil
}

// Provider is one external data source.
type Provider interface {
	Descriptor() Descriptor

	// Fetch returns display-ready content for key. Any error means the
	// source is unavailable for this cycle.
	Fetch(ctx context.Context, key string) (string, error)
}

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindStatus       ErrorKind = "status"
	KindMalformed    ErrorKind = "malformed"
	KindMissingField ErrorKind = "missing_field"
	KindTimeout      ErrorKind = "timeout"
)

// FetchError is returned by providers for every failed fetch.
type FetchError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err, classifying context deadline errors as timeouts.
func NewFetchError(id string, kind ErrorKind, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &FetchError{Provider: id, Kind: kind, Err: err}
}

// KindOf extracts the error kind, defaulting to network for foreign errors.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}
