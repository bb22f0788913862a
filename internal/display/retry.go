package display

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Retrying wraps a sink and retries failed operations a bounded number of
// times, so a transient bus error does not stop the rotation. The backoff
// between attempts ends early when ctx is done.
type Retrying struct {
	ctx      context.Context
	sink     Sink
	attempts int
	backoff  time.Duration
	sleep    SleepFunc
	logger   zerolog.Logger

	// OnError is called for every failed attempt.
	OnError func(err error)
}

func NewRetrying(ctx context.Context, sink Sink, attempts int, backoff time.Duration, logger zerolog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		ctx:      ctx,
		sink:     sink,
		attempts: attempts,
		backoff:  backoff,
		sleep:    Sleep,
		logger:   logger,
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Retrying) Clear() error {
	return r.do("clear", r.sink.Clear)
}

func (r *Retrying) WriteLine(line int, text string) error {
	return r.do("write", func() error { return r.sink.WriteLine(line, text) })
}

// Close closes the wrapped sink when it holds resources.
func (r *Retrying) Close() error {
	if c, ok := r.sink.(Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Retrying) do(op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if r.OnError != nil {
			r.OnError(err)
		}
		r.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("display operation failed")
		if attempt < r.attempts && r.backoff > 0 {
			if serr := r.sleep(r.ctx, r.backoff); serr != nil {
				return fmt.Errorf("%w: %s interrupted after %d attempts: %v", ErrDisplay, op, attempt, err)
			}
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrDisplay, op, r.attempts, err)
}
