package display

import (
	"context"
	"fmt"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// IntroConfig describes the opening animation.
type IntroConfig struct {
	Line1 string
	Line2 string
	Step  time.Duration
	Hold  time.Duration
}

// Intro swipes both lines in from the right edge to the center, holds
// them, then fades them out one character at a time.
func Intro(ctx context.Context, s Sink, sleep SleepFunc, cfg IntroConfig) error {
	n1, n2 := len([]rune(cfg.Line1)), len([]rune(cfg.Line2))
	longest := max(n1, n2)
	target := (Width - longest) / 2

	for col := Width; col >= target; col-- {
		if err := write(s, PlaceAt(cfg.Line1, col, Width), PlaceAt(cfg.Line2, col, Width)); err != nil {
			return err
		}
		if err := sleep(ctx, cfg.Step); err != nil {
			return err
		}
	}

	if err := sleep(ctx, cfg.Hold); err != nil {
		return err
	}

	r1, r2 := []rune(cfg.Line1), []rune(cfg.Line2)
	for i := 1; i <= longest; i++ {
		l1 := string(r1[:max(n1-i, 0)])
		l2 := string(r2[:max(n2-i, 0)])
		if err := write(s, PlaceAt(l1, target, Width), PlaceAt(l2, target, Width)); err != nil {
			return err
		}
		if err := sleep(ctx, cfg.Step); err != nil {
			return err
		}
	}
	return nil
}

func write(s Sink, line1, line2 string) error {
	if err := s.Clear(); err != nil {
		return fmt.Errorf("clearing display: %w", err)
	}
	if err := s.WriteLine(1, line1); err != nil {
		return err
	}
	return s.WriteLine(2, line2)
}
