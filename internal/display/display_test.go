package display

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 16, "short"},
		{"exactly sixteen!", 16, "exactly sixteen!"},
		{"this line is far too long", 16, "this line is far"},
		{"72°F Thunderstorm", 16, "72°F Thunderstor"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fit(tt.in, tt.width), "Fit(%q, %d)", tt.in, tt.width)
	}
}

func TestCenter(t *testing.T) {
	assert.Equal(t, "     hello      ", Center("hello", 16))
	assert.Equal(t, "                ", Center("", 16))
	assert.Equal(t, "this line is far", Center("this line is far too long", 16))
	assert.Len(t, []rune(Center("72°F", 16)), 16)
}

func TestPlaceAt(t *testing.T) {
	assert.Equal(t, "  LCD     ", PlaceAt("LCD", 2, 10))
	assert.Equal(t, "        Si", PlaceAt("Signally", 8, 10))
	assert.Equal(t, "          ", PlaceAt("x", 10, 10))
	assert.Equal(t, "abc       ", PlaceAt("abc", -3, 10))
}

func TestShow(t *testing.T) {
	m := NewMemory()
	require.NoError(t, Show(m, Frame{Line1: "AAPL: 1.00 +0.00", Line2: "09:00:00 AM"}))

	frames := m.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "AAPL: 1.00 +0.00", frames[0].Line1)
	assert.Equal(t, "09:00:00 AM", frames[0].Line2)
	assert.Equal(t, 1, m.Clears())
}

func TestMemory_RejectsBadLine(t *testing.T) {
	m := NewMemory()
	assert.ErrorIs(t, m.WriteLine(3, "x"), ErrDisplay)
	assert.ErrorIs(t, m.WriteLine(0, "x"), ErrDisplay)
}

func TestConsole_Plain(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	require.NoError(t, Show(c, Frame{Line1: "hello", Line2: "world"}))
	out := buf.String()
	assert.Contains(t, out, "     hello      \n")
	assert.Contains(t, out, "     world      \n")
}

func TestConsole_Styled(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	require.NoError(t, c.Clear())
	require.NoError(t, c.WriteLine(1, "line one"))
	assert.Zero(t, buf.Len(), "panel is drawn once line 2 arrives")

	require.NoError(t, c.WriteLine(2, "line two"))
	assert.True(t, strings.HasPrefix(buf.String(), "\033[H\033[2J"))
	assert.Contains(t, buf.String(), "line one")
	assert.Contains(t, buf.String(), "line two")
}

// flakySink fails the first n operations.
type flakySink struct {
	*Memory
	failures int
}

func (f *flakySink) Clear() error {
	if f.failures > 0 {
		f.failures--
		return errors.New("i2c bus busy")
	}
	return f.Memory.Clear()
}

func TestRetrying_RecoversFromTransientErrors(t *testing.T) {
	inner := &flakySink{Memory: NewMemory(), failures: 2}
	r := NewRetrying(context.Background(), inner, 3, time.Millisecond, zerolog.Nop())
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	errCount := 0
	r.OnError = func(error) { errCount++ }

	require.NoError(t, r.Clear())
	assert.Equal(t, 2, errCount)
	assert.Len(t, slept, 2)
}

func TestRetrying_GivesUp(t *testing.T) {
	inner := &flakySink{Memory: NewMemory(), failures: 10}
	r := NewRetrying(context.Background(), inner, 3, 0, zerolog.Nop())

	err := r.Clear()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDisplay)
	assert.Equal(t, 7, inner.failures)
}

func TestRetrying_BackoffStopsOnCancel(t *testing.T) {
	inner := &flakySink{Memory: NewMemory(), failures: 10}
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrying(ctx, inner, 5, time.Hour, zerolog.Nop())
	r.OnError = func(error) { cancel() }

	start := time.Now()
	err := r.Clear()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDisplay)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 9, inner.failures, "no attempts after cancel")
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestIntro(t *testing.T) {
	m := NewMemory()
	var total time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		total += d
		return nil
	}

	err := Intro(context.Background(), m, sleep, IntroConfig{
		Line1: "Signally",
		Line2: "LCD",
		Step:  100 * time.Millisecond,
		Hold:  5 * time.Second,
	})
	require.NoError(t, err)

	frames := m.Frames()
	// 16 -> 4 swipe positions plus 8 fade steps.
	require.Len(t, frames, 13+8)
	assert.Equal(t, "", frames[0].Line1, "first frame starts off screen")
	assert.Equal(t, "Signally", frames[12].Line1)
	assert.Equal(t, "LCD", frames[12].Line2)
	assert.Equal(t, "", frames[len(frames)-1].Line1)
	assert.Equal(t, 5*time.Second+21*100*time.Millisecond, total)
}

func TestIntro_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sleep := func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	err := Intro(ctx, NewMemory(), sleep, IntroConfig{Line1: "a", Line2: "b"})
	assert.ErrorIs(t, err, context.Canceled)
}
