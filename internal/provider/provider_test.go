package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.Local)
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"08:30", TimeOfDay(8*time.Hour + 30*time.Minute), false},
		{"00:00", 0, false},
		{"23:59:59", TimeOfDay(24*time.Hour - time.Second), false},
		{" 13:10 ", TimeOfDay(13*time.Hour + 10*time.Minute), false},
		{"24:00", 0, true},
		{"8", 0, true},
		{"ab:cd", 0, true},
		{"12:60", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindow_Contains(t *testing.T) {
	w, err := ParseWindow("08:30", "15:00")
	require.NoError(t, err)

	assert.False(t, w.Contains(at(8, 29)))
	assert.True(t, w.Contains(at(8, 30)), "start is inclusive")
	assert.True(t, w.Contains(at(12, 0)))
	assert.True(t, w.Contains(at(15, 0)), "end is inclusive")
	assert.False(t, w.Contains(time.Date(2026, 3, 10, 15, 0, 1, 0, time.Local)))
	assert.True(t, AllDay.Contains(at(0, 0)))
	assert.True(t, AllDay.Contains(time.Date(2026, 3, 10, 23, 59, 59, 0, time.Local)))
}

func TestParseWindow_RejectsMidnightCrossing(t *testing.T) {
	_, err := ParseWindow("22:00", "02:00")
	assert.Error(t, err)
}

func TestDescriptor_EffectiveInterval(t *testing.T) {
	w, err := ParseWindow("08:30", "15:00")
	require.NoError(t, err)

	fixed := Descriptor{ID: "a", DailyQuota: 25, MinInterval: 20 * time.Minute, Policy: IntervalFixed, Window: w}
	assert.Equal(t, 20*time.Minute, fixed.EffectiveInterval())

	spread := Descriptor{ID: "b", DailyQuota: 1, Policy: IntervalSpread, Window: w}
	assert.Equal(t, 6*time.Hour+30*time.Minute, spread.EffectiveInterval())

	spread.DailyQuota = 13
	assert.Equal(t, 30*time.Minute, spread.EffectiveInterval())
}

func TestDescriptor_Validate(t *testing.T) {
	valid := Descriptor{ID: "ok", DailyQuota: 1, Policy: IntervalFixed, Window: AllDay}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Descriptor)
	}{
		{"missing id", func(d *Descriptor) { d.ID = "" }},
		{"negative quota", func(d *Descriptor) { d.DailyQuota = -1 }},
		{"negative interval", func(d *Descriptor) { d.MinInterval = -time.Second }},
		{"unknown policy", func(d *Descriptor) { d.Policy = "burst" }},
		{"reversed window", func(d *Descriptor) { d.Window = Window{Start: TimeOfDay(time.Hour), End: 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			assert.Error(t, d.Validate())
		})
	}
}

func TestFetchError(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", NewFetchError("av", KindStatus, base))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "av", fe.Provider)
	assert.Equal(t, KindStatus, KindOf(err))
	assert.ErrorIs(t, err, base)

	timeout := NewFetchError("av", KindNetwork, fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, timeout.Kind)
	assert.Equal(t, KindNetwork, KindOf(errors.New("plain")))
}

type stubProvider struct {
	desc Descriptor
}

func (s stubProvider) Descriptor() Descriptor { return s.desc }

func (s stubProvider) Fetch(context.Context, string) (string, error) { return s.desc.ID, nil }

func stub(id string) stubProvider {
	return stubProvider{desc: Descriptor{ID: id, DailyQuota: 1, Policy: IntervalFixed, Window: AllDay}}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(stub("low"), 10))
	require.NoError(t, r.Register(stub("high"), 100))
	require.NoError(t, r.Register(stub("mid"), 50))
	require.NoError(t, r.Register(stub("mid2"), 50))

	var ids []string
	for _, d := range r.Descriptors() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"high", "mid", "mid2", "low"}, ids)

	assert.NotNil(t, r.Get("mid"))
	assert.Nil(t, r.Get("missing"))

	t.Run("rejects duplicates", func(t *testing.T) {
		assert.Error(t, r.Register(stub("low"), 1))
	})

	t.Run("rejects invalid descriptors", func(t *testing.T) {
		bad := stub("bad")
		bad.desc.DailyQuota = -5
		assert.Error(t, r.Register(bad, 1))
	})
}
