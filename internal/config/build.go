package config

import (
	"fmt"
	"math/rand/v2"

	"github.com/pders01/signally/internal/fallback"
	"github.com/pders01/signally/internal/provider"
	"github.com/pders01/signally/internal/scheduler"
)

// Descriptor builds the provider descriptor from the config entry.
func (pc ProviderConfig) Descriptor() (provider.Descriptor, error) {
	window, err := provider.ParseWindow(pc.WindowStart, pc.WindowEnd)
	if err != nil {
		return provider.Descriptor{}, fmt.Errorf("provider %s: %w", pc.ID, err)
	}
	desc := provider.Descriptor{
		ID:          pc.ID,
		DailyQuota:  pc.DailyQuota,
		MinInterval: pc.MinInterval,
		Policy:      provider.IntervalPolicy(pc.Policy),
		Window:      window,
		CacheTTL:    pc.CacheTTL,
	}
	return desc, desc.Validate()
}

// BuildRegistry creates every enabled provider and registers it by
// priority. All providers share client.
func (c *Config) BuildRegistry(client *provider.Client) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for _, pc := range c.Providers {
		if pc.Disabled {
			continue
		}
		desc, err := pc.Descriptor()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		baseURL, err := endpointValidator(pc).Validate(pc.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: provider %s: %w", ErrConfig, pc.ID, err)
		}

		var p provider.Provider
		switch pc.Kind {
		case KindAlphaVantage:
			p = provider.NewAlphaVantage(desc, client, pc.APIKey, baseURL)
		case KindYahooRapid:
			p = provider.NewYahooRapid(desc, client, pc.APIKey, baseURL)
		case KindOpenWeather:
			p = provider.NewOpenWeather(desc, client, pc.APIKey, pc.City, pc.Units, baseURL)
		case KindHeadlines:
			p = provider.NewHeadlines(desc, client, baseURL)
		default:
			return nil, fmt.Errorf("%w: provider %s: unknown kind %q", ErrConfig, pc.ID, pc.Kind)
		}
		if err := reg.Register(p, pc.Priority); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	return reg, nil
}

// FallbackEntries merges inline and file messages per category.
func (c *Config) FallbackEntries() (map[fallback.Category][]string, error) {
	f := c.Fallback
	sources := []struct {
		cat    fallback.Category
		inline []string
		file   string
	}{
		{fallback.Positive, f.Positive, f.PositiveFile},
		{fallback.Wellness, f.Wellness, f.WellnessFile},
		{fallback.Historical, f.Historical, f.HistoricalFile},
	}

	entries := make(map[fallback.Category][]string)
	for _, src := range sources {
		lines := append([]string(nil), src.inline...)
		if src.file != "" {
			fromFile, err := fallback.LoadFile(src.file)
			if err != nil {
				return nil, fmt.Errorf("fallback.%s_file: %w", src.cat, err)
			}
			if len(fromFile) == 0 {
				return nil, fmt.Errorf("fallback.%s_file: %s has no messages", src.cat, src.file)
			}
			lines = append(lines, fromFile...)
		}
		entries[src.cat] = lines
	}
	return entries, nil
}

// BuildPool loads the fallback pool. Every category a slot can draw from
// must have at least one message.
func (c *Config) BuildPool(rnd fallback.Random) (*fallback.Pool, error) {
	entries, err := c.FallbackEntries()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	required := make(map[fallback.Category]bool)
	for _, name := range c.Schedule.WeatherFallback {
		cat, _ := fallback.ParseCategory(name)
		required[cat] = true
	}
	for _, s := range c.Schedule.Slots {
		for _, name := range s.Fallback {
			cat, _ := fallback.ParseCategory(name)
			required[cat] = true
		}
	}
	var cats []fallback.Category
	for _, cat := range fallback.Categories {
		if required[cat] {
			cats = append(cats, cat)
		}
	}

	pool, err := fallback.New(entries, rnd, cats...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return pool, nil
}

// BuildSlots assembles the rotation: clock, the configured slots, weather.
func (c *Config) BuildSlots() ([]scheduler.Slot, error) {
	s := c.Schedule

	middle := make([]scheduler.Slot, 0, len(s.Slots))
	for i, sc := range s.Slots {
		cats, err := categories(sc.Fallback)
		if err != nil {
			return nil, fmt.Errorf("%w: schedule.slots[%d]: %w", ErrConfig, i, err)
		}
		slot := scheduler.Slot{
			Duration: sc.Duration,
			Fallback: cats,
		}
		switch sc.Kind {
		case "data":
			slot.Kind = scheduler.KindData
			slot.ProviderID = sc.Provider
			slot.Keys = append([]string(nil), sc.Keys...)
			if sc.KeysFile != "" {
				keys, err := fallback.LoadFile(sc.KeysFile)
				if err != nil {
					return nil, fmt.Errorf("%w: schedule.slots[%d]: %w", ErrConfig, i, err)
				}
				slot.Keys = append(slot.Keys, keys...)
			}
		case "message":
			slot.Kind = scheduler.KindMessage
		default:
			return nil, fmt.Errorf("%w: schedule.slots[%d]: unknown kind %q", ErrConfig, i, sc.Kind)
		}
		middle = append(middle, slot)
	}

	weatherCats, err := categories(s.WeatherFallback)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule.weather_fallback: %w", ErrConfig, err)
	}
	slots, err := scheduler.Sequence(
		scheduler.Slot{Kind: scheduler.KindClock, Duration: s.ClockDuration},
		middle,
		scheduler.Slot{
			Kind:       scheduler.KindWeather,
			ProviderID: s.WeatherProvider,
			Duration:   s.WeatherDuration,
			Fallback:   weatherCats,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return slots, nil
}

func categories(names []string) ([]fallback.Category, error) {
	out := make([]fallback.Category, 0, len(names))
	for _, n := range names {
		cat, err := fallback.ParseCategory(n)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

// NewRandom returns the random source shared by the pool and the loop.
func NewRandom() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
