package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pders01/signally/internal/fallback"
	"github.com/pders01/signally/internal/logging"
	"github.com/pders01/signally/internal/provider"
	"github.com/pders01/signally/internal/validation"
)

// ErrConfig marks every configuration problem. It is fatal before the
// display loop starts.
var ErrConfig = errors.New("configuration error")

var displayKinds = map[string]bool{"console": true, "plain": true, "memory": true}

// Validate checks the whole config and reports every problem found, joined
// into one error wrapping ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !displayKinds[c.Display.Kind] {
		add("display.kind: unknown kind %q", c.Display.Kind)
	}
	if c.Display.Retries < 1 {
		add("display.retries must be at least 1")
	}
	if c.Display.RetryBackoff < 0 {
		add("display.retry_backoff must not be negative")
	}
	if _, ok := logging.Levels[strings.ToUpper(c.Log.Level)]; !ok {
		add("log.level: unknown level %q", c.Log.Level)
	}

	s := c.Schedule
	if s.Tick <= 0 {
		add("schedule.tick must be positive")
	}
	if s.FetchTimeout <= 0 {
		add("schedule.fetch_timeout must be positive")
	} else if s.Tick > 0 && s.FetchTimeout > s.Tick {
		add("schedule.fetch_timeout (%s) must not exceed schedule.tick (%s)", s.FetchTimeout, s.Tick)
	}
	if s.ClockDuration <= 0 {
		add("schedule.clock_duration must be positive")
	}
	if s.WeatherDuration <= 0 {
		add("schedule.weather_duration must be positive")
	}

	ids := make(map[string]bool)
	for i, pc := range c.Providers {
		if pc.ID == "" {
			add("providers[%d]: id is required", i)
			continue
		}
		if ids[pc.ID] {
			add("providers[%d]: duplicate id %q", i, pc.ID)
		}
		ids[pc.ID] = true
		if pc.Disabled {
			continue
		}
		errs = append(errs, validateProvider(pc)...)
	}

	if s.WeatherProvider == "" {
		add("schedule.weather_provider is required")
	} else if !c.enabled(s.WeatherProvider) {
		add("schedule.weather_provider: unknown or disabled provider %q", s.WeatherProvider)
	}
	errs = append(errs, validateCategories("schedule.weather_fallback", s.WeatherFallback)...)

	for i, slot := range s.Slots {
		name := fmt.Sprintf("schedule.slots[%d]", i)
		switch slot.Kind {
		case "data":
			if !c.enabled(slot.Provider) {
				add("%s: unknown or disabled provider %q", name, slot.Provider)
			}
		case "message":
		default:
			add("%s: unknown kind %q", name, slot.Kind)
		}
		if slot.Duration <= 0 {
			add("%s: duration must be positive", name)
		}
		if slot.KeysFile != "" {
			if err := validation.ReadableFile(slot.KeysFile); err != nil {
				add("%s: keys_file: %v", name, err)
			}
		}
		errs = append(errs, validateCategories(name+".fallback", slot.Fallback)...)
	}

	if _, err := c.FallbackEntries(); err != nil {
		errs = append(errs, err)
	}

	if c.History.RotateDays < 1 {
		add("history.rotate_days must be at least 1")
	}
	if c.History.RotateHour < 0 || c.History.RotateHour > 23 {
		add("history.rotate_hour must be between 0 and 23")
	}
	for _, p := range []string{c.History.TextLog, c.History.HTMLLog, c.Storage.Path, c.Log.File} {
		if p == "" {
			continue
		}
		if err := validation.ValidateFile(p); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Storage.Path == "" {
		add("storage.path is required")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
}

func validateProvider(pc ProviderConfig) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("provider %s: "+format, append([]any{pc.ID}, args...)...))
	}

	switch pc.Kind {
	case KindAlphaVantage, KindYahooRapid, KindOpenWeather:
		if pc.APIKey == "" {
			add("api key missing (set api_key or one of %v)", pc.APIKeyEnv)
		}
	case KindHeadlines:
	default:
		add("unknown kind %q", pc.Kind)
	}
	if pc.Kind == KindOpenWeather && pc.City == "" {
		add("city missing (set city or one of %v)", pc.CityEnv)
	}

	if pc.BaseURL == "" {
		add("base_url is required")
	} else if _, err := endpointValidator(pc).Validate(pc.BaseURL); err != nil {
		add("base_url: %v", err)
	}

	if pc.DailyQuota < 0 {
		add("daily_quota must not be negative")
	}
	switch provider.IntervalPolicy(pc.Policy) {
	case provider.IntervalFixed:
		if pc.MinInterval <= 0 {
			add("policy fixed requires a positive min_interval")
		}
	case provider.IntervalSpread:
	default:
		add("unknown policy %q", pc.Policy)
	}
	if _, err := provider.ParseWindow(pc.WindowStart, pc.WindowEnd); err != nil {
		add("window: %v", err)
	}
	if pc.CacheTTL < 0 {
		add("cache_ttl must not be negative")
	}
	return errs
}

func endpointValidator(pc ProviderConfig) *validation.EndpointValidator {
	if pc.AllowLocal {
		return validation.NewLocalEndpointValidator()
	}
	return validation.NewEndpointValidator()
}

func validateCategories(name string, cats []string) []error {
	var errs []error
	for _, c := range cats {
		if _, err := fallback.ParseCategory(c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

func (c *Config) enabled(id string) bool {
	pc, ok := c.Provider(id)
	return ok && !pc.Disabled
}
