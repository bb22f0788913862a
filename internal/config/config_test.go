package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pders01/signally/internal/fallback"
	"github.com/pders01/signally/internal/provider"
	"github.com/pders01/signally/internal/scheduler"
)

var secretEnv = []string{
	"SIGNALLY_ALPHAVANTAGE_KEY", "ALPHA_VANTAGE_API_KEY",
	"SIGNALLY_RAPIDAPI_KEY", "RAPIDAPI_KEY",
	"SIGNALLY_OPENWEATHER_KEY", "OPENWEATHERMAP_API_KEY",
	"SIGNALLY_CITY", "CITY_NAME",
}

// isolate points HOME at a temp dir and clears every variable Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SIGNALLY_DOTENV", "off")
	for _, name := range secretEnv {
		t.Setenv(name, "")
	}
	return home
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Schedule.Tick != time.Second {
		t.Errorf("Schedule.Tick = %v, want 1s", cfg.Schedule.Tick)
	}
	if cfg.Schedule.FetchTimeout > cfg.Schedule.Tick {
		t.Errorf("FetchTimeout %v exceeds Tick %v", cfg.Schedule.FetchTimeout, cfg.Schedule.Tick)
	}
	if cfg.Schedule.ClockDuration != 30*time.Second {
		t.Errorf("ClockDuration = %v, want 30s", cfg.Schedule.ClockDuration)
	}
	if len(cfg.Schedule.Slots) != 3 {
		t.Fatalf("len(Slots) = %d, want 3", len(cfg.Schedule.Slots))
	}
	if cfg.Display.Kind != "console" {
		t.Errorf("Display.Kind = %q, want console", cfg.Display.Kind)
	}

	av, ok := cfg.Provider("alphavantage")
	if !ok {
		t.Fatal("alphavantage provider missing")
	}
	if av.DailyQuota != 25 || av.Policy != "fixed" || av.MinInterval != 20*time.Minute {
		t.Errorf("alphavantage preset not applied: %+v", av)
	}
	if av.WindowStart != "08:30" || av.WindowEnd != "13:00" {
		t.Errorf("alphavantage window = %s-%s", av.WindowStart, av.WindowEnd)
	}

	yahoo, _ := cfg.Provider("yahoo")
	if yahoo.Policy != "spread" || yahoo.DailyQuota != 30 {
		t.Errorf("yahoo preset not applied: %+v", yahoo)
	}

	weather, _ := cfg.Provider("openweather")
	if weather.Units != "imperial" || weather.DailyQuota != 1000 {
		t.Errorf("openweather preset not applied: %+v", weather)
	}
}

func TestPresets(t *testing.T) {
	kinds := PresetKinds()
	want := []string{KindAlphaVantage, KindHeadlines, KindOpenWeather, KindYahooRapid}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("PresetKinds() = %v, want %v", kinds, want)
	}

	pc := ProviderConfig{ID: "w", Kind: KindOpenWeather, DailyQuota: 50}
	presets, err := Presets()
	if err != nil {
		t.Fatalf("Presets() error = %v", err)
	}
	if err := applyPreset(&pc, presets); err != nil {
		t.Fatalf("applyPreset() error = %v", err)
	}
	if pc.DailyQuota != 50 {
		t.Errorf("explicit quota overwritten: %d", pc.DailyQuota)
	}
	if pc.MinInterval != 10*time.Minute || pc.CacheTTL != 30*time.Minute {
		t.Errorf("durations not parsed: interval=%v ttl=%v", pc.MinInterval, pc.CacheTTL)
	}
}

func TestLoad_DefaultConfig(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Schedule.WeatherProvider != "openweather" {
		t.Errorf("WeatherProvider = %q", cfg.Schedule.WeatherProvider)
	}
	av, ok := cfg.Provider("alphavantage")
	if !ok || av.DailyQuota != 25 {
		t.Errorf("alphavantage = %+v", av)
	}
	if av.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", av.APIKey)
	}
	if !filepath.IsAbs(cfg.Storage.Path) {
		t.Errorf("Storage.Path not absolute: %s", cfg.Storage.Path)
	}
}

func TestLoad_FromFile(t *testing.T) {
	isolate(t)
	t.Setenv("SIGNALLY_TEST_STOCK_KEY", "abc123")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `
[display]
kind = "plain"

[schedule]
tick = "2s"
fetch_timeout = "1500ms"
weather_provider = "wx"

[[schedule.slots]]
kind = "data"
provider = "stocks"
duration = "20s"
keys = ["IBM"]

[[providers]]
id = "stocks"
kind = "alphavantage"
api_key_env = ["SIGNALLY_TEST_STOCK_KEY"]
window_start = "09:00"

[[providers]]
id = "wx"
kind = "openweather"
api_key = "wx-key"
city = "Oslo"
units = "metric"

[log]
level = "debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Display.Kind != "plain" {
		t.Errorf("Display.Kind = %q, want plain", cfg.Display.Kind)
	}
	if cfg.Schedule.Tick != 2*time.Second || cfg.Schedule.FetchTimeout != 1500*time.Millisecond {
		t.Errorf("tick=%v fetch_timeout=%v", cfg.Schedule.Tick, cfg.Schedule.FetchTimeout)
	}
	if len(cfg.Schedule.Slots) != 1 || cfg.Schedule.Slots[0].Duration != 20*time.Second {
		t.Errorf("Slots = %+v", cfg.Schedule.Slots)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(cfg.Providers))
	}

	stocks, _ := cfg.Provider("stocks")
	if stocks.APIKey != "abc123" {
		t.Errorf("APIKey = %q, want abc123", stocks.APIKey)
	}
	if stocks.WindowStart != "09:00" || stocks.WindowEnd != "13:00" {
		t.Errorf("window = %s-%s, want 09:00-13:00", stocks.WindowStart, stocks.WindowEnd)
	}
	if stocks.DailyQuota != 25 {
		t.Errorf("DailyQuota = %d, want preset 25", stocks.DailyQuota)
	}

	wx, _ := cfg.Provider("wx")
	if wx.City != "Oslo" || wx.Units != "metric" {
		t.Errorf("wx = %+v", wx)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("SIGNALLY_LOG_LEVEL", "warn")
	t.Setenv("SIGNALLY_DISPLAY_KIND", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Display.Kind != "memory" {
		t.Errorf("Display.Kind = %q, want memory", cfg.Display.Kind)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	t.Setenv("SIGNALLY_DOTENV", "")
	const name = "SIGNALLY_TEST_DOTENV_CITY"
	t.Cleanup(func() { os.Unsetenv(name) })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(name+"=Lisbon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.toml")
	content := `
[[providers]]
id = "openweather"
kind = "openweather"
city_env = ["` + name + `"]
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	wx, _ := cfg.Provider("openweather")
	if wx.City != "Lisbon" {
		t.Errorf("City = %q, want Lisbon", wx.City)
	}
}

func TestLoadDotEnv_Disabled(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SIGNALLY_TEST_UNUSED=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SIGNALLY_DOTENV", "off")

	loaded, err := LoadDotEnv(dir)
	if err != nil || len(loaded) != 0 {
		t.Errorf("LoadDotEnv() = %v, %v; want nothing loaded", loaded, err)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[schedule\ntick ="), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); !errors.Is(err, ErrConfig) {
		t.Errorf("Load() error = %v, want ErrConfig", err)
	}
}

func TestSave(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sub", "config.toml")

	cfg := TestConfig(dir)
	cfg.Schedule.Tick = 3 * time.Second
	cfg.Metrics.Bind = "127.0.0.1:9300"
	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if strings.Contains(string(raw), "test-key") {
		t.Error("saved config contains an API key")
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Schedule.Tick != 3*time.Second {
		t.Errorf("Tick = %v, want 3s", loaded.Schedule.Tick)
	}
	if loaded.Metrics.Bind != "127.0.0.1:9300" {
		t.Errorf("Metrics.Bind = %q", loaded.Metrics.Bind)
	}
	if len(loaded.Schedule.Slots) != len(cfg.Schedule.Slots) {
		t.Errorf("len(Slots) = %d, want %d", len(loaded.Schedule.Slots), len(cfg.Schedule.Slots))
	}
	if loaded.Display.Kind != "memory" {
		t.Errorf("Display.Kind = %q", loaded.Display.Kind)
	}
	av, _ := loaded.Provider("alphavantage")
	if av.MinInterval != 20*time.Minute || av.APIKey != "" {
		t.Errorf("alphavantage = %+v", av)
	}
	if len(loaded.Fallback.Historical) != len(cfg.Fallback.Historical) {
		t.Errorf("Historical = %v", loaded.Fallback.Historical)
	}
}

func TestGenerateDefaultConfig(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "config.toml")

	if err := GenerateDefaultConfig(configPath); err != nil {
		t.Fatalf("GenerateDefaultConfig() error = %v", err)
	}
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Providers) != 3 {
		t.Errorf("len(Providers) = %d, want 3", len(cfg.Providers))
	}
}

func TestValidate(t *testing.T) {
	if err := TestConfig(t.TempDir()).Validate(); err != nil {
		t.Fatalf("TestConfig().Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"fetch timeout over tick", func(c *Config) { c.Schedule.FetchTimeout = 2 * time.Second }, "must not exceed schedule.tick"},
		{"unknown display", func(c *Config) { c.Display.Kind = "lcd" }, "display.kind"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"missing key", func(c *Config) { c.Providers[0].APIKey = "" }, "api key missing"},
		{"missing city", func(c *Config) { c.Providers[2].City = "" }, "city missing"},
		{"local endpoint", func(c *Config) { c.Providers[0].BaseURL = "http://127.0.0.1/q" }, "base_url"},
		{"fixed without interval", func(c *Config) { c.Providers[1].Policy = "fixed"; c.Providers[1].MinInterval = 0 }, "positive min_interval"},
		{"window crosses midnight", func(c *Config) { c.Providers[0].WindowStart = "22:00"; c.Providers[0].WindowEnd = "02:00" }, "window"},
		{"duplicate provider", func(c *Config) { c.Providers = append(c.Providers, c.Providers[0]) }, "duplicate id"},
		{"unknown slot provider", func(c *Config) { c.Schedule.Slots[0].Provider = "nope" }, "unknown or disabled provider"},
		{"disabled weather", func(c *Config) { c.Providers[2].Disabled = true }, "weather_provider"},
		{"unknown category", func(c *Config) { c.Schedule.Slots[0].Fallback = []string{"jokes"} }, "jokes"},
		{"empty pool file", func(c *Config) {
			p := filepath.Join(t.TempDir(), "empty.txt")
			_ = os.WriteFile(p, nil, 0o600)
			c.Fallback.WellnessFile = p
		}, "no messages"},
		{"rotate hour", func(c *Config) { c.History.RotateHour = 24 }, "rotate_hour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TestConfig(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("Validate() error = %v, want ErrConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := TestConfig(t.TempDir())
	cfg.Display.Kind = "lcd"
	cfg.Log.Level = "loud"
	cfg.Schedule.Tick = 0

	err := cfg.Validate()
	for _, want := range []string{"display.kind", "log.level", "schedule.tick"} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, want mention of %q", err, want)
		}
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := TestConfig(t.TempDir())
	cfg.Providers = append(cfg.Providers, ProviderConfig{
		ID:       "news",
		Kind:     KindHeadlines,
		BaseURL:  "https://example.com/feed.xml",
		Disabled: true,
	})
	presets, _ := Presets()
	_ = applyPreset(&cfg.Providers[3], presets)

	reg, err := cfg.BuildRegistry(provider.NewClient(time.Second, "test"))
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	if len(reg.List()) != 3 {
		t.Errorf("len(List()) = %d, want 3 (disabled provider skipped)", len(reg.List()))
	}
	if reg.Get("news") != nil {
		t.Error("disabled provider registered")
	}
	av := reg.Get("alphavantage")
	if av == nil {
		t.Fatal("alphavantage not registered")
	}
	if got := av.Descriptor().Window.String(); got != "08:30-13:00" {
		t.Errorf("window = %s", got)
	}
}

func TestBuildPoolAndFallbackEntries(t *testing.T) {
	dir := t.TempDir()
	cfg := TestConfig(dir)
	file := filepath.Join(dir, "positive.txt")
	if err := os.WriteFile(file, []byte("# comment\nFrom a file\n\nAnother one\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Fallback.PositiveFile = file

	entries, err := cfg.FallbackEntries()
	if err != nil {
		t.Fatalf("FallbackEntries() error = %v", err)
	}
	if n := len(entries[fallback.Positive]); n != len(cfg.Fallback.Positive)+2 {
		t.Errorf("positive entries = %d, want inline plus 2", n)
	}

	pool, err := cfg.BuildPool(NewRandom())
	if err != nil {
		t.Fatalf("BuildPool() error = %v", err)
	}
	if pool.Size(fallback.Historical) != 2 {
		t.Errorf("historical size = %d, want 2", pool.Size(fallback.Historical))
	}

	cfg.Fallback.Historical = nil
	if _, err := cfg.BuildPool(NewRandom()); !errors.Is(err, ErrConfig) {
		t.Errorf("BuildPool() with empty required category error = %v", err)
	}
}

func TestBuildSlots(t *testing.T) {
	dir := t.TempDir()
	cfg := TestConfig(dir)
	keysFile := filepath.Join(dir, "symbols.txt")
	if err := os.WriteFile(keysFile, []byte("TSLA\nNVDA\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Schedule.Slots[0].KeysFile = keysFile

	slots, err := cfg.BuildSlots()
	if err != nil {
		t.Fatalf("BuildSlots() error = %v", err)
	}
	kinds := make([]scheduler.SlotKind, len(slots))
	for i, s := range slots {
		kinds[i] = s.Kind
	}
	want := []scheduler.SlotKind{scheduler.KindClock, scheduler.KindData, scheduler.KindData, scheduler.KindMessage, scheduler.KindWeather}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("slot %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}
	if got := len(slots[1].Keys); got != 6 {
		t.Errorf("len(Keys) = %d, want 4 inline plus 2 from file", got)
	}
	if slots[4].ProviderID != "openweather" || slots[4].Duration != 15*time.Second {
		t.Errorf("weather slot = %+v", slots[4])
	}
	if slots[0].Duration != 30*time.Second {
		t.Errorf("clock duration = %v", slots[0].Duration)
	}
}
