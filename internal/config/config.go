package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pders01/signally/internal/provider"
	"github.com/pders01/signally/internal/validation"
)

type Config struct {
	Display   DisplayConfig    `mapstructure:"display"`
	Schedule  ScheduleConfig   `mapstructure:"schedule"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Fallback  FallbackConfig   `mapstructure:"fallback"`
	History   HistoryConfig    `mapstructure:"history"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Log       LogConfig        `mapstructure:"log"`
}

type DisplayConfig struct {
	// Kind is console, plain or memory.
	Kind         string        `mapstructure:"kind"`
	Retries      int           `mapstructure:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Intro        IntroConfig   `mapstructure:"intro"`
}

type IntroConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Line1   string        `mapstructure:"line1"`
	Line2   string        `mapstructure:"line2"`
	Step    time.Duration `mapstructure:"step"`
	Hold    time.Duration `mapstructure:"hold"`
}

type ScheduleConfig struct {
	Tick                time.Duration `mapstructure:"tick"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	UserAgent           string        `mapstructure:"user_agent"`
	ClockDuration       time.Duration `mapstructure:"clock_duration"`
	WeatherDuration     time.Duration `mapstructure:"weather_duration"`
	WeatherProvider     string        `mapstructure:"weather_provider"`
	WeatherFallback     []string      `mapstructure:"weather_fallback"`
	Slots               []SlotConfig  `mapstructure:"slots"`
}

// SlotConfig is one middle slot of the rotation.
type SlotConfig struct {
	// Kind is data or message.
	Kind     string        `mapstructure:"kind"`
	Provider string        `mapstructure:"provider"`
	Duration time.Duration `mapstructure:"duration"`
	Keys     []string      `mapstructure:"keys"`
	KeysFile string        `mapstructure:"keys_file"`
	Fallback []string      `mapstructure:"fallback"`
}

type ProviderConfig struct {
	ID          string        `mapstructure:"id"`
	Kind        string        `mapstructure:"kind"`
	Disabled    bool          `mapstructure:"disabled"`
	Priority    int           `mapstructure:"priority"`
	BaseURL     string        `mapstructure:"base_url"`
	AllowLocal  bool          `mapstructure:"allow_local"`
	APIKey      string        `mapstructure:"api_key"`
	APIKeyEnv   []string      `mapstructure:"api_key_env"`
	DailyQuota  int           `mapstructure:"daily_quota"`
	Policy      string        `mapstructure:"policy"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	WindowStart string        `mapstructure:"window_start"`
	WindowEnd   string        `mapstructure:"window_end"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	City        string        `mapstructure:"city"`
	CityEnv     []string      `mapstructure:"city_env"`
	Units       string        `mapstructure:"units"`
}

// FallbackConfig lists the canned messages. Inline entries and file
// entries of the same category are merged.
type FallbackConfig struct {
	Positive       []string `mapstructure:"positive"`
	Wellness       []string `mapstructure:"wellness"`
	Historical     []string `mapstructure:"historical"`
	PositiveFile   string   `mapstructure:"positive_file"`
	WellnessFile   string   `mapstructure:"wellness_file"`
	HistoricalFile string   `mapstructure:"historical_file"`
}

type HistoryConfig struct {
	TextLog    string `mapstructure:"text_log"`
	HTMLLog    string `mapstructure:"html_log"`
	Index      string `mapstructure:"index"`
	IndexBatch int    `mapstructure:"index_batch"`
	RotateDays int    `mapstructure:"rotate_days"`
	RotateHour int    `mapstructure:"rotate_hour"`
}

type StorageConfig struct {
	Path         string        `mapstructure:"path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PersistState bool          `mapstructure:"persist_state"`
}

type MetricsConfig struct {
	// Bind is the listen address of the metrics endpoint. Empty disables it.
	Bind string `mapstructure:"bind"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".signally")

	cfg := &Config{
		Display: DisplayConfig{
			Kind:         "console",
			Retries:      3,
			RetryBackoff: 200 * time.Millisecond,
			Intro: IntroConfig{
				Enabled: true,
				Line1:   "Signally",
				Line2:   "LCD",
				Step:    100 * time.Millisecond,
				Hold:    5 * time.Second,
			},
		},
		Schedule: ScheduleConfig{
			Tick:                time.Second,
			FetchTimeout:        time.Second,
			MaintenanceInterval: time.Minute,
			UserAgent:           provider.DefaultUserAgent,
			ClockDuration:       30 * time.Second,
			WeatherDuration:     15 * time.Second,
			WeatherProvider:     "openweather",
			WeatherFallback:     []string{"positive", "wellness"},
			Slots: []SlotConfig{
				{
					Kind:     "data",
					Provider: "alphavantage",
					Duration: 15 * time.Second,
					Keys:     []string{"AAPL", "MSFT", "GOOGL", "AMZN"},
					Fallback: []string{"positive", "wellness"},
				},
				{
					Kind:     "data",
					Provider: "yahoo",
					Duration: 15 * time.Second,
					Keys:     []string{"AAPL", "MSFT", "GOOGL", "AMZN"},
					Fallback: []string{"positive", "wellness"},
				},
				{
					Kind:     "message",
					Duration: 25 * time.Second,
					Fallback: []string{"positive", "wellness", "historical"},
				},
			},
		},
		Providers: []ProviderConfig{
			{ID: "alphavantage", Kind: KindAlphaVantage, Priority: 20},
			{ID: "yahoo", Kind: KindYahooRapid, Priority: 10},
			{ID: "openweather", Kind: KindOpenWeather},
		},
		Fallback: FallbackConfig{
			Positive: []string{
				"Keep going!",
				"You've got this",
				"Make it count",
			},
			Wellness: []string{
				"Drink some water",
				"Stretch a little",
				"Take a deep breath",
			},
			Historical: []string{
				`1969: Moon walk\nApollo 11`,
				"1903: First flight | Wright brothers",
			},
		},
		History: HistoryConfig{
			TextLog:    filepath.Join(dataDir, "display.txt"),
			HTMLLog:    filepath.Join(dataDir, "display.html"),
			Index:      filepath.Join(dataDir, "history.bleve"),
			IndexBatch: 64,
			RotateDays: 2,
			RotateHour: 2,
		},
		Storage: StorageConfig{
			Path:         filepath.Join(dataDir, "state.db"),
			Timeout:      time.Second,
			PersistState: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if presets, err := Presets(); err == nil {
		for i := range cfg.Providers {
			_ = applyPreset(&cfg.Providers[i], presets)
		}
	}
	return cfg
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("display.kind", cfg.Display.Kind)
	v.SetDefault("display.retries", cfg.Display.Retries)
	v.SetDefault("display.retry_backoff", cfg.Display.RetryBackoff)
	v.SetDefault("display.intro.enabled", cfg.Display.Intro.Enabled)
	v.SetDefault("display.intro.line1", cfg.Display.Intro.Line1)
	v.SetDefault("display.intro.line2", cfg.Display.Intro.Line2)
	v.SetDefault("display.intro.step", cfg.Display.Intro.Step)
	v.SetDefault("display.intro.hold", cfg.Display.Intro.Hold)

	v.SetDefault("schedule.tick", cfg.Schedule.Tick)
	v.SetDefault("schedule.fetch_timeout", cfg.Schedule.FetchTimeout)
	v.SetDefault("schedule.maintenance_interval", cfg.Schedule.MaintenanceInterval)
	v.SetDefault("schedule.user_agent", cfg.Schedule.UserAgent)
	v.SetDefault("schedule.clock_duration", cfg.Schedule.ClockDuration)
	v.SetDefault("schedule.weather_duration", cfg.Schedule.WeatherDuration)
	v.SetDefault("schedule.weather_provider", cfg.Schedule.WeatherProvider)
	v.SetDefault("schedule.weather_fallback", cfg.Schedule.WeatherFallback)
	v.SetDefault("schedule.slots", cfg.Schedule.Slots)

	v.SetDefault("providers", cfg.Providers)
	v.SetDefault("fallback.positive", cfg.Fallback.Positive)
	v.SetDefault("fallback.wellness", cfg.Fallback.Wellness)
	v.SetDefault("fallback.historical", cfg.Fallback.Historical)
	v.SetDefault("fallback.positive_file", cfg.Fallback.PositiveFile)
	v.SetDefault("fallback.wellness_file", cfg.Fallback.WellnessFile)
	v.SetDefault("fallback.historical_file", cfg.Fallback.HistoricalFile)

	v.SetDefault("history.text_log", cfg.History.TextLog)
	v.SetDefault("history.html_log", cfg.History.HTMLLog)
	v.SetDefault("history.index", cfg.History.Index)
	v.SetDefault("history.index_batch", cfg.History.IndexBatch)
	v.SetDefault("history.rotate_days", cfg.History.RotateDays)
	v.SetDefault("history.rotate_hour", cfg.History.RotateHour)

	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.timeout", cfg.Storage.Timeout)
	v.SetDefault("storage.persist_state", cfg.Storage.PersistState)

	v.SetDefault("metrics.bind", cfg.Metrics.Bind)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

// DefaultPath returns the config file looked up when none is given.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "signally", "config.toml")
}

// Load reads the config file, dotenv files and SIGNALLY_* environment
// overrides on top of the defaults. It does not validate; call Validate.
func Load(configPath string) (*Config, error) {
	envDirs := []string{"."}
	if configPath != "" {
		envDirs = append(envDirs, filepath.Dir(configPath))
	} else {
		envDirs = append(envDirs, filepath.Dir(DefaultPath()))
	}
	if _, err := LoadDotEnv(envDirs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SIGNALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: reading config: %w", ErrConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling config: %w", ErrConfig, err)
	}

	if err := finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish expands paths, applies provider presets and resolves secrets from
// the environment.
func finish(cfg *Config) error {
	if err := expandPaths(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	presets, err := Presets()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	for i := range cfg.Providers {
		if err := applyPreset(&cfg.Providers[i], presets); err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		resolveSecrets(&cfg.Providers[i])
	}
	return nil
}

func expandPaths(cfg *Config) error {
	paths := []*string{
		&cfg.History.TextLog,
		&cfg.History.HTMLLog,
		&cfg.History.Index,
		&cfg.Storage.Path,
		&cfg.Log.File,
		&cfg.Fallback.PositiveFile,
		&cfg.Fallback.WellnessFile,
		&cfg.Fallback.HistoricalFile,
	}
	for i := range cfg.Schedule.Slots {
		paths = append(paths, &cfg.Schedule.Slots[i].KeysFile)
	}

	for _, p := range paths {
		expanded, err := validation.ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// Provider returns the provider config with the given id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, pc := range c.Providers {
		if pc.ID == id {
			return pc, true
		}
	}
	return ProviderConfig{}, false
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations are written as strings for TOML readability.
	v.Set("display", map[string]interface{}{
		"kind":          config.Display.Kind,
		"retries":       config.Display.Retries,
		"retry_backoff": config.Display.RetryBackoff.String(),
		"intro": map[string]interface{}{
			"enabled": config.Display.Intro.Enabled,
			"line1":   config.Display.Intro.Line1,
			"line2":   config.Display.Intro.Line2,
			"step":    config.Display.Intro.Step.String(),
			"hold":    config.Display.Intro.Hold.String(),
		},
	})

	slots := make([]map[string]interface{}, 0, len(config.Schedule.Slots))
	for _, s := range config.Schedule.Slots {
		m := map[string]interface{}{
			"kind":     s.Kind,
			"duration": s.Duration.String(),
			"fallback": s.Fallback,
		}
		if s.Provider != "" {
			m["provider"] = s.Provider
		}
		if len(s.Keys) > 0 {
			m["keys"] = s.Keys
		}
		if s.KeysFile != "" {
			m["keys_file"] = s.KeysFile
		}
		slots = append(slots, m)
	}
	v.Set("schedule", map[string]interface{}{
		"tick":                 config.Schedule.Tick.String(),
		"fetch_timeout":        config.Schedule.FetchTimeout.String(),
		"maintenance_interval": config.Schedule.MaintenanceInterval.String(),
		"user_agent":           config.Schedule.UserAgent,
		"clock_duration":       config.Schedule.ClockDuration.String(),
		"weather_duration":     config.Schedule.WeatherDuration.String(),
		"weather_provider":     config.Schedule.WeatherProvider,
		"weather_fallback":     config.Schedule.WeatherFallback,
		"slots":                slots,
	})

	providers := make([]map[string]interface{}, 0, len(config.Providers))
	for _, pc := range config.Providers {
		m := map[string]interface{}{
			"id":           pc.ID,
			"kind":         pc.Kind,
			"priority":     pc.Priority,
			"base_url":     pc.BaseURL,
			"daily_quota":  pc.DailyQuota,
			"policy":       pc.Policy,
			"min_interval": pc.MinInterval.String(),
			"window_start": pc.WindowStart,
			"window_end":   pc.WindowEnd,
			"cache_ttl":    pc.CacheTTL.String(),
		}
		// Secrets stay in the environment; only the variable names are saved.
		if len(pc.APIKeyEnv) > 0 {
			m["api_key_env"] = pc.APIKeyEnv
		}
		if len(pc.CityEnv) > 0 {
			m["city_env"] = pc.CityEnv
		}
		if pc.Units != "" {
			m["units"] = pc.Units
		}
		if pc.Disabled {
			m["disabled"] = true
		}
		if pc.AllowLocal {
			m["allow_local"] = true
		}
		providers = append(providers, m)
	}
	v.Set("providers", providers)

	v.Set("fallback", map[string]interface{}{
		"positive":        config.Fallback.Positive,
		"wellness":        config.Fallback.Wellness,
		"historical":      config.Fallback.Historical,
		"positive_file":   config.Fallback.PositiveFile,
		"wellness_file":   config.Fallback.WellnessFile,
		"historical_file": config.Fallback.HistoricalFile,
	})
	v.Set("history", map[string]interface{}{
		"text_log":    config.History.TextLog,
		"html_log":    config.History.HTMLLog,
		"index":       config.History.Index,
		"index_batch": config.History.IndexBatch,
		"rotate_days": config.History.RotateDays,
		"rotate_hour": config.History.RotateHour,
	})
	v.Set("storage", map[string]interface{}{
		"path":          config.Storage.Path,
		"timeout":       config.Storage.Timeout.String(),
		"persist_state": config.Storage.PersistState,
	})
	v.Set("metrics", map[string]interface{}{"bind": config.Metrics.Bind})
	v.Set("log", map[string]interface{}{
		"level": config.Log.Level,
		"file":  config.Log.File,
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
