package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Provider kinds with built-in implementations.
const (
	KindAlphaVantage = "alphavantage"
	KindYahooRapid   = "yahoo_rapidapi"
	KindOpenWeather  = "openweather"
	KindHeadlines    = "headlines"
)

//go:embed presets.toml
var presetsTOML []byte

// Preset holds the defaults of one provider kind.
type Preset struct {
	BaseURL     string   `toml:"base_url"`
	DailyQuota  int      `toml:"daily_quota"`
	Policy      string   `toml:"policy"`
	MinInterval string   `toml:"min_interval"`
	WindowStart string   `toml:"window_start"`
	WindowEnd   string   `toml:"window_end"`
	CacheTTL    string   `toml:"cache_ttl"`
	Units       string   `toml:"units"`
	APIKeyEnv   []string `toml:"api_key_env"`
	CityEnv     []string `toml:"city_env"`
}

// Presets decodes the embedded preset table.
func Presets() (map[string]Preset, error) {
	presets := make(map[string]Preset)
	if err := toml.Unmarshal(presetsTOML, &presets); err != nil {
		return nil, fmt.Errorf("decoding presets: %w", err)
	}
	return presets, nil
}

// PresetKinds lists the provider kinds that have presets, sorted.
func PresetKinds() []string {
	presets, err := Presets()
	if err != nil {
		return nil
	}
	kinds := make([]string, 0, len(presets))
	for k := range presets {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// applyPreset fills the zero fields of pc from the preset of its kind.
func applyPreset(pc *ProviderConfig, presets map[string]Preset) error {
	p, ok := presets[pc.Kind]
	if !ok {
		return nil
	}

	if pc.BaseURL == "" {
		pc.BaseURL = p.BaseURL
	}
	if pc.DailyQuota == 0 {
		pc.DailyQuota = p.DailyQuota
	}
	if pc.Policy == "" {
		pc.Policy = p.Policy
	}
	if pc.WindowStart == "" {
		pc.WindowStart = p.WindowStart
	}
	if pc.WindowEnd == "" {
		pc.WindowEnd = p.WindowEnd
	}
	if pc.Units == "" {
		pc.Units = p.Units
	}
	if len(pc.APIKeyEnv) == 0 {
		pc.APIKeyEnv = p.APIKeyEnv
	}
	if len(pc.CityEnv) == 0 {
		pc.CityEnv = p.CityEnv
	}

	var err error
	if pc.MinInterval == 0 && p.MinInterval != "" {
		if pc.MinInterval, err = time.ParseDuration(p.MinInterval); err != nil {
			return fmt.Errorf("preset %s: min_interval: %w", pc.Kind, err)
		}
	}
	if pc.CacheTTL == 0 && p.CacheTTL != "" {
		if pc.CacheTTL, err = time.ParseDuration(p.CacheTTL); err != nil {
			return fmt.Errorf("preset %s: cache_ttl: %w", pc.Kind, err)
		}
	}
	return nil
}

// resolveSecrets reads the API key and city from the environment when the
// config leaves them empty. The first non-empty variable wins.
func resolveSecrets(pc *ProviderConfig) {
	if pc.APIKey == "" {
		pc.APIKey = firstEnv(pc.APIKeyEnv)
	}
	if pc.City == "" {
		pc.City = firstEnv(pc.CityEnv)
	}
}

func firstEnv(names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}
