package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env.local and .env from each directory, in order.
// Variables already set in the environment are kept. It returns the files
// that were loaded. Setting SIGNALLY_DOTENV to off disables it.
func LoadDotEnv(dirs ...string) ([]string, error) {
	if dotEnvDisabled() {
		return nil, nil
	}

	var loaded []string
	seen := make(map[string]bool)
	for _, dir := range dirs {
		for _, name := range []string{".env.local", ".env"} {
			p := filepath.Clean(filepath.Join(dir, name))
			if seen[p] {
				continue
			}
			seen[p] = true

			if err := godotenv.Load(p); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return loaded, fmt.Errorf("loading %s: %w", p, err)
			}
			loaded = append(loaded, p)
		}
	}
	return loaded, nil
}

func dotEnvDisabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("SIGNALLY_DOTENV"))) {
	case "0", "false", "off", "no":
		return true
	default:
		return false
	}
}
