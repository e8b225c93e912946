package retrieval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/incuisenix/backend/internal/pkg/envutil"
)

// Config carries the fusion weights and per-source retrieval depths.
// The defaults are the empirically chosen production values; they are
// tunable, not load-bearing.
type Config struct {
	Weights struct {
		Transcript float64 `yaml:"transcript"`
		Notes      float64 `yaml:"notes"`
		OCR        float64 `yaml:"ocr"`
		// Split applied when exactly two sources are available, in
		// priority order transcript > notes > ocr.
		TwoWayPrimary   float64 `yaml:"two_way_primary"`
		TwoWaySecondary float64 `yaml:"two_way_secondary"`
	} `yaml:"weights"`
	K struct {
		Transcript int `yaml:"transcript"`
		Notes      int `yaml:"notes"`
		OCR        int `yaml:"ocr"`
	} `yaml:"k"`
}

func DefaultConfig() Config {
	var cfg Config
	cfg.Weights.Transcript = 0.5
	cfg.Weights.Notes = 0.3
	cfg.Weights.OCR = 0.2
	cfg.Weights.TwoWayPrimary = 0.6
	cfg.Weights.TwoWaySecondary = 0.4
	cfg.K.Transcript = 3
	cfg.K.Notes = 5
	cfg.K.OCR = 3
	return cfg
}

// ConfigFromEnv loads overrides from the YAML file named by
// RETRIEVAL_CONFIG_PATH, falling back to the defaults when unset.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	path := envutil.String("RETRIEVAL_CONFIG_PATH", "")
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read retrieval config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse retrieval config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Weights.Transcript <= 0 || c.Weights.Notes <= 0 || c.Weights.OCR <= 0 {
		return fmt.Errorf("fusion weights must be positive")
	}
	if c.Weights.TwoWayPrimary <= 0 || c.Weights.TwoWaySecondary <= 0 {
		return fmt.Errorf("two-way fusion weights must be positive")
	}
	if c.K.Transcript <= 0 || c.K.Notes <= 0 || c.K.OCR <= 0 {
		return fmt.Errorf("retrieval k values must be positive")
	}
	return nil
}
