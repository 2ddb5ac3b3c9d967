// Package config loads dyms's optional TOML configuration file, following
// the same pelletier/go-toml/v2 + struct-tag approach stackedboxes-romualdo
// uses for its own CLI settings.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable the CLI can source from a dyms.toml file,
// overridable by flags (see cmd/dyms).
type Config struct {
	VM struct {
		StressGC      bool `toml:"stress_gc"`
		Trace         bool `toml:"trace"`
		InitialHeapMB int  `toml:"initial_heap_mb"`
	} `toml:"vm"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var c Config
	c.VM.InitialHeapMB = 1
	return c
}

// Load reads and parses path, layering it over Default(). A missing file is
// not an error — callers get defaults back.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
