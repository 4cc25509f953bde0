package attention

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries the process-wide knobs the core consults at call time.
// It is passed explicitly into every forward call rather than read from
// ambient global state, so concurrent callers can run with different
// settings and tests can exercise both paths.
type Config struct {
	// Deterministic forces the primitive into single-split execution for
	// bitwise-reproducible results across runs, trading performance.
	Deterministic bool `yaml:"deterministic"`

	// Seed is the initial generator seed for embedders that construct their
	// generator from config.
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns the default runtime configuration: automatic split
// selection and a zero seed.
func DefaultConfig() Config {
	return Config{}
}

// LoadConfig reads a Config from a YAML file. A missing file is not an
// error; it yields the defaults so embedders can ship without a config.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
