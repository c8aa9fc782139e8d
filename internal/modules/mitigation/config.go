package mitigation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config selects the mitigation stages for one Mitigate call.
type Config struct {
	Readout       bool `yaml:"readout_error_mitigation"`
	Unfolding     bool `yaml:"iterative_bayesian_unfolding"`
	Extrapolation bool `yaml:"zero_noise_extrapolation"`
	// Equalization only applies together with Extrapolation.
	Equalization bool `yaml:"equalization"`
	// UseCalibrationCache lets readout mitigation reuse stored calibrations.
	UseCalibrationCache bool `yaml:"use_calibration_cache"`
}

// DefaultConfig returns a config with every stage off and caching on.
func DefaultConfig() Config {
	return Config{UseCalibrationCache: true}
}

// Method returns the label prefix for the stages cfg selects.
func (c Config) Method() string {
	switch {
	case c.Extrapolation && c.Equalization:
		return "zne-eq"
	case c.Extrapolation:
		return "zne"
	case c.Readout && c.Unfolding:
		return "rem-ibu"
	case c.Readout:
		return "rem"
	case c.Unfolding:
		return "ibu"
	default:
		return "raw"
	}
}

// ParseConfig decodes a YAML mitigation profile. Keys left out keep their
// DefaultConfig values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse mitigation config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a YAML mitigation profile from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read mitigation config: %w", err)
	}
	return ParseConfig(data)
}
