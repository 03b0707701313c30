package neuralmem

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the store's tunables. The bridge threshold and score weights
// come from observed defaults, not hard physics; override them per deployment.
type Config struct {
	Dimensions       int     `yaml:"dimensions"`
	BridgeThreshold  float64 `yaml:"bridge_threshold"`
	BridgeNeighbors  int     `yaml:"bridge_neighbors"`
	SuccessWeight    float64 `yaml:"success_weight"`
	UsageWeight      float64 `yaml:"usage_weight"`
	BridgeWeight     float64 `yaml:"bridge_weight"`
	RelationshipStep float64 `yaml:"relationship_step"`
}

func DefaultConfig() Config {
	return Config{
		Dimensions:       768,
		BridgeThreshold:  0.85,
		BridgeNeighbors:  5,
		SuccessWeight:    0.5,
		UsageWeight:      0.3,
		BridgeWeight:     0.2,
		RelationshipStep: 0.1,
	}
}

// LoadConfig reads tunables from an optional YAML file, then applies
// NEURALMEM_* environment overrides on top.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envInt("NEURALMEM_DIMENSIONS", &cfg.Dimensions); err != nil {
		return cfg, err
	}
	if err := envInt("NEURALMEM_BRIDGE_NEIGHBORS", &cfg.BridgeNeighbors); err != nil {
		return cfg, err
	}
	if err := envFloat("NEURALMEM_BRIDGE_THRESHOLD", &cfg.BridgeThreshold); err != nil {
		return cfg, err
	}
	if err := envFloat("NEURALMEM_SUCCESS_WEIGHT", &cfg.SuccessWeight); err != nil {
		return cfg, err
	}
	if err := envFloat("NEURALMEM_USAGE_WEIGHT", &cfg.UsageWeight); err != nil {
		return cfg, err
	}
	if err := envFloat("NEURALMEM_BRIDGE_WEIGHT", &cfg.BridgeWeight); err != nil {
		return cfg, err
	}
	if err := envFloat("NEURALMEM_RELATIONSHIP_STEP", &cfg.RelationshipStep); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func envFloat(name string, dst *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = f
	return nil
}

func (c Config) validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", c.Dimensions)
	}
	if c.BridgeNeighbors <= 0 {
		return fmt.Errorf("bridge_neighbors must be positive, got %d", c.BridgeNeighbors)
	}
	return nil
}
