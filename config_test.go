package neuralmem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dimensions != 768 {
		t.Errorf("expected 768 dimensions, got %d", cfg.Dimensions)
	}
	if cfg.BridgeThreshold != 0.85 {
		t.Errorf("expected bridge threshold 0.85, got %f", cfg.BridgeThreshold)
	}
	if cfg.SuccessWeight+cfg.UsageWeight+cfg.BridgeWeight != 1.0 {
		t.Errorf("expected weights to sum to 1, got %f",
			cfg.SuccessWeight+cfg.UsageWeight+cfg.BridgeWeight)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neuralmem.yml")
	data := []byte("dimensions: 384\nbridge_threshold: 0.9\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Dimensions != 384 {
		t.Errorf("expected 384 dimensions, got %d", cfg.Dimensions)
	}
	if cfg.BridgeThreshold != 0.9 {
		t.Errorf("expected bridge threshold 0.9, got %f", cfg.BridgeThreshold)
	}
	if cfg.BridgeNeighbors != 5 {
		t.Errorf("expected default neighbors 5, got %d", cfg.BridgeNeighbors)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("NEURALMEM_DIMENSIONS", "128")
	t.Setenv("NEURALMEM_BRIDGE_THRESHOLD", "0.75")
	t.Setenv("NEURALMEM_SUCCESS_WEIGHT", "0.6")
	t.Setenv("NEURALMEM_USAGE_WEIGHT", "0.25")
	t.Setenv("NEURALMEM_BRIDGE_WEIGHT", "0.15")
	t.Setenv("NEURALMEM_RELATIONSHIP_STEP", "0.2")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Dimensions != 128 {
		t.Errorf("expected 128 dimensions, got %d", cfg.Dimensions)
	}
	if cfg.BridgeThreshold != 0.75 {
		t.Errorf("expected bridge threshold 0.75, got %f", cfg.BridgeThreshold)
	}
	if cfg.SuccessWeight != 0.6 || cfg.UsageWeight != 0.25 || cfg.BridgeWeight != 0.15 {
		t.Errorf("expected overridden weights, got %f/%f/%f",
			cfg.SuccessWeight, cfg.UsageWeight, cfg.BridgeWeight)
	}
	if cfg.RelationshipStep != 0.2 {
		t.Errorf("expected relationship step 0.2, got %f", cfg.RelationshipStep)
	}
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("NEURALMEM_DIMENSIONS", "not-a-number")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error for malformed NEURALMEM_DIMENSIONS")
	}
}
