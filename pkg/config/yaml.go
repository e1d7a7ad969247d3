package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads path and unmarshals it into target. This is the
// default format for cmd/relayserver's -config flag.
func LoadYAML(path string, target interface{}) error {
	// #nosec G304 -- path comes from the caller (a CLI flag or a
	// hardcoded default), not from untrusted network input.
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("config: decode YAML %s: %w", path, err)
	}
	return nil
}

// SaveYAML marshals config as YAML and writes it to path with
// owner-only permissions.
func SaveYAML(path string, config interface{}) error {
	raw, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("config: encode YAML: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
