package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadJSON reads path and unmarshals it into target.
func LoadJSON(path string, target interface{}) error {
	// #nosec G304 -- path comes from the caller (a CLI flag or a
	// hardcoded default), not from untrusted network input.
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("config: decode JSON %s: %w", path, err)
	}
	return nil
}

// SaveJSON marshals config as indented JSON and writes it to path with
// owner-only permissions, since relay configs can carry metrics/auth
// endpoints worth keeping off of shared filesystems.
func SaveJSON(path string, config interface{}) error {
	raw, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode JSON: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
