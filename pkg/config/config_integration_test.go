package config_test

import (
	"os"
	"testing"

	"github.com/fluxorio/relay/pkg/config"
)

// TestListenerConfigWithEnvOverrides exercises the same Load-then-env
// path cmd/relayserver uses for its ServerConfig, end to end through
// the public package API rather than the internal tests in config_test.go.
func TestListenerConfigWithEnvOverrides(t *testing.T) {
	yamlContent := `
network: "unix"
address: "marshal_adder"
mailbox_size: 1024
metrics_addr: ":9101"
`
	tmpFile := "listener_integration.yaml"
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile)

	os.Setenv("RELAY_NETWORK", "tcp")
	os.Setenv("RELAY_MAILBOXSIZE", "2048")
	defer os.Unsetenv("RELAY_NETWORK")
	defer os.Unsetenv("RELAY_MAILBOXSIZE")

	type testConfig struct {
		Network     string `yaml:"network"`
		Address     string `yaml:"address"`
		MailboxSize int    `yaml:"mailbox_size"`
		MetricsAddr string `yaml:"metrics_addr"`
	}

	var cfg testConfig
	if err := config.LoadWithEnv(tmpFile, "RELAY", &cfg); err != nil {
		t.Fatalf("LoadWithEnv failed: %v", err)
	}

	if cfg.Network != "tcp" {
		t.Errorf("Network = %v, want tcp (env override)", cfg.Network)
	}
	if cfg.MailboxSize != 2048 {
		t.Errorf("MailboxSize = %v, want 2048 (env override)", cfg.MailboxSize)
	}
	// No RELAY_ADDRESS set: file value survives.
	if cfg.Address != "marshal_adder" {
		t.Errorf("Address = %v, want marshal_adder", cfg.Address)
	}
}
