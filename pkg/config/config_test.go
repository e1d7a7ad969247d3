package config

import (
	"os"
	"testing"
)

// listenerConfig is a nested transport/pool shape, so these tests
// exercise dot-path validator lookups and the nested PREFIX_STRUCT_FIELD
// env-override naming. cmd/relayserver's own ServerConfig is flat; that
// shape is covered by config_integration_test.go.
type listenerConfig struct {
	Transport struct {
		Network string `yaml:"network" json:"network"`
		Address string `yaml:"address" json:"address"`
	} `yaml:"transport" json:"transport"`
	Pool struct {
		Workers   int `yaml:"workers" json:"workers"`
		QueueSize int `yaml:"queue_size" json:"queue_size"`
	} `yaml:"pool" json:"pool"`
}

func TestLoadYAML(t *testing.T) {
	yamlContent := `
transport:
  network: "unix"
  address: "marshal_adder"
pool:
  workers: 4
  queue_size: 256
`
	tmpFile := writeTemp(t, "listener.yaml", yamlContent)
	defer os.Remove(tmpFile)

	var cfg listenerConfig
	if err := LoadYAML(tmpFile, &cfg); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}

	if cfg.Transport.Network != "unix" {
		t.Errorf("Transport.Network = %v, want unix", cfg.Transport.Network)
	}
	if cfg.Pool.Workers != 4 {
		t.Errorf("Pool.Workers = %v, want 4", cfg.Pool.Workers)
	}
}

func TestLoadJSON(t *testing.T) {
	jsonContent := `{
  "transport": {"network": "tcp", "address": "localhost:9000"},
  "pool": {"workers": 8, "queue_size": 512}
}`
	tmpFile := writeTemp(t, "listener.json", jsonContent)
	defer os.Remove(tmpFile)

	var cfg listenerConfig
	if err := LoadJSON(tmpFile, &cfg); err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}

	if cfg.Transport.Network != "tcp" {
		t.Errorf("Transport.Network = %v, want tcp", cfg.Transport.Network)
	}
	if cfg.Pool.QueueSize != 512 {
		t.Errorf("Pool.QueueSize = %v, want 512", cfg.Pool.QueueSize)
	}
}

func TestLoadWithEnv(t *testing.T) {
	yamlContent := `
transport:
  network: "unix"
  address: "marshal_adder"
pool:
  workers: 4
  queue_size: 256
`
	tmpFile := writeTemp(t, "listener.yaml", yamlContent)
	defer os.Remove(tmpFile)

	os.Setenv("RELAY_TRANSPORT_NETWORK", "tcp")
	os.Setenv("RELAY_POOL_WORKERS", "16")
	defer os.Unsetenv("RELAY_TRANSPORT_NETWORK")
	defer os.Unsetenv("RELAY_POOL_WORKERS")

	var cfg listenerConfig
	if err := LoadWithEnv(tmpFile, "RELAY", &cfg); err != nil {
		t.Fatalf("LoadWithEnv failed: %v", err)
	}

	if cfg.Transport.Network != "tcp" {
		t.Errorf("Transport.Network = %v, want tcp (env override)", cfg.Transport.Network)
	}
	if cfg.Pool.Workers != 16 {
		t.Errorf("Pool.Workers = %v, want 16 (env override)", cfg.Pool.Workers)
	}
	// No RELAY_TRANSPORT_ADDRESS set: file value survives.
	if cfg.Transport.Address != "marshal_adder" {
		t.Errorf("Transport.Address = %v, want marshal_adder", cfg.Transport.Address)
	}
}

func TestNotEmpty(t *testing.T) {
	var cfg listenerConfig
	cfg.Pool.Workers = 4

	validator := NotEmpty("Transport.Address")
	if err := validator.Validate(&cfg); err == nil {
		t.Error("NotEmpty should fail for a blank Transport.Address")
	}

	cfg.Transport.Address = "marshal_adder"
	if err := validator.Validate(&cfg); err != nil {
		t.Errorf("NotEmpty should pass once Transport.Address is set: %v", err)
	}
}

func TestInRange(t *testing.T) {
	var cfg listenerConfig
	cfg.Pool.Workers = 1

	validator := InRange("Pool.Workers", 2, 64)
	if err := validator.Validate(&cfg); err == nil {
		t.Error("InRange should fail for a value below the minimum")
	}

	cfg.Pool.Workers = 8
	if err := validator.Validate(&cfg); err != nil {
		t.Errorf("InRange should pass for a value in range: %v", err)
	}
}

func TestOneOf(t *testing.T) {
	var cfg listenerConfig
	cfg.Transport.Network = "unix"
	wantTransport := cfg.Transport

	validator := OneOf("Transport", wantTransport)
	if err := validator.Validate(&cfg); err != nil {
		t.Errorf("OneOf should pass when the value is in the allowed set: %v", err)
	}

	cfg.Transport.Network = "tcp"
	if err := validator.Validate(&cfg); err == nil {
		t.Error("OneOf should fail once Transport no longer equals the allowed value")
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	if err := os.WriteFile(name, []byte(content), 0644); err != nil {
		t.Fatalf("writeTemp: %v", err)
	}
	return name
}
