package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadClientConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadClientConfig("")
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8081" {
		t.Errorf("server_url default = %q", cfg.ServerURL)
	}
	if cfg.ProbeInterval.Duration != 5*time.Second {
		t.Errorf("probe_interval default = %v", cfg.ProbeInterval)
	}
}

func TestLoadClientConfig_FileOverlay(t *testing.T) {
	path := writeConfig(t, `
server_url = "http://agent.local:9000"
probe_interval = "250ms"
unit = "whole"
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.ServerURL != "http://agent.local:9000" {
		t.Errorf("server_url = %q", cfg.ServerURL)
	}
	if cfg.ProbeInterval.Duration != 250*time.Millisecond {
		t.Errorf("probe_interval = %v", cfg.ProbeInterval)
	}
	if cfg.Unit != "whole" {
		t.Errorf("unit = %q", cfg.Unit)
	}
	// untouched keys keep defaults
	if cfg.HealthPath != "/health" {
		t.Errorf("health_path = %q", cfg.HealthPath)
	}
}

func TestLoadClientConfig_EnvOverride(t *testing.T) {
	t.Setenv(EnvServerURL, "http://from-env:1234")
	cfg, err := LoadClientConfig("")
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.ServerURL != "http://from-env:1234" {
		t.Errorf("server_url = %q", cfg.ServerURL)
	}
}

func TestLoadClientConfig_UnknownKey(t *testing.T) {
	path := writeConfig(t, `serverurl = "http://typo"`)
	_, err := LoadClientConfig(path)
	if err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadClientConfig_BadDuration(t *testing.T) {
	path := writeConfig(t, `probe_interval = "soon"`)
	if _, err := LoadClientConfig(path); err == nil {
		t.Fatal("expected duration parse error")
	}
}

func TestAgentConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AgentConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*AgentConfig) {}},
		{name: "same cache names", mutate: func(c *AgentConfig) { c.DataCacheName = c.StaticCacheName }, wantErr: true},
		{name: "relative upstream", mutate: func(c *AgentConfig) { c.UpstreamURL = "localhost:8080" }, wantErr: true},
		{name: "relative manifest", mutate: func(c *AgentConfig) { c.Manifest = []string{"index.html"} }, wantErr: true},
		{name: "empty manifest", mutate: func(c *AgentConfig) { c.Manifest = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAgentConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAgentConfig_Manifest(t *testing.T) {
	path := writeConfig(t, `
static_cache_name = "static-cache-v2"
manifest = ["/", "/app.js"]
`)
	cfg, err := LoadAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if cfg.StaticCacheName != "static-cache-v2" || cfg.DataCacheName != "data-cache-v1" {
		t.Errorf("cache names = %q/%q", cfg.StaticCacheName, cfg.DataCacheName)
	}
	if len(cfg.Manifest) != 2 || cfg.Manifest[1] != "/app.js" {
		t.Errorf("manifest = %v", cfg.Manifest)
	}
}

func TestServerConfigValidate(t *testing.T) {
	cfg := DefaultServerConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default server config invalid: %v", err)
	}
	cfg.Store = "bigquery"
	if err := cfg.Validate(); err == nil {
		t.Error("bigquery without project should fail")
	}
	cfg.Project = "my-project"
	if err := cfg.Validate(); err != nil {
		t.Errorf("bigquery with project: %v", err)
	}
	cfg.Store = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown store should fail")
	}
}
