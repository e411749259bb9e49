package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment overrides, applied after the TOML file.
const (
	EnvLogLevel       = "BUDGET_LOG_LEVEL"
	EnvServerURL      = "BUDGET_SERVER_URL"
	EnvQueuePath      = "BUDGET_QUEUE_PATH"
	EnvAgentListen    = "BUDGET_AGENT_LISTEN"
	EnvAgentUpstream  = "BUDGET_AGENT_UPSTREAM"
	EnvAgentCachePath = "BUDGET_AGENT_CACHE_PATH"
	EnvAPIAddr        = "BUDGET_API_ADDR"
	EnvGCPProject     = "BUDGET_GCP_PROJECT"
)

// Duration decodes TOML strings such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ClientConfig configures the page-side client (cmd/cli).
type ClientConfig struct {
	// ServerURL is where API calls go; normally the cache agent's address.
	ServerURL     string   `toml:"server_url"`
	HealthPath    string   `toml:"health_path"`
	QueuePath     string   `toml:"queue_path"`
	ProbeInterval Duration `toml:"probe_interval"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
	Unit          string   `toml:"unit"`
	LogLevel      string   `toml:"log_level"`
}

// AgentConfig configures the intercepting cache agent (cmd/agent).
type AgentConfig struct {
	ListenAddr      string   `toml:"listen_addr"`
	UpstreamURL     string   `toml:"upstream_url"`
	CachePath       string   `toml:"cache_path"`
	StaticCacheName string   `toml:"static_cache_name"`
	DataCacheName   string   `toml:"data_cache_name"`
	APIPrefix       string   `toml:"api_prefix"`
	WarmPath        string   `toml:"warm_path"`
	Manifest        []string `toml:"manifest"`
	LogLevel        string   `toml:"log_level"`
}

// ServerConfig configures the transaction API (cmd/api).
type ServerConfig struct {
	Addr      string `toml:"addr"`
	Store     string `toml:"store"`
	Project   string `toml:"project"`
	Dataset   string `toml:"dataset"`
	Table     string `toml:"table"`
	StaticDir string `toml:"static_dir"`
	LogLevel  string `toml:"log_level"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:     "http://localhost:8081",
		HealthPath:    "/health",
		QueuePath:     "data/budget.db",
		ProbeInterval: Duration{5 * time.Second},
		ProbeTimeout:  Duration{2 * time.Second},
		Unit:          "cents",
		LogLevel:      "info",
	}
}

// DefaultManifest is the static asset list installed into the static cache.
func DefaultManifest() []string {
	return []string{
		"/",
		"/index.html",
		"/index.js",
		"/manifest.webmanifest",
		"/styles.css",
		"/icons/icon-192x192.png",
		"/icons/icon-512x512.png",
	}
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ListenAddr:      ":8081",
		UpstreamURL:     "http://localhost:8080",
		CachePath:       "data/agent-cache.db",
		StaticCacheName: "static-cache-v1",
		DataCacheName:   "data-cache-v1",
		APIPrefix:       "/api/",
		WarmPath:        "/api/transaction",
		Manifest:        DefaultManifest(),
		LogLevel:        "info",
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		Store:     "memory",
		Dataset:   "budget",
		Table:     "transactions",
		StaticDir: "public",
		LogLevel:  "info",
	}
}

// LoadClientConfig overlays an optional TOML file and the environment onto defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	overrideString(&cfg.LogLevel, EnvLogLevel)
	overrideString(&cfg.ServerURL, EnvServerURL)
	overrideString(&cfg.QueuePath, EnvQueuePath)
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func LoadAgentConfig(path string) (AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return AgentConfig{}, err
	}
	overrideString(&cfg.LogLevel, EnvLogLevel)
	overrideString(&cfg.ListenAddr, EnvAgentListen)
	overrideString(&cfg.UpstreamURL, EnvAgentUpstream)
	overrideString(&cfg.CachePath, EnvAgentCachePath)
	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	overrideString(&cfg.LogLevel, EnvLogLevel)
	overrideString(&cfg.Addr, EnvAPIAddr)
	overrideString(&cfg.Project, EnvGCPProject)
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (c ClientConfig) Validate() error {
	if err := validateURL("server_url", c.ServerURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.QueuePath) == "" {
		return fmt.Errorf("client config missing queue_path")
	}
	if !strings.HasPrefix(c.HealthPath, "/") {
		return fmt.Errorf("client config health_path must start with /")
	}
	if c.ProbeInterval.Duration <= 0 {
		return fmt.Errorf("client config probe_interval must be positive")
	}
	if c.ProbeTimeout.Duration <= 0 {
		return fmt.Errorf("client config probe_timeout must be positive")
	}
	switch strings.ToLower(c.Unit) {
	case "cents", "whole":
	default:
		return fmt.Errorf("client config unit must be cents or whole, got %q", c.Unit)
	}
	return nil
}

func (c AgentConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("agent config missing listen_addr")
	}
	if err := validateURL("upstream_url", c.UpstreamURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.CachePath) == "" {
		return fmt.Errorf("agent config missing cache_path")
	}
	if c.StaticCacheName == "" || c.DataCacheName == "" {
		return fmt.Errorf("agent config requires static_cache_name and data_cache_name")
	}
	if c.StaticCacheName == c.DataCacheName {
		return fmt.Errorf("agent config static and data cache names must differ")
	}
	if !strings.HasPrefix(c.APIPrefix, "/") || !strings.HasPrefix(c.WarmPath, "/") {
		return fmt.Errorf("agent config api_prefix and warm_path must start with /")
	}
	for i, p := range c.Manifest {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("manifest[%d] %q must be an absolute path", i, p)
		}
	}
	return nil
}

func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("server config missing addr")
	}
	switch c.Store {
	case "memory":
	case "bigquery":
		if strings.TrimSpace(c.Project) == "" {
			return fmt.Errorf("server config store=bigquery requires project")
		}
		if c.Dataset == "" || c.Table == "" {
			return fmt.Errorf("server config store=bigquery requires dataset and table")
		}
	default:
		return fmt.Errorf("server config store must be memory or bigquery, got %q", c.Store)
	}
	return nil
}

func decodeFile(path string, out any) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	meta, err := toml.DecodeFile(path, out)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func overrideString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func validateURL(field, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config %s must be an absolute URL, got %q", field, raw)
	}
	return nil
}
