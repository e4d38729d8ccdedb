// Package config loads orchestrator settings from defaults, an optional
// YAML file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the orchestrator
type Config struct {
	// ListenAddr is the HTTP API bind address.
	ListenAddr string `yaml:"listenAddr"`

	// ScanInterval is the background window scan period.
	ScanInterval time.Duration `yaml:"scanInterval"`

	// CacheTTL bounds how long a capability profile may be reused.
	CacheTTL time.Duration `yaml:"cacheTTL"`

	// ProbeTimeout bounds each individual capability probe.
	ProbeTimeout time.Duration `yaml:"probeTimeout"`

	// DebugHost and DebugPorts locate candidate browser debug endpoints,
	// probed in order.
	DebugHost  string `yaml:"debugHost"`
	DebugPorts []int  `yaml:"debugPorts"`

	// SiteTags maps lowercase title markers to site tags. Presentation
	// refinement only; classification works without it.
	SiteTags map[string]string `yaml:"siteTags"`

	// PinTerminal exempts the first discovered terminal window from
	// automatic closure, so it survives scans that miss it.
	PinTerminal bool `yaml:"pinTerminal"`

	// ReachabilityURL is probed for the network-reachability capability.
	ReachabilityURL string `yaml:"reachabilityUrl"`

	// RateLimit is requests/hour per caller on the HTTP API; Burst caps
	// short spikes.
	RateLimit int `yaml:"rateLimit"`
	Burst     int `yaml:"burst"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		ScanInterval:    time.Second,
		CacheTTL:        30 * time.Second,
		ProbeTimeout:    3 * time.Second,
		DebugHost:       "localhost",
		DebugPorts:      []int{9222, 9999, 9223, 9224},
		PinTerminal:     true,
		ReachabilityURL: "https://www.google.com",
		RateLimit:       100,
		Burst:           10,
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or the file does not exist), then
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BROWSERPILOT_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("BROWSERPILOT_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ScanInterval = d
		}
	}
	if v := os.Getenv("BROWSERPILOT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CacheTTL = d
		}
	}
	if v := os.Getenv("BROWSERPILOT_DEBUG_HOST"); v != "" {
		c.DebugHost = v
	}
	if v := os.Getenv("BROWSERPILOT_DEBUG_PORTS"); v != "" {
		var ports []int
		for _, part := range strings.Split(v, ",") {
			if port, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				ports = append(ports, port)
			}
		}
		if len(ports) > 0 {
			c.DebugPorts = ports
		}
	}
	if v := os.Getenv("BROWSERPILOT_PIN_TERMINAL"); v != "" {
		c.PinTerminal = v == "1" || strings.EqualFold(v, "true")
	}
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr is required")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scanInterval must be positive, got %s", c.ScanInterval)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cacheTTL must be positive, got %s", c.CacheTTL)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probeTimeout must be positive, got %s", c.ProbeTimeout)
	}
	if len(c.DebugPorts) == 0 {
		return fmt.Errorf("at least one debug port is required")
	}
	for _, port := range c.DebugPorts {
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid debug port %d", port)
		}
	}
	if c.RateLimit <= 0 || c.Burst <= 0 {
		return fmt.Errorf("rateLimit and burst must be positive")
	}
	return nil
}
