// ABOUTME: YAML configuration with environment overrides and validation.
// ABOUTME: Defaults are applied after decode; DNSUPD_* env vars win over the file.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen     = "0.0.0.0"
	defaultDNSPort    = 8053
	defaultHTTPPort   = 5380
	defaultBackendURL = "file:dnsupd-zones.json"
	defaultTimeout    = 10 * time.Second
	defaultMinTTL     = 120
	defaultDDNSTTL    = 300
	defaultLogLevel   = "info"
	defaultLogEnv     = "prod"
)

// Config is the operator-facing configuration of the daemon.
type Config struct {
	Listen  string        `yaml:"listen"`
	DNS     DNS           `yaml:"dns"`
	HTTP    HTTP          `yaml:"http"`
	Backend Backend       `yaml:"backend"`
	TTL     TTL           `yaml:"ttl"`
	Timeout time.Duration `yaml:"backendTimeout"`
	Log     Log           `yaml:"log"`
}

// DNS configures the RFC2136 listener. Disabling both transports disables
// the listener entirely.
type DNS struct {
	Port int   `yaml:"port"`
	UDP  *bool `yaml:"udp"`
	TCP  *bool `yaml:"tcp"`
}

// HTTP configures the HTTP front end and its endpoint toggles. A disabled
// endpoint is not routed at all.
type HTTP struct {
	Port    int   `yaml:"port"`
	Simple  *bool `yaml:"simple"`
	Updates *bool `yaml:"updates"`
	Welcome *bool `yaml:"welcome"`
}

// Backend selects the record store: "sqlite:<dsn>" or "file:<path>".
type Backend struct {
	URL    string        `yaml:"url"`
	Reload time.Duration `yaml:"reload"` // file backend only; 0 disables
}

// TTL holds the TTL policy for additions.
type TTL struct {
	Minimum uint32 `yaml:"minimum"`
	Default uint32 `yaml:"default"`
}

// Log configures the slog handler.
type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

// DNSEnabled reports whether any DNS transport is on.
func (c *Config) DNSEnabled() bool { return boolVal(c.DNS.UDP, true) || boolVal(c.DNS.TCP, true) }

// DNSUDP reports whether the UDP transport is on (default true).
func (c *Config) DNSUDP() bool { return boolVal(c.DNS.UDP, true) }

// DNSTCP reports whether the TCP transport is on (default true).
func (c *Config) DNSTCP() bool { return boolVal(c.DNS.TCP, true) }

// HTTPSimple reports whether the simple endpoint is routed (default true).
func (c *Config) HTTPSimple() bool { return boolVal(c.HTTP.Simple, true) }

// HTTPUpdates reports whether the JSON endpoint is routed (default true).
func (c *Config) HTTPUpdates() bool { return boolVal(c.HTTP.Updates, true) }

// HTTPWelcome reports whether the welcome page is routed (default true).
func (c *Config) HTTPWelcome() bool { return boolVal(c.HTTP.Welcome, true) }

// DNSAddr returns the DNS listen address.
func (c *Config) DNSAddr() string { return fmt.Sprintf("%s:%d", c.Listen, c.DNS.Port) }

// HTTPAddr returns the HTTP listen address.
func (c *Config) HTTPAddr() string { return fmt.Sprintf("%s:%d", c.Listen, c.HTTP.Port) }

func boolVal(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Load reads the config file, applies defaults and environment overrides.
// A missing file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	var cfg Config

	_, err := os.Stat(path)
	if err == nil {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DNS.Port == 0 {
		c.DNS.Port = defaultDNSPort
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = defaultHTTPPort
	}
	if c.Backend.URL == "" {
		c.Backend.URL = defaultBackendURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.TTL.Minimum == 0 {
		c.TTL.Minimum = defaultMinTTL
	}
	if c.TTL.Default == 0 {
		c.TTL.Default = defaultDDNSTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Env == "" {
		c.Log.Env = defaultLogEnv
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DNSUPD_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DNSUPD_DNS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DNS.Port = n
		}
	}
	if v := os.Getenv("DNSUPD_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = n
		}
	}
	if v := os.Getenv("DNSUPD_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("DNSUPD_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		}
	}
	if v := os.Getenv("DNSUPD_BACKEND_RELOAD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Backend.Reload = d
		}
	}
	if v := os.Getenv("DNSUPD_TTL_MINIMUM"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.TTL.Minimum = uint32(n)
		}
	}
	if v := os.Getenv("DNSUPD_TTL_DEFAULT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.TTL.Default = uint32(n)
		}
	}
	if v := os.Getenv("DNSUPD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DNSUPD_LOG_ENV"); v != "" {
		c.Log.Env = v
	}
	if v := os.Getenv("DNSUPD_HTTP_SIMPLE"); v != "" {
		b := parseBool(v)
		c.HTTP.Simple = &b
	}
	if v := os.Getenv("DNSUPD_HTTP_UPDATES"); v != "" {
		b := parseBool(v)
		c.HTTP.Updates = &b
	}
	if v := os.Getenv("DNSUPD_HTTP_WELCOME"); v != "" {
		b := parseBool(v)
		c.HTTP.Welcome = &b
	}
	if v := os.Getenv("DNSUPD_DNS_UDP"); v != "" {
		b := parseBool(v)
		c.DNS.UDP = &b
	}
	if v := os.Getenv("DNSUPD_DNS_TCP"); v != "" {
		b := parseBool(v)
		c.DNS.TCP = &b
	}
}

func parseBool(s string) bool {
	return strings.EqualFold(s, "true") || s == "1"
}

// Validate checks the configuration, joining every problem into one error.
func (c *Config) Validate() error {
	var errs []string

	if c.DNS.Port < 0 || c.DNS.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dns port %d out of range", c.DNS.Port))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http port %d out of range", c.HTTP.Port))
	}
	if !strings.HasPrefix(c.Backend.URL, "sqlite:") && !strings.HasPrefix(c.Backend.URL, "file:") {
		errs = append(errs, fmt.Sprintf("backend url %q must start with sqlite: or file:", c.Backend.URL))
	}
	if c.Timeout < 0 {
		errs = append(errs, "backendTimeout must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
