package config

import (
	"fmt"
	"regexp"
	"time"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".percy.yml"

// Config represents a .percy.yml file.
// All values are optional; command flags and PERCY_* variables override them.
type Config struct {
	Token   string        `yaml:"token"`
	APIURL  string        `yaml:"api_url"`
	Project string        `yaml:"project"`
	Upload  UploadConfig  `yaml:"upload"`
	Network NetworkConfig `yaml:"network"`
	Report  ReportConfig  `yaml:"report"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// UploadConfig controls how a directory is gathered and snapshotted.
type UploadConfig struct {
	BaseURLPath      string   `yaml:"base_url_path"`
	SkipPatterns     []string `yaml:"skip_patterns"`
	FollowLinks      bool     `yaml:"follow_links"`
	Widths           []int    `yaml:"widths"`
	MinimumHeight    int      `yaml:"minimum_height"`
	EnableJavaScript bool     `yaml:"enable_javascript"`
	Concurrency      int      `yaml:"concurrency"`
	HashCache        string   `yaml:"hash_cache"`
}

// NetworkConfig tunes the API client.
type NetworkConfig struct {
	Timeout        Duration `yaml:"timeout"`
	Retries        *int     `yaml:"retries,omitempty"`
	RetryInterval  Duration `yaml:"retry_interval"`
	MaxConnections int      `yaml:"max_connections"`
}

// ReportConfig selects where the build report dataset is written.
type ReportConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds the build notification adapter settings.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values and compiles skip patterns.
func (c *Config) Validate() error {
	switch c.Report.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("report.backend: unknown backend %q (must be fs or s3)", c.Report.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type: unknown adapter %q (must be webhook or redis)", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required for adapter.type %q", c.Adapter.Type)
	}
	if c.Upload.Concurrency < 0 {
		return fmt.Errorf("upload.concurrency must be >= 0, got %d", c.Upload.Concurrency)
	}
	for _, w := range c.Upload.Widths {
		if w <= 0 {
			return fmt.Errorf("upload.widths: width must be positive, got %d", w)
		}
	}
	if _, err := c.SkipPatterns(); err != nil {
		return err
	}
	return nil
}

// SkipPatterns compiles upload.skip_patterns.
func (c *Config) SkipPatterns() ([]*regexp.Regexp, error) {
	if len(c.Upload.SkipPatterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(c.Upload.SkipPatterns))
	for _, p := range c.Upload.SkipPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("upload.skip_patterns: %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
