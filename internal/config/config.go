// Package config handles eflp configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the eflp configuration.
type Config struct {
	Logging LoggingSettings `yaml:"logging"`
	Parser  ParserSettings  `yaml:"parser"`
	Server  ServerSettings  `yaml:"server"`
	Output  OutputSettings  `yaml:"output"`
}

// LoggingSettings contains logging configuration.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`

	// Rotation of Output "file".
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// ParserSettings contains parse tuning.
type ParserSettings struct {
	MaxLineBytes  int  `yaml:"max_line_bytes"`
	Workers       int  `yaml:"workers"`
	ParallelLines bool `yaml:"parallel_lines"`
}

// ServerSettings contains the HTTP server settings.
type ServerSettings struct {
	Listen         string         `yaml:"listen"`
	APIToken       string         `yaml:"api_token"`
	ReadTimeout    time.Duration  `yaml:"read_timeout"`
	WriteTimeout   time.Duration  `yaml:"write_timeout"`
	IdleTimeout    time.Duration  `yaml:"idle_timeout"`
	MaxUploadBytes int64          `yaml:"max_upload_bytes"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	TLS            TLSSettings    `yaml:"tls"`
	Stream         StreamSettings `yaml:"stream"`
}

// TLSSettings contains the server certificate.
type TLSSettings struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StreamSettings controls batching of websocket record frames.
type StreamSettings struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// OutputSettings defines where parsed records are forwarded. Forwarding is
// off while URL is empty.
type OutputSettings struct {
	Type          string        `yaml:"type"` // "http"
	URL           string        `yaml:"url"`
	APIToken      string        `yaml:"api_token"`
	Timeout       time.Duration `yaml:"timeout"`
	BatchSize     int           `yaml:"batch_size"`
	SkipTLSVerify bool          `yaml:"skip_tls_verify"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingSettings{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Parser: ParserSettings{
			MaxLineBytes: 1024 * 1024,
		},
		Server: ServerSettings{
			Listen:         ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			IdleTimeout:    2 * time.Minute,
			MaxUploadBytes: 256 * 1024 * 1024,
			Stream: StreamSettings{
				BatchSize:     500,
				FlushInterval: time.Second,
			},
		},
		Output: OutputSettings{
			Type:      "http",
			Timeout:   30 * time.Second,
			BatchSize: 1000,
		},
	}
}

// Load loads configuration from a YAML file over the defaults. An empty path
// yields the defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() error {
	if level := os.Getenv("EFLP_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("EFLP_LOG_FILE"); file != "" {
		c.Logging.Output = "file"
		c.Logging.File = file
	}
	if listen := os.Getenv("EFLP_LISTEN"); listen != "" {
		c.Server.Listen = listen
	}
	if token := os.Getenv("EFLP_API_TOKEN"); token != "" {
		c.Server.APIToken = token
	}
	if url := os.Getenv("EFLP_OUTPUT_URL"); url != "" {
		c.Output.URL = url
	}
	if token := os.Getenv("EFLP_OUTPUT_TOKEN"); token != "" {
		c.Output.APIToken = token
	}
	if workers := os.Getenv("EFLP_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("EFLP_WORKERS: %w", err)
		}
		c.Parser.Workers = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	if err := c.Parser.Validate(); err != nil {
		return err
	}

	if err := c.Server.Validate(); err != nil {
		return err
	}

	if err := c.Output.Validate(); err != nil {
		return err
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingSettings) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.File == "" {
			return fmt.Errorf("logging.file is required when logging.output is 'file'")
		}
	default:
		return fmt.Errorf("logging.output must be one of: stdout, stderr, file")
	}

	return nil
}

// Validate validates parser configuration.
func (p *ParserSettings) Validate() error {
	if p.MaxLineBytes <= 0 {
		return fmt.Errorf("parser.max_line_bytes must be positive")
	}

	if p.Workers < 0 {
		return fmt.Errorf("parser.workers must not be negative")
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerSettings) Validate() error {
	if s.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}

	if s.Stream.BatchSize <= 0 {
		return fmt.Errorf("server.stream.batch_size must be positive")
	}

	if s.Stream.FlushInterval <= 0 {
		return fmt.Errorf("server.stream.flush_interval must be positive")
	}

	return nil
}

// Validate validates output configuration. Nothing is checked while
// forwarding is off.
func (o *OutputSettings) Validate() error {
	if o.URL == "" {
		return nil
	}

	if o.Type != "http" {
		return fmt.Errorf("output.type must be 'http'")
	}

	if o.Timeout <= 0 {
		return fmt.Errorf("output.timeout must be positive")
	}

	if o.BatchSize <= 0 {
		return fmt.Errorf("output.batch_size must be positive")
	}

	return nil
}
