// Package config provides configuration loading and management for ontogate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ssconfig "github.com/c360studio/semstreams/config"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/ontogate/startup"
	"github.com/c360studio/ontogate/watch"
)

// Config represents the complete ontogate configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Fuseki     FusekiConfig     `yaml:"fuseki"`
	Loader     LoaderConfig     `yaml:"loader"`
	Query      QueryConfig      `yaml:"query"`
	Validation ValidationConfig `yaml:"validation"`
	Startup    startup.Config   `yaml:"startup"`
	Watch      watch.Config     `yaml:"watch"`
	NATS       NATSConfig       `yaml:"nats"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig configures the REST gateway
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxConnections caps concurrent connections (0 = unlimited)
	MaxConnections int `yaml:"max_connections"`
	// CORSOrigins lists allowed origins; "*" allows any
	CORSOrigins []string `yaml:"cors_origins"`
	// Gzip enables response compression
	Gzip            bool          `yaml:"gzip"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FusekiConfig configures the engine connection
type FusekiConfig struct {
	URL      string `yaml:"url"`
	Dataset  string `yaml:"dataset"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Timeout bounds each HTTP request to the engine
	Timeout time.Duration `yaml:"timeout"`
	// FailureThreshold is the consecutive failures before the circuit opens
	FailureThreshold int `yaml:"failure_threshold"`
	// RecoveryTimeout is how long the circuit stays open
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`
}

// LoaderConfig configures file loading
type LoaderConfig struct {
	// BaseDir anchors relative paths (default: current directory)
	BaseDir string `yaml:"base_dir"`
	// RestrictToBase rejects paths that escape BaseDir
	RestrictToBase bool `yaml:"restrict_to_base"`
	// OntologyDirs are loaded by "ontogate load --ontology"
	OntologyDirs []string `yaml:"ontology_dirs"`
}

// QueryConfig configures the SPARQL wrapper
type QueryConfig struct {
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	MaxTimeout      time.Duration `yaml:"max_timeout"`
	AdaptiveTimeout bool          `yaml:"adaptive_timeout"`
}

// ValidationConfig configures the SHACL wrapper
type ValidationConfig struct {
	// ShapesDir is searched by "ontogate validate" when no file is given
	ShapesDir string `yaml:"shapes_dir"`
	// ReportDir receives exported reports
	ReportDir string `yaml:"report_dir"`
}

// NATSConfig configures event publication
type NATSConfig struct {
	// URL is the NATS server URL (empty = events disabled)
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxConnections:  256,
			CORSOrigins:     []string{"*"},
			Gzip:            true,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    6 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Fuseki: FusekiConfig{
			URL:              "http://localhost:3030",
			Dataset:          "ontology",
			Timeout:          5 * time.Minute,
			FailureThreshold: 3,
			RecoveryTimeout:  30 * time.Second,
		},
		Loader: LoaderConfig{
			BaseDir:        "",
			RestrictToBase: false,
			OntologyDirs:   []string{"ontology", "validation", "data"},
		},
		Query: QueryConfig{
			DefaultTimeout:  30 * time.Second,
			MaxTimeout:      5 * time.Minute,
			AdaptiveTimeout: true,
		},
		Validation: ValidationConfig{
			ShapesDir: "validation",
			ReportDir: "reports",
		},
		Startup: startup.DefaultConfig(),
		Watch:   watch.DefaultConfig(),
		NATS: NATSConfig{
			SubjectPrefix: "ontogate.events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Fuseki.URL == "" {
		return fmt.Errorf("fuseki.url is required")
	}
	if c.Fuseki.Dataset == "" {
		return fmt.Errorf("fuseki.dataset is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	if c.Query.DefaultTimeout <= 0 {
		return fmt.Errorf("query.default_timeout must be positive")
	}
	if c.Query.MaxTimeout < c.Query.DefaultTimeout {
		return fmt.Errorf("query.max_timeout must not be below query.default_timeout")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML, JSON or JSONC file on top
// of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// decodeFile decodes a config file onto config. Only keys present in the
// file change config. "${VAR:-default}" references are expanded first.
func decodeFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := []byte(ssconfig.ExpandEnvWithDefaults(string(data)))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is valid YAML once comments and trailing commas are gone.
		expanded = jsonc.ToJSON(expanded)
	}

	if err := yaml.Unmarshal(expanded, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values). Boolean switches are not merged; set them on the
// receiver directly.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.MaxConnections != 0 {
		c.Server.MaxConnections = other.Server.MaxConnections
	}
	if len(other.Server.CORSOrigins) > 0 {
		c.Server.CORSOrigins = other.Server.CORSOrigins
	}

	// Fuseki
	if other.Fuseki.URL != "" {
		c.Fuseki.URL = other.Fuseki.URL
	}
	if other.Fuseki.Dataset != "" {
		c.Fuseki.Dataset = other.Fuseki.Dataset
	}
	if other.Fuseki.Username != "" {
		c.Fuseki.Username = other.Fuseki.Username
		c.Fuseki.Password = other.Fuseki.Password
	}
	if other.Fuseki.Timeout != 0 {
		c.Fuseki.Timeout = other.Fuseki.Timeout
	}

	// Loader
	if other.Loader.BaseDir != "" {
		c.Loader.BaseDir = other.Loader.BaseDir
	}
	if len(other.Loader.OntologyDirs) > 0 {
		c.Loader.OntologyDirs = other.Loader.OntologyDirs
	}

	// Query
	if other.Query.DefaultTimeout != 0 {
		c.Query.DefaultTimeout = other.Query.DefaultTimeout
	}
	if other.Query.MaxTimeout != 0 {
		c.Query.MaxTimeout = other.Query.MaxTimeout
	}

	// Validation
	if other.Validation.ShapesDir != "" {
		c.Validation.ShapesDir = other.Validation.ShapesDir
	}
	if other.Validation.ReportDir != "" {
		c.Validation.ReportDir = other.Validation.ReportDir
	}

	// Watch
	if len(other.Watch.Dirs) > 0 {
		c.Watch.Dirs = other.Watch.Dirs
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = other.NATS.SubjectPrefix
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}

// ApplyEnv overrides settings from environment variables. lookup is
// usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FUSEKI_URL"); ok && v != "" {
		c.Fuseki.URL = v
	}
	if v, ok := lookup("FUSEKI_DATASET"); ok && v != "" {
		c.Fuseki.Dataset = v
	}
	if v, ok := lookup("FUSEKI_USER"); ok && v != "" {
		c.Fuseki.Username = v
	}
	if v, ok := lookup("FUSEKI_PASSWORD"); ok {
		c.Fuseki.Password = v
	}
	if v, ok := lookup("API_HOST"); ok && v != "" {
		c.Server.Host = v
	}
	if v, ok := lookup("API_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid API_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup("NATS_URL"); ok {
		c.NATS.URL = v
	}
	if v, ok := lookup("ONTOGATE_BASE_DIR"); ok && v != "" {
		c.Loader.BaseDir = v
	}
	return nil
}
