package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Fuseki.URL != "http://localhost:3030" {
		t.Errorf("expected default fuseki url http://localhost:3030, got %s", cfg.Fuseki.URL)
	}
	if cfg.Fuseki.Dataset != "ontology" {
		t.Errorf("expected default dataset ontology, got %s", cfg.Fuseki.Dataset)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Query.DefaultTimeout != 30*time.Second {
		t.Errorf("expected default query timeout 30s, got %s", cfg.Query.DefaultTimeout)
	}
	if cfg.NATS.URL != "" {
		t.Error("expected events disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing fuseki url",
			modify:  func(c *Config) { c.Fuseki.URL = "" },
			wantErr: true,
		},
		{
			name:    "missing dataset",
			modify:  func(c *Config) { c.Fuseki.Dataset = "" },
			wantErr: true,
		},
		{
			name:    "port out of range",
			modify:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "max timeout below default",
			modify:  func(c *Config) { c.Query.MaxTimeout = time.Second },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
fuseki:
  url: "http://fuseki:3030"
  dataset: "kg"
  timeout: 90s
query:
  default_timeout: 10s
watch:
  enabled: true
  dirs: [ontology]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Fuseki.URL != "http://fuseki:3030" {
		t.Errorf("expected url http://fuseki:3030, got %s", cfg.Fuseki.URL)
	}
	if cfg.Fuseki.Dataset != "kg" {
		t.Errorf("expected dataset kg, got %s", cfg.Fuseki.Dataset)
	}
	if cfg.Fuseki.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", cfg.Fuseki.Timeout)
	}
	if cfg.Query.DefaultTimeout != 10*time.Second {
		t.Errorf("expected query timeout 10s, got %v", cfg.Query.DefaultTimeout)
	}
	if !cfg.Watch.Enabled || len(cfg.Watch.Dirs) != 1 {
		t.Errorf("expected watch enabled on one dir, got %+v", cfg.Watch)
	}
	// Unset keys keep their defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port to survive, got %d", cfg.Server.Port)
	}
}

func TestLoadFromFile_EnvSubstitution(t *testing.T) {
	t.Setenv("ONTOGATE_TEST_DATASET", "from-env")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
fuseki:
  dataset: "${ONTOGATE_TEST_DATASET:-fallback}"
  url: "${ONTOGATE_TEST_UNSET_URL:-http://default:3030}"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Fuseki.Dataset != "from-env" {
		t.Errorf("expected dataset from-env, got %s", cfg.Fuseki.Dataset)
	}
	if cfg.Fuseki.URL != "http://default:3030" {
		t.Errorf("expected default url, got %s", cfg.Fuseki.URL)
	}
}

func TestLoadFromFile_JSONC(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ontogate.jsonc")
	content := `{
  // engine settings
  "fuseki": {"dataset": "jsonc", "timeout": "2m",},
  "server": {"port": 9090},
}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Fuseki.Dataset != "jsonc" {
		t.Errorf("expected dataset jsonc, got %s", cfg.Fuseki.Dataset)
	}
	if cfg.Fuseki.Timeout != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %v", cfg.Fuseki.Timeout)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Fuseki.Dataset = "saved"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Fuseki.Dataset != "saved" {
		t.Errorf("expected saved dataset, got %s", loaded.Fuseki.Dataset)
	}
	if loaded.Fuseki.Timeout != cfg.Fuseki.Timeout {
		t.Errorf("expected timeout %v, got %v", cfg.Fuseki.Timeout, loaded.Fuseki.Timeout)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Fuseki: FusekiConfig{URL: "http://other:3030"},
		Server: ServerConfig{Port: 9000},
		Log:    LogConfig{Level: "debug"},
		NATS:   NATSConfig{URL: "nats://localhost:4222"},
	}

	base.Merge(override)

	if base.Fuseki.URL != "http://other:3030" {
		t.Errorf("expected merged url, got %s", base.Fuseki.URL)
	}
	if base.Fuseki.Dataset != "ontology" {
		t.Errorf("expected dataset to be preserved, got %s", base.Fuseki.Dataset)
	}
	if base.Server.Port != 9000 {
		t.Errorf("expected merged port 9000, got %d", base.Server.Port)
	}
	if base.Log.Level != "debug" {
		t.Errorf("expected merged log level, got %s", base.Log.Level)
	}
	if base.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected merged nats url, got %s", base.NATS.URL)
	}

	base.Merge(nil)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FUSEKI_URL":        "http://env:3030",
		"FUSEKI_DATASET":    "envds",
		"API_PORT":          "8181",
		"LOG_LEVEL":         "DEBUG",
		"ONTOGATE_BASE_DIR": "/srv/ontology",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Fuseki.URL != "http://env:3030" || cfg.Fuseki.Dataset != "envds" {
		t.Errorf("fuseki env not applied: %+v", cfg.Fuseki)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("expected port 8181, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected lowercased level, got %s", cfg.Log.Level)
	}
	if cfg.Loader.BaseDir != "/srv/ontology" {
		t.Errorf("expected base dir from env, got %s", cfg.Loader.BaseDir)
	}

	env["API_PORT"] = "eighty"
	if err := DefaultConfig().ApplyEnv(lookup); err == nil {
		t.Error("expected error for invalid API_PORT")
	}
}

func TestLoaderLayering(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	nested := filepath.Join(project, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	userCfg := filepath.Join(home, UserConfigDir, UserConfigFile)
	if err := os.MkdirAll(filepath.Dir(userCfg), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(userCfg, []byte("fuseki:\n  dataset: user\nserver:\n  port: 7000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, ProjectConfigFile), []byte("fuseki:\n  dataset: project\n"), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil)
	l.home = func() (string, error) { return home, nil }
	l.cwd = func() (string, error) { return nested, nil }
	l.lookup = func(k string) (string, bool) {
		if k == "LOG_LEVEL" {
			return "warn", true
		}
		return "", false
	}

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fuseki.Dataset != "project" {
		t.Errorf("expected project config to win, got %s", cfg.Fuseki.Dataset)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected user port to survive, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected env log level, got %s", cfg.Log.Level)
	}
	if cfg.Loader.BaseDir != nested {
		t.Errorf("expected base dir %s, got %s", nested, cfg.Loader.BaseDir)
	}

	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	if err := os.WriteFile(explicit, []byte("fuseki:\n  dataset: explicit\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = l.Load(explicit)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fuseki.Dataset != "explicit" {
		t.Errorf("expected explicit config to win, got %s", cfg.Fuseki.Dataset)
	}

	if _, err := l.Load(filepath.Join(project, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}
