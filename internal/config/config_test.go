package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	tests := []struct {
		name         string
		yaml         string
		wantPort     int
		wantModel    string
		wantEndpoint string
		wantDataDir  string
	}{
		{
			name:         "empty file uses defaults",
			yaml:         ``,
			wantPort:     DefaultPort,
			wantModel:    DefaultModel,
			wantEndpoint: DefaultEndpoint,
			wantDataDir:  DefaultDataDir,
		},
		{
			name: "model and endpoint",
			yaml: `
port: 8080
model: llama3.2
generate-endpoint: http://gpu-box:11434/api/generate
`,
			wantPort:     8080,
			wantModel:    "llama3.2",
			wantEndpoint: "http://gpu-box:11434/api/generate",
			wantDataDir:  DefaultDataDir,
		},
		{
			name: "custom data dir",
			yaml: `
data-dir: /var/lib/health
context:
  max-records: 5
  max-tokens: 2000
`,
			wantPort:     DefaultPort,
			wantModel:    DefaultModel,
			wantEndpoint: DefaultEndpoint,
			wantDataDir:  "/var/lib/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"HEALTH_RECORDER_MODEL", "HEALTH_RECORDER_ENDPOINT", "HEALTH_RECORDER_DATA_DIR", "HEALTH_RECORDER_PORT", "OLLAMA_MODEL", "OLLAMA_ENDPOINT", "DATA_DIR", "PORT", "OBJECTSTORE_ENDPOINT"} {
				t.Setenv(key, "")
			}
			path := writeConfig(t, t.TempDir(), tt.yaml)
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Port, tt.wantPort)
			}
			if cfg.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", cfg.Model, tt.wantModel)
			}
			if cfg.GenerateEndpoint != tt.wantEndpoint {
				t.Errorf("GenerateEndpoint = %q, want %q", cfg.GenerateEndpoint, tt.wantEndpoint)
			}
			if cfg.DataDir != tt.wantDataDir {
				t.Errorf("DataDir = %q, want %q", cfg.DataDir, tt.wantDataDir)
			}
			if cfg.Store.Backend != StoreBackendFile {
				t.Errorf("Store.Backend = %q, want file", cfg.Store.Backend)
			}
		})
	}
}

func TestLoadConfig_MissingFileIsDefaults(t *testing.T) {
	t.Setenv("HEALTH_RECORDER_MODEL", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Model != DefaultModel || cfg.Port != DefaultPort {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "port: [not a number")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() should fail on malformed YAML")
	}
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	t.Setenv("OBJECTSTORE_ENDPOINT", "")
	path := writeConfig(t, t.TempDir(), "store:\n  backend: tape\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() should reject unknown backends")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{Model: "from-file", Port: 1234}
	cfg.ApplyEnv(envMap(map[string]string{
		"HEALTH_RECORDER_MODEL":    "  qwen2.5  ",
		"OLLAMA_ENDPOINT":          "http://remote:11434/api/generate",
		"HEALTH_RECORDER_PORT":     "not-a-port",
		"HEALTH_RECORDER_DATA_DIR": "",
		"OBJECTSTORE_ENDPOINT":     "minio:9000",
		"OBJECTSTORE_BUCKET":       "health",
	}))
	if cfg.Model != "qwen2.5" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.GenerateEndpoint != "http://remote:11434/api/generate" {
		t.Errorf("GenerateEndpoint = %q", cfg.GenerateEndpoint)
	}
	if cfg.Port != 1234 {
		t.Errorf("invalid port override should be ignored, got %d", cfg.Port)
	}
	if cfg.DataDir != "" {
		t.Errorf("blank env should not override, got %q", cfg.DataDir)
	}
	if cfg.Store.Backend != StoreBackendObject {
		t.Errorf("OBJECTSTORE_ENDPOINT should select the object backend, got %q", cfg.Store.Backend)
	}
	if err := func() error { cfg.applyDefaults(); return cfg.Validate() }(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"object without bucket", func(c *Config) {
			c.Store.Backend = StoreBackendObject
			c.ObjectStore.Endpoint = "minio:9000"
		}, true},
		{"negative context", func(c *Config) { c.Context.MaxTokens = -1 }, true},
		{"negative cache size", func(c *Config) { c.AnswerCache.MaxEntries = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccessors(t *testing.T) {
	cfg := Default()
	if !cfg.IsMetricsEnabled() {
		t.Error("metrics should default to enabled")
	}
	off := false
	cfg.Metrics = &off
	if cfg.IsMetricsEnabled() {
		t.Error("metrics: false should disable")
	}
	if cfg.RequestTimeout() != 0 {
		t.Error("timeout should default to the transport default")
	}
	cfg.RequestTimeoutSeconds = 30
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("RequestTimeout() = %v", cfg.RequestTimeout())
	}
	if cfg.Addr() != ":5000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.EffectiveLogLevel() != "info" {
		t.Errorf("EffectiveLogLevel() = %q", cfg.EffectiveLogLevel())
	}
	cfg.Debug = true
	if cfg.EffectiveLogLevel() != "debug" {
		t.Errorf("Debug should force debug level")
	}
	if cfg.AnswerCache.TTL() != 0 {
		t.Error("cache ttl should default to zero")
	}
	cfg.AnswerCache.TTLSeconds = 90
	if cfg.AnswerCache.TTL() != 90*time.Second {
		t.Errorf("AnswerCache.TTL() = %v", cfg.AnswerCache.TTL())
	}
}

func TestLoadConfig_AnswerCache(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
answer-cache:
  enabled: true
  max-entries: 50
  ttl-seconds: 120
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	want := AnswerCacheConfig{Enabled: true, MaxEntries: 50, TTLSeconds: 120}
	if cfg.AnswerCache != want {
		t.Errorf("AnswerCache = %+v, want %+v", cfg.AnswerCache, want)
	}
}

func TestPipelineChanged(t *testing.T) {
	a := Default()
	b := Default()
	if a.PipelineChanged(b) {
		t.Error("identical configs should not differ")
	}
	b.Context.MaxRecords = 5
	if !a.PipelineChanged(b) {
		t.Error("context change should be detected")
	}
	b = Default()
	b.Port = 9999
	if a.PipelineChanged(b) {
		t.Error("port is not a pipeline setting")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Setenv("HEALTH_RECORDER_MODEL", "")
	t.Setenv("OLLAMA_MODEL", "")
	dir := t.TempDir()
	path := writeConfig(t, dir, "model: first\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var models []string
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) {
			mu.Lock()
			models = append(models, cfg.Model)
			mu.Unlock()
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "model: second\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(models)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(models) == 0 || models[len(models)-1] != "second" {
		t.Errorf("reloaded models = %v, want last = second", models)
	}
}

func TestWatch_EmptyPath(t *testing.T) {
	if err := Watch(context.Background(), "", func(*Config) {}); err == nil {
		t.Error("Watch() should reject an empty path")
	}
}
