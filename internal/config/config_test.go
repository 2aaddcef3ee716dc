package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeModel(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	model := writeModel(t, "ggml-base.en.bin", 16)
	cfg, err := Load("", Overrides{ModelPath: model})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Mode != "whisper" {
		t.Fatalf("expected whisper engine, got %q", cfg.Engine.Mode)
	}
	if cfg.Transcription.Language != "auto" {
		t.Fatalf("expected auto language, got %q", cfg.Transcription.Language)
	}
	if !cfg.Transcription.IncludeTimestamps || !cfg.Transcription.SuppressBlank {
		t.Fatal("expected timestamps and blank suppression on by default")
	}
	if cfg.Protocol.MaxRequestBytes != 64<<20 {
		t.Fatalf("unexpected max request bytes %d", cfg.Protocol.MaxRequestBytes)
	}
	if cfg.Bus.Enabled {
		t.Fatal("bus must be disabled by default")
	}
}

func TestLoadRequiresModelPath(t *testing.T) {
	if _, err := Load("", Overrides{}); err == nil {
		t.Fatal("expected error without a model path")
	}
}

func TestLoadFileThenEnvThenOverrides(t *testing.T) {
	model := writeModel(t, "model.bin", 8)
	dir := t.TempDir()
	path := filepath.Join(dir, "loqa-whisper.yaml")
	content := `
server_name: from-file
engine:
  mode: mock
  threads: 2
transcription:
  language: de
  temperature: 0.4
telemetry:
  log_level: debug
  log_format: text
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOQA_WHISPER_THREADS", "3")
	t.Setenv("LOQA_WHISPER_LANGUAGE", "fr")

	cfg, err := Load(path, Overrides{ModelPath: model, Threads: 6, LogLevel: "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerName != "from-file" {
		t.Fatalf("expected server name from file, got %q", cfg.ServerName)
	}
	if cfg.Engine.Mode != "mock" {
		t.Fatalf("expected mock mode from file, got %q", cfg.Engine.Mode)
	}
	if cfg.Transcription.Language != "fr" {
		t.Fatalf("expected env language, got %q", cfg.Transcription.Language)
	}
	if cfg.Transcription.Temperature != 0.4 {
		t.Fatalf("expected temperature from file, got %v", cfg.Transcription.Temperature)
	}
	if cfg.Engine.Threads != 6 {
		t.Fatalf("expected command line threads, got %d", cfg.Engine.Threads)
	}
	if cfg.Telemetry.LogLevel != "warn" || cfg.Telemetry.LogFormat != "text" {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
}

func TestEnvOverrides(t *testing.T) {
	model := writeModel(t, "model.bin", 8)
	t.Setenv("LOQA_WHISPER_MODEL_PATH", model)
	t.Setenv("LOQA_WHISPER_CPU_ONLY", "true")
	t.Setenv("LOQA_WHISPER_MAX_REQUEST_BYTES", "1024")
	t.Setenv("LOQA_WHISPER_BUS_ENABLED", "true")
	t.Setenv("LOQA_WHISPER_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_WHISPER_BUS_USERNAME", "alice")
	t.Setenv("LOQA_WHISPER_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_WHISPER_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_WHISPER_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_WHISPER_PROMETHEUS_BIND", "127.0.0.1:9464")

	cfg, err := Load("", Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.ModelPath != model {
		t.Fatalf("expected model path override, got %q", cfg.Engine.ModelPath)
	}
	if !cfg.Engine.CPUOnly {
		t.Fatal("expected cpu only override")
	}
	if cfg.Protocol.MaxRequestBytes != 1024 {
		t.Fatalf("expected max request bytes 1024, got %d", cfg.Protocol.MaxRequestBytes)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Telemetry.PrometheusBind != "127.0.0.1:9464" {
		t.Fatalf("expected prometheus bind override")
	}
}

func TestValidateModelPath(t *testing.T) {
	dir := t.TempDir()
	good := writeModel(t, "good.bin", 4)
	empty := writeModel(t, "empty.bin", 0)
	wrongExt := writeModel(t, "model.gguf", 4)
	noExt := writeModel(t, "model", 4)

	cases := []struct {
		name string
		path string
		want string
	}{
		{"valid", good, ""},
		{"missing", filepath.Join(dir, "missing.bin"), "does not exist"},
		{"directory", dir, "not a file"},
		{"empty", empty, "empty"},
		{"wrong extension", wrongExt, ".bin extension"},
		{"no extension", noExt, "no extension"},
		{"blank", "", "required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateModelPath(tc.path)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	model := writeModel(t, "model.bin", 4)
	cases := map[string]func(*Config){
		"engine mode":   func(c *Config) { c.Engine.Mode = "cloud" },
		"exec command":  func(c *Config) { c.Engine.Mode = "exec" },
		"language":      func(c *Config) { c.Transcription.Language = "xx" },
		"temperature":   func(c *Config) { c.Transcription.Temperature = 1.5 },
		"beam size":     func(c *Config) { c.Transcription.BeamSize = 11 },
		"request bytes": func(c *Config) { c.Protocol.MaxRequestBytes = 0 },
		"log level":     func(c *Config) { c.Telemetry.LogLevel = "loud" },
		"log format":    func(c *Config) { c.Telemetry.LogFormat = "xml" },
		"bus subject": func(c *Config) {
			c.Bus.Enabled = true
			c.Bus.Subject = ""
		},
		"embedded port": func(c *Config) {
			c.Bus.Enabled = true
			c.Bus.Embedded = true
			c.Bus.Port = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Engine.ModelPath = model
			mutate(&cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
