package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-whisper/internal/validate"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	TraceStderr    bool   `yaml:"trace_stderr"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type EngineConfig struct {
	Mode      string `yaml:"mode"` // mock, exec, whisper
	ModelPath string `yaml:"model_path"`
	Threads   int    `yaml:"threads"`
	CPUOnly   bool   `yaml:"cpu_only"`
	Command   string `yaml:"command"`
}

// TranscriptionConfig holds the defaults applied to options a request
// leaves unset.
type TranscriptionConfig struct {
	Language           string  `yaml:"language"`
	TranslateToEnglish bool    `yaml:"translate_to_english"`
	IncludeTimestamps  bool    `yaml:"include_timestamps"`
	MaxTokens          int     `yaml:"max_tokens"`
	Temperature        float64 `yaml:"temperature"`
	UseBeamSearch      bool    `yaml:"use_beam_search"`
	BeamSize           int     `yaml:"beam_size"`
	SuppressBlank      bool    `yaml:"suppress_blank"`
	WordTimestamps     bool    `yaml:"word_timestamps"`
}

type ProtocolConfig struct {
	MaxRequestBytes int `yaml:"max_request_bytes"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Subject        string   `yaml:"subject"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type Config struct {
	ServerName    string              `yaml:"server_name"`
	Environment   string              `yaml:"environment"`
	Engine        EngineConfig        `yaml:"engine"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Protocol      ProtocolConfig      `yaml:"protocol"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Bus           BusConfig           `yaml:"bus"`
}

// Overrides carries command line values. Zero values leave the loaded
// configuration untouched.
type Overrides struct {
	ModelPath  string
	Threads    int
	CPUOnly    bool
	EngineMode string
	LogLevel   string
}

func Default() Config {
	return Config{
		ServerName:  "loqa-whisper",
		Environment: "development",
		Engine: EngineConfig{
			Mode: "whisper",
		},
		Transcription: TranscriptionConfig{
			Language:          "auto",
			IncludeTimestamps: true,
			Temperature:       0.0,
			SuppressBlank:     true,
		},
		Protocol: ProtocolConfig{
			MaxRequestBytes: 64 << 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			Subject:        "stt.text.final",
			ConnectTimeout: 2000,
		},
	}
}

// Load reads path (optional), applies environment and command line
// overrides in that order, and validates the result.
func Load(path string, overrides Overrides) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyOverrides(&cfg, overrides)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.ModelPath != "" {
		cfg.Engine.ModelPath = o.ModelPath
	}
	if o.Threads != 0 {
		cfg.Engine.Threads = o.Threads
	}
	if o.CPUOnly {
		cfg.Engine.CPUOnly = true
	}
	if o.EngineMode != "" {
		cfg.Engine.Mode = o.EngineMode
	}
	if o.LogLevel != "" {
		cfg.Telemetry.LogLevel = o.LogLevel
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServerName, "LOQA_WHISPER_SERVER_NAME")
	overrideString(&cfg.Environment, "LOQA_WHISPER_ENVIRONMENT")
	overrideString(&cfg.Engine.Mode, "LOQA_WHISPER_ENGINE_MODE")
	overrideString(&cfg.Engine.ModelPath, "LOQA_WHISPER_MODEL_PATH")
	overrideInt(&cfg.Engine.Threads, "LOQA_WHISPER_THREADS")
	overrideBool(&cfg.Engine.CPUOnly, "LOQA_WHISPER_CPU_ONLY")
	overrideString(&cfg.Engine.Command, "LOQA_WHISPER_ENGINE_COMMAND")
	overrideString(&cfg.Transcription.Language, "LOQA_WHISPER_LANGUAGE")
	overrideBool(&cfg.Transcription.TranslateToEnglish, "LOQA_WHISPER_TRANSLATE_TO_ENGLISH")
	overrideBool(&cfg.Transcription.IncludeTimestamps, "LOQA_WHISPER_INCLUDE_TIMESTAMPS")
	overrideInt(&cfg.Transcription.MaxTokens, "LOQA_WHISPER_MAX_TOKENS")
	overrideFloat(&cfg.Transcription.Temperature, "LOQA_WHISPER_TEMPERATURE")
	overrideBool(&cfg.Transcription.UseBeamSearch, "LOQA_WHISPER_USE_BEAM_SEARCH")
	overrideInt(&cfg.Transcription.BeamSize, "LOQA_WHISPER_BEAM_SIZE")
	overrideBool(&cfg.Transcription.SuppressBlank, "LOQA_WHISPER_SUPPRESS_BLANK")
	overrideBool(&cfg.Transcription.WordTimestamps, "LOQA_WHISPER_WORD_TIMESTAMPS")
	overrideInt(&cfg.Protocol.MaxRequestBytes, "LOQA_WHISPER_MAX_REQUEST_BYTES")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_WHISPER_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "LOQA_WHISPER_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_WHISPER_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_WHISPER_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStderr, "LOQA_WHISPER_TRACE_STDERR")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_WHISPER_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_WHISPER_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_WHISPER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_WHISPER_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_WHISPER_BUS_SERVERS")
	overrideString(&cfg.Bus.Subject, "LOQA_WHISPER_BUS_SUBJECT")
	overrideString(&cfg.Bus.Username, "LOQA_WHISPER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_WHISPER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_WHISPER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_WHISPER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_WHISPER_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// ValidateModelPath checks that path names a non-empty .bin model file.
func ValidateModelPath(path string) error {
	if path == "" {
		return errors.New("model path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("model file does not exist: %s", path)
		}
		return fmt.Errorf("cannot read model file metadata: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("model path is not a file: %s", path)
	}
	if ext := filepath.Ext(path); ext != ".bin" {
		if ext == "" {
			return fmt.Errorf("model file has no extension: %s", path)
		}
		return fmt.Errorf("model file must have .bin extension, got: %s", ext)
	}
	if info.Size() == 0 {
		return fmt.Errorf("model file is empty: %s", path)
	}
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.ServerName == "" {
		return errors.New("server_name must not be empty")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec", "whisper":
	default:
		return errors.New("engine.mode must be one of mock|exec|whisper")
	}
	if err := ValidateModelPath(cfg.Engine.ModelPath); err != nil {
		return err
	}
	if cfg.Engine.Threads < 0 {
		return errors.New("engine.threads must be greater than 0")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	t := cfg.Transcription
	if !slices.Contains(validate.SupportedLanguages, t.Language) {
		return fmt.Errorf("transcription.language must be one of %s", strings.Join(validate.SupportedLanguages, "|"))
	}
	if t.Temperature < 0 || t.Temperature > 1 {
		return errors.New("transcription.temperature must be between 0.0 and 1.0")
	}
	if t.BeamSize != 0 && (t.BeamSize < 1 || t.BeamSize > 10) {
		return errors.New("transcription.beam_size must be between 1 and 10")
	}
	if t.MaxTokens < 0 {
		return errors.New("transcription.max_tokens must be >= 0")
	}
	if cfg.Protocol.MaxRequestBytes <= 0 {
		return errors.New("protocol.max_request_bytes must be positive")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded && (cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535) {
			return errors.New("bus.port must be between 1 and 65535 when bus.embedded is set")
		}
		if !cfg.Bus.Embedded && len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when bus is enabled")
		}
		if cfg.Bus.Subject == "" {
			return errors.New("bus.subject must not be empty when bus is enabled")
		}
	}
	return nil
}
