package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when the synthesis backend needs a key and none was configured.
var ErrMissingAPIKey = errors.New("synthesis api key not configured")

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceStdout  bool   `yaml:"trace_stdout"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	History     HistoryConfig   `yaml:"history"`
	Synth       SynthConfig     `yaml:"synth"`
	Batch       BatchConfig     `yaml:"batch"`
	Styles      StylesConfig    `yaml:"styles"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEntries    int    `yaml:"max_entries"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type SynthConfig struct {
	Mode           string `yaml:"mode"` // gemini, exec, mock
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Command        string `yaml:"command"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type BatchConfig struct {
	Concurrency       int `yaml:"concurrency"`
	MaxTextBytes      int `yaml:"max_text_bytes"`
	DefaultRetryAfter int `yaml:"default_retry_after_ms"`
}

type StylesConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Mode         string  `yaml:"mode"` // mock, gemini, ollama, exec
	Endpoint     string  `yaml:"endpoint"`
	Command      string  `yaml:"command"`
	Model        string  `yaml:"model"`
	VariantModel string  `yaml:"variant_model"`
	Temperature  float64 `yaml:"temperature"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-voicebatch",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		History: HistoryConfig{
			Path:          "./data/tts-history.db",
			RetentionDays: 0,
			MaxEntries:    0,
		},
		Synth: SynthConfig{
			Mode:           "gemini",
			Endpoint:       "https://generativelanguage.googleapis.com/v1beta",
			TimeoutSeconds: 120,
		},
		Batch: BatchConfig{
			Concurrency:       5,
			MaxTextBytes:      4000,
			DefaultRetryAfter: 10000,
		},
		Styles: StylesConfig{
			Enabled:      true,
			Mode:         "gemini",
			Endpoint:     "https://generativelanguage.googleapis.com/v1beta",
			Model:        "gemini-2.5-flash",
			VariantModel: "gemini-3-flash-preview",
			Temperature:  1.0,
		},
	}
}

func Load(path string) (Config, error) {
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
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOICEBATCH_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOICEBATCH_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOICEBATCH_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICEBATCH_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOICEBATCH_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICEBATCH_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICEBATCH_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "VOICEBATCH_TELEMETRY_TRACE_STDOUT")
	overrideBool(&cfg.Bus.Enabled, "VOICEBATCH_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOICEBATCH_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOICEBATCH_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOICEBATCH_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOICEBATCH_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICEBATCH_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICEBATCH_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICEBATCH_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICEBATCH_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICEBATCH_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "VOICEBATCH_HISTORY_PATH")
	overrideInt(&cfg.History.RetentionDays, "VOICEBATCH_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxEntries, "VOICEBATCH_HISTORY_MAX_ENTRIES")
	overrideBool(&cfg.History.VacuumOnStart, "VOICEBATCH_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.Synth.Mode, "VOICEBATCH_SYNTH_MODE")
	overrideString(&cfg.Synth.Endpoint, "VOICEBATCH_SYNTH_ENDPOINT")
	overrideString(&cfg.Synth.APIKey, "GOOGLE_API_KEY")
	overrideString(&cfg.Synth.APIKey, "VOICEBATCH_SYNTH_API_KEY")
	overrideString(&cfg.Synth.Command, "VOICEBATCH_SYNTH_COMMAND")
	overrideInt(&cfg.Synth.TimeoutSeconds, "VOICEBATCH_SYNTH_TIMEOUT_SECONDS")
	overrideInt(&cfg.Batch.Concurrency, "VOICEBATCH_BATCH_CONCURRENCY")
	overrideInt(&cfg.Batch.MaxTextBytes, "VOICEBATCH_BATCH_MAX_TEXT_BYTES")
	overrideInt(&cfg.Batch.DefaultRetryAfter, "VOICEBATCH_BATCH_DEFAULT_RETRY_AFTER_MS")
	overrideBool(&cfg.Styles.Enabled, "VOICEBATCH_STYLES_ENABLED")
	overrideString(&cfg.Styles.Mode, "VOICEBATCH_STYLES_MODE")
	overrideString(&cfg.Styles.Endpoint, "VOICEBATCH_STYLES_ENDPOINT")
	overrideString(&cfg.Styles.Command, "VOICEBATCH_STYLES_COMMAND")
	overrideString(&cfg.Styles.Model, "VOICEBATCH_STYLES_MODEL")
	overrideString(&cfg.Styles.VariantModel, "VOICEBATCH_STYLES_VARIANT_MODEL")
	overrideFloat(&cfg.Styles.Temperature, "VOICEBATCH_STYLES_TEMPERATURE")
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

// NeedsAPIKey reports whether a backend that talks to the hosted API is selected.
func (c Config) NeedsAPIKey() bool {
	return c.Synth.Mode == "gemini" || (c.Styles.Enabled && c.Styles.Mode == "gemini")
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.History.MaxEntries < 0 {
		return errors.New("history.max_entries must be >= 0")
	}
	switch cfg.Synth.Mode {
	case "gemini":
		if cfg.Synth.Endpoint == "" {
			return errors.New("synth.endpoint must be set when mode=gemini")
		}
	case "exec":
		if cfg.Synth.Command == "" {
			return errors.New("synth.command must be set when mode=exec")
		}
	case "mock":
	default:
		return errors.New("synth.mode must be one of gemini|exec|mock")
	}
	if cfg.Synth.TimeoutSeconds <= 0 {
		return errors.New("synth.timeout_seconds must be positive")
	}
	if cfg.Batch.Concurrency <= 0 {
		return errors.New("batch.concurrency must be >= 1")
	}
	if cfg.Batch.MaxTextBytes <= 0 {
		return errors.New("batch.max_text_bytes must be positive")
	}
	if cfg.Batch.DefaultRetryAfter <= 0 {
		return errors.New("batch.default_retry_after_ms must be positive")
	}
	if cfg.Styles.Enabled {
		switch cfg.Styles.Mode {
		case "mock", "gemini", "ollama", "exec":
		default:
			return errors.New("styles.mode must be one of mock|gemini|ollama|exec")
		}
		if (cfg.Styles.Mode == "gemini" || cfg.Styles.Mode == "ollama") && cfg.Styles.Endpoint == "" {
			return fmt.Errorf("styles.endpoint must be set when mode=%s", cfg.Styles.Mode)
		}
		if cfg.Styles.Mode == "exec" && cfg.Styles.Command == "" {
			return errors.New("styles.command must be set when mode=exec")
		}
	}
	if cfg.NeedsAPIKey() && strings.TrimSpace(cfg.Synth.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}
