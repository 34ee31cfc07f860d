package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
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
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	Saver       SaverConfig     `yaml:"saver"`
	History     HistoryConfig   `yaml:"history"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type SynthesisConfig struct {
	Endpoint  string `yaml:"endpoint"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// SaverConfig controls the save-file dialog capability and the write policy.
// Mode "exec" runs DialogCommand as a helper speaking JSON over stdin/stdout;
// mode "mock" reports cancellation for every request.
type SaverConfig struct {
	DialogMode        string `yaml:"dialog_mode"`
	DialogCommand     string `yaml:"dialog_command"`
	DownloadTimeoutMS int    `yaml:"download_timeout_ms"`
	AtomicWrite       bool   `yaml:"atomic_write"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "manbod",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Synthesis: SynthesisConfig{
			Endpoint:  "https://api.milorapart.top/apis/mbAIsc",
			TimeoutMS: 30000,
		},
		Saver: SaverConfig{
			DialogMode:        "mock",
			DownloadTimeoutMS: 60000,
			AtomicWrite:       false,
		},
		History: HistoryConfig{
			Path:          "./data/manbo-history.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxRecords:    10000,
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
	overrideString(&cfg.RuntimeName, "MANBO_RUNTIME_NAME")
	overrideString(&cfg.Environment, "MANBO_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "MANBO_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "MANBO_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "MANBO_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "MANBO_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "MANBO_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "MANBO_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "MANBO_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "MANBO_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "MANBO_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "MANBO_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "MANBO_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "MANBO_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "MANBO_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Synthesis.Endpoint, "MANBO_SYNTHESIS_ENDPOINT")
	overrideInt(&cfg.Synthesis.TimeoutMS, "MANBO_SYNTHESIS_TIMEOUT_MS")
	overrideString(&cfg.Saver.DialogMode, "MANBO_SAVER_DIALOG_MODE")
	overrideString(&cfg.Saver.DialogCommand, "MANBO_SAVER_DIALOG_COMMAND")
	overrideInt(&cfg.Saver.DownloadTimeoutMS, "MANBO_SAVER_DOWNLOAD_TIMEOUT_MS")
	overrideBool(&cfg.Saver.AtomicWrite, "MANBO_SAVER_ATOMIC_WRITE")
	overrideString(&cfg.History.Path, "MANBO_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "MANBO_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "MANBO_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRecords, "MANBO_HISTORY_MAX_RECORDS")
	overrideBool(&cfg.History.VacuumOnStart, "MANBO_HISTORY_VACUUM_ON_START")
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Synthesis.Endpoint == "" {
		return errors.New("synthesis.endpoint must not be empty")
	}
	if cfg.Synthesis.TimeoutMS <= 0 {
		return errors.New("synthesis.timeout_ms must be positive")
	}
	switch cfg.Saver.DialogMode {
	case "mock", "exec":
	default:
		return errors.New("saver.dialog_mode must be one of mock|exec")
	}
	if cfg.Saver.DialogMode == "exec" && cfg.Saver.DialogCommand == "" {
		return errors.New("saver.dialog_command must be set when dialog_mode=exec")
	}
	if cfg.Saver.DownloadTimeoutMS <= 0 {
		return errors.New("saver.download_timeout_ms must be positive")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	return nil
}
