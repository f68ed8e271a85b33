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

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type PaperStoreConfig struct {
	Path          string `yaml:"path"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BlobStoreConfig struct {
	Mode     string `yaml:"mode"` // bucket, fs
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	APIKey   string `yaml:"api_key"`
	Root     string `yaml:"root"`
	BaseURL  string `yaml:"base_url"`
}

type SynthConfig struct {
	Mode         string  `yaml:"mode"` // google, exec, mock
	Endpoint     string  `yaml:"endpoint"`
	APIKey       string  `yaml:"api_key"`
	Command      string  `yaml:"command"`
	LanguageCode string  `yaml:"language_code"`
	Voice        string  `yaml:"voice"`
	SpeakingRate float64 `yaml:"speaking_rate"`
	Pitch        float64 `yaml:"pitch"`
}

type JobsConfig struct {
	Concurrency    int `yaml:"max_concurrency"`
	RetryAttempts  int `yaml:"retry_attempts"`
	RetryBaseDelay int `yaml:"retry_base_delay_ms"`
}

type PlayerConfig struct {
	Command        string `yaml:"command"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	PaperStore  PaperStoreConfig `yaml:"paper_store"`
	BlobStore   BlobStoreConfig  `yaml:"blob_store"`
	Synth       SynthConfig      `yaml:"synth"`
	Jobs        JobsConfig       `yaml:"jobs"`
	Player      PlayerConfig     `yaml:"player"`
}

func Default() Config {
	return Config{
		ServiceName: "papercastd",
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
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		PaperStore: PaperStoreConfig{
			Path: "./data/papers.db",
		},
		BlobStore: BlobStoreConfig{
			Mode:    "fs",
			Bucket:  "audios",
			Root:    "./data/audio",
			BaseURL: "http://localhost:8080/blobs",
		},
		Synth: SynthConfig{
			Mode:         "mock",
			Endpoint:     "https://texttospeech.googleapis.com",
			LanguageCode: "en-US",
			Voice:        "en-US-Chirp3-HD-Fenrir",
			SpeakingRate: 1.0,
			Pitch:        0.0,
		},
		Jobs: JobsConfig{
			Concurrency:    4,
			RetryAttempts:  3,
			RetryBaseDelay: 500,
		},
		Player: PlayerConfig{
			Command:        "mpg123 -q -",
			PollIntervalMS: 2000,
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
	overrideString(&cfg.ServiceName, "PAPERCAST_SERVICE_NAME")
	overrideString(&cfg.Environment, "PAPERCAST_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PAPERCAST_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PAPERCAST_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PAPERCAST_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PAPERCAST_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PAPERCAST_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "PAPERCAST_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "PAPERCAST_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PAPERCAST_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PAPERCAST_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PAPERCAST_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PAPERCAST_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PAPERCAST_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeout, "PAPERCAST_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.PaperStore.Path, "PAPERCAST_PAPER_STORE_PATH")
	overrideBool(&cfg.PaperStore.VacuumOnStart, "PAPERCAST_PAPER_STORE_VACUUM_ON_START")
	overrideString(&cfg.BlobStore.Mode, "PAPERCAST_BLOB_STORE_MODE")
	overrideString(&cfg.BlobStore.Endpoint, "PAPERCAST_BLOB_STORE_ENDPOINT")
	overrideString(&cfg.BlobStore.Bucket, "PAPERCAST_BLOB_STORE_BUCKET")
	overrideString(&cfg.BlobStore.APIKey, "PAPERCAST_BLOB_STORE_API_KEY")
	overrideString(&cfg.BlobStore.Root, "PAPERCAST_BLOB_STORE_ROOT")
	overrideString(&cfg.BlobStore.BaseURL, "PAPERCAST_BLOB_STORE_BASE_URL")
	overrideString(&cfg.Synth.Mode, "PAPERCAST_SYNTH_MODE")
	overrideString(&cfg.Synth.Endpoint, "PAPERCAST_SYNTH_ENDPOINT")
	overrideString(&cfg.Synth.APIKey, "PAPERCAST_SYNTH_API_KEY")
	overrideString(&cfg.Synth.Command, "PAPERCAST_SYNTH_COMMAND")
	overrideString(&cfg.Synth.LanguageCode, "PAPERCAST_SYNTH_LANGUAGE_CODE")
	overrideString(&cfg.Synth.Voice, "PAPERCAST_SYNTH_VOICE")
	overrideFloat(&cfg.Synth.SpeakingRate, "PAPERCAST_SYNTH_SPEAKING_RATE")
	overrideFloat(&cfg.Synth.Pitch, "PAPERCAST_SYNTH_PITCH")
	overrideInt(&cfg.Jobs.Concurrency, "PAPERCAST_JOBS_MAX_CONCURRENCY")
	overrideInt(&cfg.Jobs.RetryAttempts, "PAPERCAST_JOBS_RETRY_ATTEMPTS")
	overrideInt(&cfg.Jobs.RetryBaseDelay, "PAPERCAST_JOBS_RETRY_BASE_DELAY_MS")
	overrideString(&cfg.Player.Command, "PAPERCAST_PLAYER_COMMAND")
	overrideInt(&cfg.Player.PollIntervalMS, "PAPERCAST_PLAYER_POLL_INTERVAL_MS")
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

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
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
	if cfg.PaperStore.Path == "" {
		return errors.New("paper_store.path must not be empty")
	}
	switch cfg.BlobStore.Mode {
	case "bucket":
		if cfg.BlobStore.Endpoint == "" {
			return errors.New("blob_store.endpoint must be set when mode=bucket")
		}
		if cfg.BlobStore.Bucket == "" {
			return errors.New("blob_store.bucket must be set when mode=bucket")
		}
	case "fs":
		if cfg.BlobStore.Root == "" {
			return errors.New("blob_store.root must be set when mode=fs")
		}
		if cfg.BlobStore.BaseURL == "" {
			return errors.New("blob_store.base_url must be set when mode=fs")
		}
	default:
		return errors.New("blob_store.mode must be one of bucket|fs")
	}
	switch cfg.Synth.Mode {
	case "google":
		if cfg.Synth.Endpoint == "" {
			return errors.New("synth.endpoint must be set when mode=google")
		}
		if cfg.Synth.APIKey == "" {
			return errors.New("synth.api_key must be set when mode=google")
		}
	case "exec":
		if cfg.Synth.Command == "" {
			return errors.New("synth.command must be set when mode=exec")
		}
	case "mock":
	default:
		return errors.New("synth.mode must be one of google|exec|mock")
	}
	if cfg.Synth.SpeakingRate <= 0 {
		return errors.New("synth.speaking_rate must be positive")
	}
	if cfg.Jobs.Concurrency <= 0 {
		return errors.New("jobs.max_concurrency must be >= 1")
	}
	if cfg.Jobs.RetryAttempts <= 0 {
		return errors.New("jobs.retry_attempts must be >= 1")
	}
	if cfg.Jobs.RetryBaseDelay < 0 {
		return errors.New("jobs.retry_base_delay_ms must be >= 0")
	}
	if cfg.Player.PollIntervalMS <= 0 {
		return errors.New("player.poll_interval_ms must be positive")
	}
	return nil
}
