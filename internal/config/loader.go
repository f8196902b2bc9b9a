package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "gitrelay.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "GITRELAY_PORT")

	setString(&cfg.Stream.GatewayURL, "GITRELAY_STREAM_GATEWAY_URL")
	setString(&cfg.Stream.ClientID, "GITRELAY_STREAM_CLIENT_ID")
	setString(&cfg.Stream.ClientSecret, "GITRELAY_STREAM_CLIENT_SECRET")
	setString(&cfg.Stream.Topic, "GITRELAY_STREAM_TOPIC")
	setDuration(&cfg.Stream.MaxBackoff, "GITRELAY_STREAM_MAX_BACKOFF")

	setString(&cfg.GitHub.BaseURL, "GITRELAY_GITHUB_BASE_URL")
	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setDuration(&cfg.GitHub.Timeout, "GITRELAY_GITHUB_TIMEOUT")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "GITRELAY_NATS_SUBJECT")
	setString(&cfg.NATS.Queue, "GITRELAY_NATS_QUEUE")

	setString(&cfg.Logging.Level, "GITRELAY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "GITRELAY_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "GITRELAY_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "GITRELAY_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "GITRELAY_BREAKER_TIMEOUT")

	setInt64(&cfg.Dedupe.MaxSizeMB, "GITRELAY_DEDUPE_SIZE_MB")
	setDuration(&cfg.Dedupe.TTL, "GITRELAY_DEDUPE_TTL")

	setString(&cfg.Telemetry.Endpoint, "GITRELAY_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.GitHub.BaseURL == "" {
		return errors.New("github.base_url is required")
	}
	if cfg.GitHub.Token == "" {
		return errors.New("github.token is required (set GITHUB_TOKEN)")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Stream.ClientID != "" && cfg.Stream.ClientSecret == "" {
		return errors.New("stream.client_secret is required when stream.client_id is set")
	}
	if cfg.Dedupe.MaxSizeMB < 1 {
		return errors.New("dedupe.max_size_mb must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
