// Package config provides hierarchical configuration loading for GitRelay.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the relay.
type Config struct {
	Server    Server    `yaml:"server"`
	Stream    Stream    `yaml:"stream"`
	GitHub    GitHub    `yaml:"github"`
	NATS      NATS      `yaml:"nats"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Dedupe    Dedupe    `yaml:"dedupe"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server holds the ops HTTP server configuration.
type Server struct {
	Port string `yaml:"port"`
}

// Stream holds stream-gateway session configuration. The stream channel is
// enabled when ClientID is non-empty.
type Stream struct {
	GatewayURL   string        `yaml:"gateway_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Topic        string        `yaml:"topic"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

// GitHub holds upstream API client configuration.
type GitHub struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// NATS holds the optional NATS request/reply channel configuration.
// The channel is enabled when URL is non-empty.
type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for upstream calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Dedupe holds callback deduplication cache configuration.
type Dedupe struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Telemetry holds OpenTelemetry export configuration. Export is disabled
// when Endpoint is empty.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port: "8080",
		},
		Stream: Stream{
			GatewayURL: "https://api.dingtalk.com",
			Topic:      "/v1.0/graph/api/invoke",
			MaxBackoff: time.Minute,
		},
		GitHub: GitHub{
			BaseURL: "https://api.github.com",
			Timeout: 30 * time.Second,
		},
		NATS: NATS{
			Subject: "gitrelay.invoke",
			Queue:   "gitrelay",
		},
		Logging: Logging{
			Level:   "info",
			Service: "gitrelay",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Dedupe: Dedupe{
			MaxSizeMB: 16,
			TTL:       10 * time.Minute,
		},
	}
}
