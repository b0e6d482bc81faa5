package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the ModelRelay gateway.
type Config struct {
	Port      int
	Version   string
	LogLevel  string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Upstream  UpstreamConfig
	Tools     ToolConfig
	Sandbox   SandboxConfig
	Retention RetentionConfig
	Guardrail GuardrailConfig
}

type DatabaseConfig struct {
	// URL selects the PostgreSQL store when non-empty; the in-memory
	// store is used otherwise.
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type UpstreamConfig struct {
	// LovableAPIKey is the gateway's own key for the default provider.
	// Callers never supply a key for it.
	LovableAPIKey string
	// StreamTimeout bounds one full provider stream, first byte to last.
	StreamTimeout time.Duration
	// ConnectTimeout bounds dialing plus response headers.
	ConnectTimeout time.Duration
}

type ToolConfig struct {
	// Timeout bounds a single tool connector call (one retry attempt).
	Timeout time.Duration
	// MaxConcurrency caps parallel tool executions within one chat turn.
	MaxConcurrency int
	// MaxRetries caps retry attempts on retryable connector failures.
	MaxRetries int
}

type SandboxConfig struct {
	// Engine is "disabled" or "docker".
	Engine string
	Image  string
	// Timeout is the wall-clock limit for one snippet run.
	Timeout time.Duration
}

type RetentionConfig struct {
	// Days is the chat record retention window; 0 disables the janitor.
	Days     int
	Interval time.Duration
	// ArchiveDir, when set, receives JSONL archives of records before
	// they are purged.
	ArchiveDir      string
	ArchiveCompress bool
}

type GuardrailConfig struct {
	// RulesPath points at a JSON rules file; empty means no rules.
	RulesPath string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:     envInt("MODELRELAY_PORT", 8080),
		Version:  envStr("MODELRELAY_VERSION", "0.2.0"),
		LogLevel: envStr("MODELRELAY_LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "modelrelay-gateway"),
		},
		Upstream: UpstreamConfig{
			LovableAPIKey:  envStr("LOVABLE_API_KEY", ""),
			StreamTimeout:  envDur("MODELRELAY_STREAM_TIMEOUT", 120*time.Second),
			ConnectTimeout: envDur("MODELRELAY_CONNECT_TIMEOUT", 30*time.Second),
		},
		Tools: ToolConfig{
			Timeout:        envDur("MODELRELAY_TOOL_TIMEOUT", 30*time.Second),
			MaxConcurrency: envInt("MODELRELAY_TOOL_CONCURRENCY", 4),
			MaxRetries:     envInt("MODELRELAY_TOOL_RETRIES", 2),
		},
		Sandbox: SandboxConfig{
			Engine:  envStr("MODELRELAY_SANDBOX", "disabled"),
			Image:   envStr("MODELRELAY_SANDBOX_IMAGE", "python:3.12-alpine"),
			Timeout: envDur("MODELRELAY_SANDBOX_TIMEOUT", 10*time.Second),
		},
		Retention: RetentionConfig{
			Days:            envInt("MODELRELAY_RETENTION_DAYS", 7),
			Interval:        envDur("MODELRELAY_RETENTION_INTERVAL", time.Hour),
			ArchiveDir:      envStr("MODELRELAY_RETENTION_ARCHIVE_DIR", ""),
			ArchiveCompress: envBool("MODELRELAY_RETENTION_ARCHIVE_GZIP", false),
		},
		Guardrail: GuardrailConfig{
			RulesPath: envStr("MODELRELAY_GUARDRAIL_RULES", ""),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
