// Package config loads taskpulse settings from an optional JSON file,
// validates them against an embedded JSON Schema, and applies
// TASKPULSE_* environment overrides on top.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	defaultListenAddr         = ":8080"
	defaultIntervalSeconds    = 45
	defaultTickTimeoutSeconds = 30
	defaultConcurrency        = 4
	minIntervalSeconds        = 5
	maxPageSize               = 100
)

type Config struct {
	// Notion API access.
	NotionToken   string `json:"notionToken,omitempty"`
	BaseURL       string `json:"baseUrl,omitempty"`
	NotionVersion string `json:"notionVersion,omitempty"`
	PageSize      int    `json:"pageSize,omitempty"`

	// Discovery defaults used by the HTTP API and CLI.
	RootID      string `json:"rootId,omitempty"`
	UserEmail   string `json:"userEmail,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`

	// Status monitor.
	Tracked            []string `json:"tracked,omitempty"`
	IntervalSeconds    int      `json:"intervalSeconds,omitempty"`
	TickTimeoutSeconds int      `json:"tickTimeoutSeconds,omitempty"`
	SnapshotDSN        string   `json:"snapshotDsn,omitempty"`
	WebhookURL         string   `json:"webhookUrl,omitempty"`
	WebhookSecret      string   `json:"webhookSecret,omitempty"`

	// HTTP control plane.
	ListenAddr string `json:"listenAddr,omitempty"`
	APIToken   string `json:"apiToken,omitempty"`

	// Logging.
	LogLevel string `json:"logLevel,omitempty"`
	LogFile  string `json:"logFile,omitempty"`
}

const configSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"notionToken": {"type": "string"},
		"baseUrl": {"type": "string"},
		"notionVersion": {"type": "string"},
		"pageSize": {"type": "integer", "minimum": 1, "maximum": 100},
		"rootId": {"type": "string"},
		"userEmail": {"type": "string"},
		"concurrency": {"type": "integer", "minimum": 1, "maximum": 64},
		"tracked": {"type": "array", "items": {"type": "string", "minLength": 1}},
		"intervalSeconds": {"type": "integer", "minimum": 5},
		"tickTimeoutSeconds": {"type": "integer", "minimum": 1},
		"snapshotDsn": {"type": "string"},
		"webhookUrl": {"type": "string"},
		"webhookSecret": {"type": "string"},
		"listenAddr": {"type": "string"},
		"apiToken": {"type": "string"},
		"logLevel": {"type": "string", "enum": ["trace", "debug", "info", "warn", "error"]},
		"logFile": {"type": "string"}
	}
}`

func Default() Config {
	return Config{
		ListenAddr:         defaultListenAddr,
		IntervalSeconds:    defaultIntervalSeconds,
		TickTimeoutSeconds: defaultTickTimeoutSeconds,
		Concurrency:        defaultConcurrency,
		LogLevel:           "info",
	}
}

// Load builds the effective configuration. An empty path skips the
// file layer; environment overrides always apply last.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := validateRaw(raw); err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	cfg.normalize()
	return cfg, nil
}

func validateRaw(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		return fmt.Errorf("parse config schema: %w", err)
	}
	if err := compiler.AddResource("taskpulse-config.json", schemaDoc); err != nil {
		return fmt.Errorf("register config schema: %w", err)
	}
	schema, err := compiler.Compile("taskpulse-config.json")
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := stringEnv("TASKPULSE_NOTION_TOKEN"); v != "" {
		cfg.NotionToken = v
	}
	if v := stringEnv("TASKPULSE_NOTION_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := stringEnv("TASKPULSE_NOTION_VERSION"); v != "" {
		cfg.NotionVersion = v
	}
	cfg.PageSize = intEnv("TASKPULSE_PAGE_SIZE", cfg.PageSize)
	if v := stringEnv("TASKPULSE_ROOT_ID"); v != "" {
		cfg.RootID = v
	}
	if v := stringEnv("TASKPULSE_USER_EMAIL"); v != "" {
		cfg.UserEmail = v
	}
	cfg.Concurrency = intEnv("TASKPULSE_CONCURRENCY", cfg.Concurrency)
	if v := stringEnv("TASKPULSE_TRACKED"); v != "" {
		cfg.Tracked = splitList(v)
	}
	cfg.IntervalSeconds = intEnv("TASKPULSE_INTERVAL_SECONDS", cfg.IntervalSeconds)
	cfg.TickTimeoutSeconds = intEnv("TASKPULSE_TICK_TIMEOUT_SECONDS", cfg.TickTimeoutSeconds)
	if v := stringEnv("TASKPULSE_SNAPSHOT_DSN"); v != "" {
		cfg.SnapshotDSN = v
	}
	if v := stringEnv("TASKPULSE_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := stringEnv("TASKPULSE_WEBHOOK_SECRET"); v != "" {
		cfg.WebhookSecret = v
	}
	if v := stringEnv("TASKPULSE_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := stringEnv("TASKPULSE_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := stringEnv("TASKPULSE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := stringEnv("TASKPULSE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = defaultListenAddr
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = defaultIntervalSeconds
	} else if c.IntervalSeconds < minIntervalSeconds {
		c.IntervalSeconds = minIntervalSeconds
	}
	if c.TickTimeoutSeconds <= 0 {
		c.TickTimeoutSeconds = defaultTickTimeoutSeconds
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.PageSize < 0 {
		c.PageSize = 0
	}
	if c.PageSize > maxPageSize {
		c.PageSize = maxPageSize
	}
	tracked := make([]string, 0, len(c.Tracked))
	for _, id := range c.Tracked {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			tracked = append(tracked, trimmed)
		}
	}
	c.Tracked = tracked
}

// Interval is the monitor tick period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// TickTimeout bounds a single monitor tick.
func (c Config) TickTimeout() time.Duration {
	return time.Duration(c.TickTimeoutSeconds) * time.Second
}

func stringEnv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("name", name).Str("value", raw).Msg("invalid integer env override, keeping previous value")
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
