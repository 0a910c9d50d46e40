// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/riata-onboarding/internal/session"
	"github.com/ashureev/riata-onboarding/internal/voice"
)

// Voice modes.
const (
	// ModeRelay drives the platform SDK in the learner's browser.
	ModeRelay = "relay"
	// ModeDirect holds a text-only conversation from the server.
	ModeDirect = "elevenlabs"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string
	DBPath      string
	SessionTTL  time.Duration
	PersonaFile string
	Voice       VoiceConfig
	Events      EventsConfig
	Telemetry   TelemetryConfig
	ToolRate    RateConfig
}

// VoiceConfig identifies the agent and how the server reaches it.
type VoiceConfig struct {
	Mode           string
	AgentID        string
	APIKey         string
	ConnectionType string
	OpenTimeout    time.Duration
	EchoWindow     time.Duration
}

// EventsConfig controls the browser event stream.
type EventsConfig struct {
	QueueSize     int
	RedisAddr     string
	RedisChannel  string
	RetryDelay    time.Duration
	KeepaliveEach time.Duration
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	Insecure     bool
	SampleRatio  float64
}

// RateConfig limits tool webhook calls per conversation.
type RateConfig struct {
	PerSecond float64
	Burst     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/riata.db"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 60*time.Minute),
		PersonaFile: getEnv("PERSONA_FILE", ""),
		Voice: VoiceConfig{
			Mode:           strings.ToLower(getEnv("VOICE_MODE", ModeRelay)),
			AgentID:        getEnv("AGENT_ID", ""),
			APIKey:         getEnv("ELEVENLABS_API_KEY", ""),
			ConnectionType: getEnv("CONNECTION_TYPE", voice.ConnectionWebRTC),
			OpenTimeout:    getEnvDuration("VOICE_OPEN_TIMEOUT", 30*time.Second),
			EchoWindow:     getEnvDuration("GREETING_ECHO_WINDOW", 15*time.Second),
		},
		Events: EventsConfig{
			QueueSize:     getEnvInt("EVENT_QUEUE_SIZE", 100),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisChannel:  getEnv("REDIS_CHANNEL", "riata:events"),
			RetryDelay:    getEnvDuration("SSE_RETRY", 5*time.Second),
			KeepaliveEach: getEnvDuration("SSE_KEEPALIVE", 10*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvBool("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "riata-onboarding"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio:  getEnvFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
		ToolRate: RateConfig{
			PerSecond: getEnvFloat("TOOL_RATE_PER_SECOND", 5),
			Burst:     getEnvInt("TOOL_RATE_BURST", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if c.Voice.AgentID == "" {
		return errors.New("AGENT_ID cannot be empty")
	}
	switch c.Voice.Mode {
	case ModeRelay:
	case ModeDirect:
		if c.Voice.APIKey == "" {
			return errors.New("ELEVENLABS_API_KEY is required when VOICE_MODE=elevenlabs")
		}
	default:
		return fmt.Errorf("VOICE_MODE must be %q or %q, got %q", ModeRelay, ModeDirect, c.Voice.Mode)
	}
	switch c.Voice.ConnectionType {
	case voice.ConnectionWebRTC, voice.ConnectionWebSocket:
	default:
		return fmt.Errorf("CONNECTION_TYPE must be %q or %q", voice.ConnectionWebRTC, voice.ConnectionWebSocket)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be > 0")
	}
	if c.Events.QueueSize <= 0 {
		return errors.New("EVENT_QUEUE_SIZE must be > 0")
	}
	if c.ToolRate.PerSecond <= 0 || c.ToolRate.Burst <= 0 {
		return errors.New("TOOL_RATE_PER_SECOND and TOOL_RATE_BURST must be > 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// LoadPersona reads the optional persona wording file. An empty path
// yields the stock persona.
func LoadPersona(path string) (session.Persona, error) {
	if path == "" {
		return session.DefaultPersona(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Persona{}, fmt.Errorf("read persona file: %w", err)
	}
	var p session.Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return session.Persona{}, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	return p, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
