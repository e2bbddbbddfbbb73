package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bridge.
type Config struct {
	Port string
	Env  string

	// WeCom tenant credentials
	WecomToken          string
	WecomEncodingAESKey string
	WecomCorpID         string
	WecomAgentID        string
	WecomAgentSecret    string
	WecomAPIBase        string

	// OpenAI-compatible backend
	OpenAIAPIURL      string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAITemperature float64

	// Optional replay guard
	RedisURL string

	// Tuning
	SessionMaxTurns int
	SessionMaxBytes int
	SendMaxChars    int
	UpstreamTimeout time.Duration
	ProcessTimeout  time.Duration
}

// Load reads configuration from environment variables, loading .env in
// development. Validation is eager: a bad key or missing credential
// fails here so the service never serves traffic misconfigured.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		WecomToken:          os.Getenv("WECOM_TOKEN"),
		WecomEncodingAESKey: os.Getenv("WECOM_ENCODING_AES_KEY"),
		WecomCorpID:         os.Getenv("WECOM_CORP_ID"),
		WecomAgentID:        os.Getenv("WECOM_AGENT_ID"),
		WecomAgentSecret:    os.Getenv("WECOM_AGENT_SECRET"),
		WecomAPIBase:        os.Getenv("WECOM_API_BASE"),

		OpenAIAPIURL: os.Getenv("OPENAI_API_URL"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),

		RedisURL: os.Getenv("REDIS_URL"),

		SessionMaxTurns: getEnvInt("SESSION_MAX_TURNS", 20),
		SessionMaxBytes: getEnvInt("SESSION_MAX_BYTES", 8192),
		SendMaxChars:    getEnvInt("SEND_MAX_CHARS", 1000),
		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		ProcessTimeout:  getEnvDuration("PROCESS_TIMEOUT", 60*time.Second),
	}

	temp := getEnv("OPENAI_TEMPERATURE", "0.6")
	t, err := strconv.ParseFloat(temp, 64)
	if err != nil {
		return nil, fmt.Errorf("OPENAI_TEMPERATURE: %w", err)
	}
	cfg.OpenAITemperature = t

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"WECOM_TOKEN":            c.WecomToken,
		"WECOM_ENCODING_AES_KEY": c.WecomEncodingAESKey,
		"WECOM_CORP_ID":          c.WecomCorpID,
		"WECOM_AGENT_ID":         c.WecomAgentID,
		"WECOM_AGENT_SECRET":     c.WecomAgentSecret,
		"OPENAI_API_KEY":         c.OpenAIAPIKey,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if len(c.WecomEncodingAESKey) != 43 {
		return fmt.Errorf("WECOM_ENCODING_AES_KEY must be 43 characters, got %d", len(c.WecomEncodingAESKey))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
