package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	VerifyToken string
	DatabaseURL string
	LogLevel    string

	NatsURL   string
	NatsToken string

	OpenAIAPIKey    string
	OpenAIModel     string
	PromptID        string
	SummaryPromptID string

	WhatsAppToken   string
	WhatsAppPhoneID string
	WhatsAppVersion string

	AutomationWebhookURL string

	MaxToolRounds int
	Workers       int
	QueueSize     int
	RetentionDays int
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over .env entries.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        envInt("SCRIBA_PORT", 3000),
		VerifyToken: envStr("VERIFY_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),

		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIModel:     envStr("OPENAI_MODEL", "gpt-4.1"),
		PromptID:        envStr("OPENAI_PROMPT_ID", ""),
		SummaryPromptID: envStr("OPENAI_PROMPT_ID_SUMMARIZER", ""),

		WhatsAppToken:   envStr("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneID: envStr("WHATSAPP_PHONE_ID", ""),
		WhatsAppVersion: envStr("WHATSAPP_API_VERSION", "v22.0"),

		AutomationWebhookURL: envStr("WEBHOOK_URL", ""),

		MaxToolRounds: envInt("SCRIBA_MAX_TOOL_ROUNDS", 5),
		Workers:       envInt("SCRIBA_WORKERS", 8),
		QueueSize:     envInt("SCRIBA_QUEUE_SIZE", 64),
		RetentionDays: envInt("SCRIBA_DEDUP_RETENTION_DAYS", 7),
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
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
