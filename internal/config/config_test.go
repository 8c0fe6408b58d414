package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SCRIBA_PORT", "VERIFY_TOKEN", "DATABASE_URL", "LOG_LEVEL",
		"NATS_URL", "NATS_TOKEN", "OPENAI_API_KEY", "OPENAI_MODEL",
		"OPENAI_PROMPT_ID", "OPENAI_PROMPT_ID_SUMMARIZER",
		"WHATSAPP_ACCESS_TOKEN", "WHATSAPP_PHONE_ID", "WHATSAPP_API_VERSION",
		"WEBHOOK_URL", "SCRIBA_MAX_TOOL_ROUNDS", "SCRIBA_WORKERS",
		"SCRIBA_QUEUE_SIZE", "SCRIBA_DEDUP_RETENTION_DAYS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.OpenAIModel != "gpt-4.1" {
		t.Errorf("expected default model gpt-4.1, got %s", cfg.OpenAIModel)
	}
	if cfg.WhatsAppVersion != "v22.0" {
		t.Errorf("expected default api version v22.0, got %s", cfg.WhatsAppVersion)
	}
	if cfg.MaxToolRounds != 5 {
		t.Errorf("expected default tool rounds 5, got %d", cfg.MaxToolRounds)
	}
	if cfg.Workers != 8 {
		t.Errorf("expected default workers 8, got %d", cfg.Workers)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("expected default retention 7, got %d", cfg.RetentionDays)
	}
	if cfg.NatsURL != "" {
		t.Errorf("expected empty default nats url, got %s", cfg.NatsURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SCRIBA_PORT", "8080")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("SCRIBA_MAX_TOOL_ROUNDS", "3")
	t.Setenv("SCRIBA_DEDUP_RETENTION_DAYS", "14")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", cfg.OpenAIModel)
	}
	if cfg.MaxToolRounds != 3 {
		t.Errorf("expected tool rounds 3, got %d", cfg.MaxToolRounds)
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("expected retention 14, got %d", cfg.RetentionDays)
	}
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("SCRIBA_PORT", "not-a-number")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("expected fallback port 3000, got %d", cfg.Port)
	}
}
