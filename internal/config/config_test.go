package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_ADDR", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_IDLE_TIMEOUT",
		"HTTP_SHUTDOWN_TIMEOUT", "REDIS_ADDR", "REDIS_PASSWORD", "KAFKA_BROKERS",
		"KAFKA_LOCATION_TOPIC", "KAFKA_EVENT_TOPIC", "PG_DSN", "STRIPE_API_KEY",
		"STRIPE_WEBHOOK_SECRET", "CURRENCY", "PUSH_ENDPOINT", "PUSH_KEY",
		"ROUTING_ENDPOINT", "QUOTE_CACHE_TTL", "LOG_LEVEL", "MIGRATE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadServerConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.KafkaLocationTopic != "driver-locations" || cfg.KafkaEventTopic != "ride-events" {
		t.Errorf("topics = %q %q", cfg.KafkaLocationTopic, cfg.KafkaEventTopic)
	}
	if cfg.QuoteCacheTTL != 5*time.Minute {
		t.Errorf("QuoteCacheTTL = %s", cfg.QuoteCacheTTL)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("brokers should default empty, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("HTTP_READ_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MIGRATE", "true")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.ReadTimeout != 30*time.Second {
		t.Errorf("overrides missed: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "k1:9092" || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if !cfg.RunMigrations {
		t.Error("MIGRATE=true ignored")
	}
}

func TestLoadServerConfigInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")

	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestStripeKeyRequiresWebhookSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRIPE_API_KEY", "sk_test_x")

	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error when webhook secret is missing")
	}

	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
	if _, err := LoadServerConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
