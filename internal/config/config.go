package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	CatalogPath string
	SessionTTL  time.Duration
	// Cross-site handoff: entry point of the counterpart deployment. Empty
	// means this deployment is standalone and the gate falls back to the
	// local terminal page.
	CounterpartURL string
	// Form-completion webhook
	WebhookSecret string
	Form1Code     string
	Form2Code     string
	// Audit sink: Postgres when DATABASE_URL is set, otherwise the HTTP
	// collector when AuditURL is set, otherwise the process log.
	DatabaseURL string
	AuditURL    string
	// Redis Configuration
	RedisURL string
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8787"),
		CatalogPath:    getenv("SHOPLAB_CATALOG_PATH", "./data/products.csv"),
		SessionTTL:     time.Duration(getenvInt("SHOPLAB_SESSION_TTL_SECONDS", 43200)) * time.Second,
		CounterpartURL: getenv("SHOPLAB_COUNTERPART_URL", ""),
		WebhookSecret:  getenv("SHOPLAB_WEBHOOK_SECRET", "shoplab-dev-secret"),
		Form1Code:      getenv("SHOPLAB_FORM1_CODE", ""),
		Form2Code:      getenv("SHOPLAB_FORM2_CODE", ""),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		AuditURL:       getenv("SHOPLAB_AUDIT_URL", ""),
		// Redis - empty by default, sessions fall back to in-process memory
		RedisURL: getenv("REDIS_URL", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
