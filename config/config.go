package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the application.
type Config struct {
	Port              string
	DatabaseURL       string
	TwilioAccountSID  string
	TwilioAuthToken   string
	GeminiAPIKey      string
	GeminiModel       string
	ResendAPIKey      string
	NotifyFromEmail   string
	RabbitMQURL       string
	RabbitMQQueue     string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKey       string
	S3SecretKey       string
	WebhookPath       string
	DispatchTimeout   time.Duration
	ClassifyTimeout   time.Duration
	DashboardBaseURL  string
}

// LoadConfig loads configuration from environment variables.
// A .env file is honored when present; real environment variables win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Port:             os.Getenv("PORT"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      os.Getenv("GEMINI_MODEL"),
		ResendAPIKey:     os.Getenv("RESEND_API_KEY"),
		NotifyFromEmail:  os.Getenv("NOTIFY_FROM_EMAIL"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		RabbitMQQueue:    os.Getenv("RABBITMQ_QUEUE"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Region:         os.Getenv("S3_REGION"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		WebhookPath:      os.Getenv("TWILIO_WEBHOOK_PATH"),
		DashboardBaseURL: os.Getenv("DASHBOARD_BASE_URL"),
		DispatchTimeout:  durationEnv("DISPATCH_TIMEOUT_MS", 5000),
		ClassifyTimeout:  durationEnv("CLASSIFY_TIMEOUT_MS", 8000),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhooks/twilio"
		log.Info().Str("path", cfg.WebhookPath).Msg("TWILIO_WEBHOOK_PATH not set, using default")
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.RabbitMQQueue == "" {
		cfg.RabbitMQQueue = "condopilot_events"
	}
	if cfg.NotifyFromEmail == "" {
		cfg.NotifyFromEmail = "notifications@condopilot.app"
	}

	return cfg, nil
}

func durationEnv(key string, defaultMs int) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(defaultMs) * time.Millisecond
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid duration value, using default")
		return time.Duration(defaultMs) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}
