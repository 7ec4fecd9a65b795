package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	DatabaseURL string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleProjectID    string
	GooglePubSubTopic  string
	GoogleCredentials  string

	FirebaseCredentials string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Sync engine tunables. Defaults follow the design targets; override via
	// env mainly for staging and tests.
	SyncPollFloor      time.Duration
	SyncPollCeiling    time.Duration
	SyncBackupInterval time.Duration
	SyncBatchWidth     int
	SyncRecencyDays    int
	SentKeepCount      int
	WatchRenewalLead   time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	accessExpiry := 15 * time.Minute
	if exp := os.Getenv("JWT_ACCESS_EXPIRY"); exp != "" {
		if parsed, err := time.ParseDuration(exp); err == nil {
			accessExpiry = parsed
		}
	}

	refreshExpiry := 168 * time.Hour // 7 days
	if exp := os.Getenv("JWT_REFRESH_EXPIRY"); exp != "" {
		if parsed, err := time.ParseDuration(exp); err == nil {
			refreshExpiry = parsed
		}
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:  accessExpiry,
		JWTRefreshExpiry: refreshExpiry,

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=leadmail port=5432 sslmode=disable"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/auth/google/callback"),
		GoogleProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:  getEnv("GOOGLE_PUBSUB_TOPIC", "gmail-updates"),
		GoogleCredentials:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		SyncPollFloor:      getEnvDuration("SYNC_POLL_FLOOR", 15*time.Second),
		SyncPollCeiling:    getEnvDuration("SYNC_POLL_CEILING", 60*time.Second),
		SyncBackupInterval: getEnvDuration("SYNC_BACKUP_INTERVAL", 5*time.Minute),
		SyncBatchWidth:     getEnvInt("SYNC_BATCH_WIDTH", 5),
		SyncRecencyDays:    getEnvInt("SYNC_RECENCY_DAYS", 30),
		SentKeepCount:      getEnvInt("SENT_KEEP_COUNT", 1000),
		WatchRenewalLead:   getEnvDuration("WATCH_RENEWAL_LEAD", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
