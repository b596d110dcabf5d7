package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer    string // Issuer claim for access tokens
	JWTSecret string // Required: HS256 signing secret (min 32 bytes)

	DatabaseFile string // Path to SQLite database file (default: ./auth.db)
	PepperFile   string // Path to file containing pepper for password hashing (default: ./pepper)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
	Port      int    // HTTP server port (default: 8080)

	AccessTTL   time.Duration // Access token lifetime (default: 15m)
	RefreshTTL  time.Duration // Refresh token lifetime without remember_me (default: 12h)
	RememberTTL time.Duration // Refresh token lifetime with remember_me (default: 720h)
	PreAuthTTL  time.Duration // Pre-auth token lifetime (default: 5m)
	CaptchaTTL  time.Duration // Captcha challenge lifetime (default: 5m)
	OTPTTL      time.Duration // Emailed code lifetime (default: 5m)
	OTPCooldown time.Duration // Minimum gap between emailed codes (default: 60s)

	SMTPHost     string // SMTP relay host; empty disables real delivery
	SMTPPort     string // SMTP relay port (default: 587)
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string // From address for outbound mail
	NotifyQueue  int    // Notify dispatcher queue capacity (default: 64)

	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	// A .env file is a dev convenience; missing is fine.
	_ = godotenv.Load()

	return Config{
		Issuer:    getEnvOrDefault("AUTH_ISSUER", "cairn-auth"),
		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		Port:      getEnvIntOrDefault("PORT", 8080),

		AccessTTL:   getEnvDurationOrDefault("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:  getEnvDurationOrDefault("AUTH_REFRESH_TTL", 12*time.Hour),
		RememberTTL: getEnvDurationOrDefault("AUTH_REMEMBER_TTL", 30*24*time.Hour),
		PreAuthTTL:  getEnvDurationOrDefault("AUTH_PRE_AUTH_TTL", 5*time.Minute),
		CaptchaTTL:  getEnvDurationOrDefault("AUTH_CAPTCHA_TTL", 5*time.Minute),
		OTPTTL:      getEnvDurationOrDefault("AUTH_OTP_TTL", 5*time.Minute),
		OTPCooldown: getEnvDurationOrDefault("AUTH_OTP_COOLDOWN", 60*time.Second),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnvOrDefault("SMTP_FROM", "no-reply@cairnhealth.local"),
		NotifyQueue:  getEnvIntOrDefault("NOTIFY_QUEUE_SIZE", 64),

		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
