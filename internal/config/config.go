package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string

	// FrontendURL is the base URL of the web frontend, used to build the
	// confirmation links embedded in outbound emails.
	FrontendURL string

	DBDSN string

	// JWTSecret signs access/refresh session tokens; SigningSecret signs the
	// email confirmation and invitation tokens. Kept separate so rotating one
	// does not invalidate the other.
	JWTSecret     string
	SigningSecret string

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	LogLevel string

	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int

	MailQueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("ZIPLY_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("ZIPLY_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("ZIPLY_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("ZIPLY_HTTP_ADDR", ":8080")

	cfg.FrontendURL = strings.TrimRight(strings.TrimSpace(os.Getenv("ZIPLY_FRONTEND_URL")), "/")
	if cfg.FrontendURL == "" {
		return nil, fmt.Errorf("ZIPLY_FRONTEND_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("ZIPLY_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("ZIPLY_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("ZIPLY_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("ZIPLY_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("ZIPLY_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.SigningSecret = os.Getenv("ZIPLY_SIGNING_SECRET")
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("ZIPLY_SIGNING_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.SigningSecret) < 32 {
		return nil, fmt.Errorf("ZIPLY_SIGNING_SECRET must be at least 32 characters (currently %d)", len(cfg.SigningSecret))
	}

	cfg.SMTPHost = getEnvOrDefault("ZIPLY_SMTP_HOST", "localhost")

	var err error
	cfg.SMTPPort, err = getEnvIntOrDefault("ZIPLY_SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	cfg.SMTPUser = os.Getenv("ZIPLY_SMTP_USER")
	cfg.SMTPPass = os.Getenv("ZIPLY_SMTP_PASS")
	cfg.EmailFrom = getEnvOrDefault("ZIPLY_EMAIL_FROM", "no-reply@ziply.app")

	cfg.LogLevel = getEnvOrDefault("ZIPLY_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("ZIPLY_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	cfg.AccessTokenTTLMinutes, err = getEnvIntOrDefault("ZIPLY_ACCESS_TOKEN_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTLMinutes <= 0 {
		return nil, fmt.Errorf("ZIPLY_ACCESS_TOKEN_TTL_MINUTES must be positive (got: %d)", cfg.AccessTokenTTLMinutes)
	}

	cfg.RefreshTokenTTLDays, err = getEnvIntOrDefault("ZIPLY_REFRESH_TOKEN_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTLDays <= 0 {
		return nil, fmt.Errorf("ZIPLY_REFRESH_TOKEN_TTL_DAYS must be positive (got: %d)", cfg.RefreshTokenTTLDays)
	}

	cfg.MailQueueSize, err = getEnvIntOrDefault("ZIPLY_MAIL_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	if cfg.MailQueueSize <= 0 {
		return nil, fmt.Errorf("ZIPLY_MAIL_QUEUE_SIZE must be positive (got: %d)", cfg.MailQueueSize)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"ZIPLY_ENV":                      c.Env,
		"ZIPLY_HTTP_ADDR":                c.HTTPAddr,
		"ZIPLY_FRONTEND_URL":             c.FrontendURL,
		"ZIPLY_DB_DSN":                   redactDSN(c.DBDSN),
		"ZIPLY_JWT_SECRET":               "[REDACTED]",
		"ZIPLY_SIGNING_SECRET":           "[REDACTED]",
		"ZIPLY_SMTP_HOST":                c.SMTPHost,
		"ZIPLY_SMTP_PORT":                strconv.Itoa(c.SMTPPort),
		"ZIPLY_SMTP_USER":                c.SMTPUser,
		"ZIPLY_SMTP_PASS":                "[REDACTED]",
		"ZIPLY_EMAIL_FROM":               c.EmailFrom,
		"ZIPLY_LOG_LEVEL":                c.LogLevel,
		"ZIPLY_ACCESS_TOKEN_TTL_MINUTES": strconv.Itoa(c.AccessTokenTTLMinutes),
		"ZIPLY_REFRESH_TOKEN_TTL_DAYS":   strconv.Itoa(c.RefreshTokenTTLDays),
		"ZIPLY_MAIL_QUEUE_SIZE":          strconv.Itoa(c.MailQueueSize),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
