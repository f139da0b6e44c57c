package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// GitHub
	GitHubAPIURL      string
	GitHubSyncTimeout time.Duration

	// Email verification
	ResendAPIKey        string
	MailFrom            string
	VerificationCodeTTL time.Duration

	// Campus catalogue (email domains, tech stack options)
	CampusConfigPath string

	// Rate limiter storage; empty means in-memory
	RedisURL string

	// Server
	Port        string
	CORSOrigins string

	// Guards /metrics when set
	OpsToken string

	SentryDSN string
	AppEnv    string
	LogLevel  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "gituhb"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "720h"), 720*time.Hour),

		GitHubAPIURL:      getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubSyncTimeout: parseDuration(getEnv("GITHUB_SYNC_TIMEOUT", "20s"), 20*time.Second),

		ResendAPIKey:        getEnv("RESEND_API_KEY", ""),
		MailFrom:            getEnv("MAIL_FROM", "GitUHb <noreply@gituhb.app>"),
		VerificationCodeTTL: parseDuration(getEnv("VERIFICATION_CODE_TTL", "15m"), 15*time.Minute),

		CampusConfigPath: getEnv("CAMPUS_CONFIG_PATH", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		OpsToken: getEnv("OPS_TOKEN", ""),

		SentryDSN: getEnv("SENTRY_DSN", ""),
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.JWTSecret == "" {
		result = multierror.Append(result, fmt.Errorf("JWT_SECRET is required"))
	}
	if c.DBPassword == "" {
		result = multierror.Append(result, fmt.Errorf("DB_PASSWORD is required"))
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		result = multierror.Append(result, fmt.Errorf("JWT expiries must be positive"))
	}
	return result.ErrorOrNil()
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
