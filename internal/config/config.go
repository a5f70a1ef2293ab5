package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	// Server
	Env                  string
	Port                 string
	SlowRequestThreshold time.Duration
	OpsAPIKey            string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Accounts
	OwnerNickname   string
	StartingBalance decimal.Decimal

	// Attachments
	UploadDir      string
	MaxUploadBytes int64

	// Cache
	RedisURL        string
	CompanyCacheTTL time.Duration

	// Mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailWorkers  int
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Env:       getEnv("ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		OpsAPIKey: getEnv("OPS_API_KEY", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "cleaninvest"),
		DBPassword: getEnv("DB_PASSWORD", "cleaninvest"),
		DBName:     getEnv("DB_NAME", "cleaninvest"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		OwnerNickname: getEnv("OWNER_NICKNAME", ""),

		UploadDir: getEnv("UPLOAD_DIR", "uploads"),

		RedisURL: getEnv("REDIS_URL", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@cleaninvest.local"),
	}

	config.JWTExpirationDur = getDuration("JWT_EXPIRES_IN", 15*time.Minute)
	config.SlowRequestThreshold = getDuration("SLOW_REQUEST_THRESHOLD", time.Second)
	config.CompanyCacheTTL = getDuration("COMPANY_CACHE_TTL", 5*time.Minute)
	config.SMTPPort = getInt("SMTP_PORT", 587)
	config.MailWorkers = getInt("MAIL_WORKERS", 2)
	config.MaxUploadBytes = int64(getInt("MAX_UPLOAD_MB", 16)) << 20

	balStr := getEnv("STARTING_BALANCE", "1000")
	bal, err := decimal.NewFromString(balStr)
	if err != nil {
		log.Printf("Warning: invalid STARTING_BALANCE value '%s', falling back to 1000\n", balStr)
		bal = decimal.NewFromInt(1000)
	}
	config.StartingBalance = bal

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// DSN returns the PostgreSQL connection string used by gorm.
func (c *Config) DSN() string {
	return "host=" + c.DBHost + " port=" + c.DBPort + " user=" + c.DBUser +
		" password=" + c.DBPassword + " dbname=" + c.DBName + " sslmode=" + c.DBSSLMode
}

// MigrateURL returns the postgres:// URL expected by golang-migrate.
func (c *Config) MigrateURL() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort +
		"/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return n
}
