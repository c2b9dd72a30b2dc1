package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Provider ProviderConfig
	Sweeper  SweeperConfig
	App      AppConfig

	// Warnings collects non-fatal problems found while loading (bad numbers, missing .env).
	Warnings []string
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

type DatabaseConfig struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type StorageConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	AccessKey     string
	SecretKey     string
}

type ProviderConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	RPS     float64
}

type SweeperConfig struct {
	Schedule   string
	StaleAfter time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		cfg.Warnings = append(cfg.Warnings, "no .env file found, using environment variables")
	}

	cfg.Server = ServerConfig{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
	}
	cfg.Database = DatabaseConfig{
		DSN:      getEnv("DB_DSN", ""),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     cfg.getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "imagegen"),
		MaxConns: cfg.getEnvAsInt("DB_MAX_CONNS", 10),
		MinConns: cfg.getEnvAsInt("DB_MIN_CONNS", 2),
	}
	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       cfg.getEnvAsInt("REDIS_DB", 0),
		Channel:  getEnv("REDIS_CHANNEL", "image_generation_requests"),
	}
	cfg.Storage = StorageConfig{
		Bucket:        getEnv("S3_BUCKET", "nano_nanana_pro"),
		Region:        getEnv("S3_REGION", "us-east-1"),
		Endpoint:      getEnv("S3_ENDPOINT", ""),
		PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
		AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		SecretKey:     getEnv("S3_SECRET_KEY", ""),
	}
	cfg.Provider = ProviderConfig{
		URL:     getEnv("PROVIDER_URL", ""),
		APIKey:  getEnv("PROVIDER_API_KEY", ""),
		Model:   getEnv("PROVIDER_MODEL", "nano-banana-pro"),
		Timeout: cfg.getEnvAsDuration("PROVIDER_TIMEOUT", 5*time.Minute),
		RPS:     cfg.getEnvAsFloat("PROVIDER_RPS", 2),
	}
	cfg.Sweeper = SweeperConfig{
		Schedule:   getEnv("SWEEP_SCHEDULE", "@every 1m"),
		StaleAfter: cfg.getEnvAsDuration("STALE_AFTER", 15*time.Minute),
	}
	cfg.App = AppConfig{
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("DB_DSN or DB_HOST is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}

	if c.Provider.URL == "" {
		return fmt.Errorf("PROVIDER_URL is required")
	}

	if c.Provider.RPS <= 0 {
		return fmt.Errorf("PROVIDER_RPS must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func (c *Config) getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid integer for %s, using default: %d", key, defaultValue))
		return defaultValue
	}

	return value
}

func (c *Config) getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid number for %s, using default: %g", key, defaultValue))
		return defaultValue
	}

	return value
}

func (c *Config) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid duration for %s, using default: %s", key, defaultValue))
		return defaultValue
	}

	return value
}
