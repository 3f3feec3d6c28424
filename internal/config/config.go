package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Service ServiceConfig
	Session SessionConfig
	Tracing TracingConfig
}

type AppConfig struct {
	Environment string
	LogFilePath string
	LogConsole  bool
}

type ServiceConfig struct {
	BaseURL      string
	RequiresAuth bool
	QueryTopK    int           // 0 leaves top_k to the service default
	Timeout      time.Duration // 0 means no client-side timeout
}

type SessionConfig struct {
	Store     string // "file" | "redis" | "memory"
	TokenKey  string
	TokenFile string
	RedisURL  string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "logs/docqa-client.log"),
			LogConsole:  getEnvAsBool("LOG_CONSOLE", false),
		},
		Service: ServiceConfig{
			BaseURL:      strings.TrimRight(getEnv("DOCQA_BASE_URL", "http://127.0.0.1:8000"), "/"),
			RequiresAuth: getEnvAsBool("DOCQA_REQUIRES_AUTH", true),
			QueryTopK:    getEnvAsInt("QUERY_TOP_K", 0),
			Timeout:      time.Duration(getEnvAsInt("HTTP_TIMEOUT_SECONDS", 0)) * time.Second,
		},
		Session: SessionConfig{
			Store:     strings.ToLower(getEnv("TOKEN_STORE", StoreFile)),
			TokenKey:  getEnv("TOKEN_KEY", "token"),
			TokenFile: getEnv("TOKEN_FILE_PATH", defaultTokenFile()),
			RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

// IsProduction reports whether GO_ENV selects production logging
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".docqa", "session.json")
	}
	return filepath.Join(home, ".docqa", "session.json")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
