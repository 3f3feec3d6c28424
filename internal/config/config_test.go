package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DOCQA_BASE_URL", "DOCQA_REQUIRES_AUTH", "QUERY_TOP_K", "HTTP_TIMEOUT_SECONDS",
		"TOKEN_STORE", "TOKEN_KEY", "GO_ENV", "LOG_CONSOLE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	assert.Equal(t, "http://127.0.0.1:8000", cfg.Service.BaseURL)
	assert.True(t, cfg.Service.RequiresAuth)
	assert.Equal(t, 0, cfg.Service.QueryTopK)
	assert.Equal(t, time.Duration(0), cfg.Service.Timeout)
	assert.Equal(t, StoreFile, cfg.Session.Store)
	assert.Equal(t, "token", cfg.Session.TokenKey)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.App.LogConsole)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DOCQA_BASE_URL", "https://qa.example.com/")
	t.Setenv("DOCQA_REQUIRES_AUTH", "false")
	t.Setenv("QUERY_TOP_K", "8")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "30")
	t.Setenv("TOKEN_STORE", "Redis")
	t.Setenv("TOKEN_KEY", "docqa-token")
	t.Setenv("GO_ENV", "production")

	cfg := Load()

	assert.Equal(t, "https://qa.example.com", cfg.Service.BaseURL)
	assert.False(t, cfg.Service.RequiresAuth)
	assert.Equal(t, 8, cfg.Service.QueryTopK)
	assert.Equal(t, 30*time.Second, cfg.Service.Timeout)
	assert.Equal(t, StoreRedis, cfg.Session.Store)
	assert.Equal(t, "docqa-token", cfg.Session.TokenKey)
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvHelpersFallBack(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	t.Setenv("SOME_BOOL", "maybe")

	assert.Equal(t, 3, getEnvAsInt("SOME_INT", 3))
	assert.True(t, getEnvAsBool("SOME_BOOL", true))
}
