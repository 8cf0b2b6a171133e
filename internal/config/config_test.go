package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"GEMINI_API_KEY", "DATABASE_URL", "HTTP_PORT", "MEMORY_MAX_MESSAGES", "BACKEND_URL", "REQUEST_TIMEOUT_SECONDS", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	t.Setenv("MEMORY_MAX_MESSAGES", "not-a-number")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "-3")
	t.Setenv("BACKEND_URL", "http://backend.test")

	LoadConfig()

	assert.Equal(t, 20, AppConfig.MemoryMaxMessages)
	assert.Equal(t, 10*time.Second, AppConfig.RequestTimeout)
	assert.Equal(t, "http://backend.test", AppConfig.BackendURL)
}

func TestValidateServerRequiresAPIKey(t *testing.T) {
	cfg := Config{DatabaseURL: "x.db", HTTPPort: "8080"}
	require.Error(t, cfg.ValidateServer())

	cfg.GeminiAPIKey = "key"
	require.NoError(t, cfg.ValidateServer())
}
