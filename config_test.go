package personaquiz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PERSONAQUIZ_STATE_DIR", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, CallTimeout, cfg.CallTimeout)
	assert.Equal(t, MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, RetryBackoff, cfg.RetryBackoff)
	assert.Equal(t, ConcurrentLimit, cfg.ConcurrentLimit)
	assert.Equal(t, RefillDebounce, cfg.RefillDebounce)
	assert.Equal(t, DefaultIdleLimit, cfg.IdleTimeout)
	assert.Equal(t, "file", cfg.Store)

	assert.Equal(t, SchedulerOptions{Limit: 3, Debounce: 50 * time.Millisecond}, cfg.SchedulerOptions())
	assert.True(t, IsConfigurationError(cfg.Client().Validate()), "missing key is reported by the gateway")
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-live")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("PERSONAQUIZ_CONCURRENT_LIMIT", "5")
	t.Setenv("PERSONAQUIZ_CALL_TIMEOUT", "10s")
	t.Setenv("PERSONAQUIZ_STORE", "sqlite")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.ConcurrentLimit)
	assert.Equal(t, ExecutorOptions{Timeout: 10 * time.Second, MaxAttempts: 5, Backoff: 2 * time.Second}, cfg.ExecutorOptions())
	assert.Equal(t, "sqlite", cfg.Store)
	assert.NoError(t, cfg.Client().Validate())
	assert.NotEmpty(t, cfg.StateDir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"PERSONAQUIZ_STORE":            "postgres",
		"PERSONAQUIZ_CONCURRENT_LIMIT": "0",
		"PERSONAQUIZ_MAX_ATTEMPTS":     "0",
	}
	for env, value := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			_, err := LoadConfig()
			assert.True(t, IsConfigurationError(err), "%s=%s", env, value)
		})
	}

	t.Run("unparsable duration", func(t *testing.T) {
		t.Setenv("PERSONAQUIZ_CALL_TIMEOUT", "soon")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestClientConfig_Validate(t *testing.T) {
	assert.True(t, IsConfigurationError(ClientConfig{APIKey: "your_openai_api_key_here", Model: "m"}.Validate()))
	assert.True(t, IsConfigurationError(ClientConfig{APIKey: "sk", Model: ""}.Validate()))
	assert.NoError(t, ClientConfig{APIKey: "sk", Model: "m", BaseURL: "http://localhost:11434/v1"}.Validate())
}
