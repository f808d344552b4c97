package luckycat

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-luckycat/pkg/audioio"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "yue-HK", cfg.Language)
	assert.Equal(t, 6, cfg.HistoryCapacity)
	assert.Equal(t, "ws://127.0.0.1:3000/control", cfg.Robot.ControlURL())
	assert.Equal(t, "http://127.0.0.1:3000", cfg.Robot.APIURL())
	assert.Equal(t, "always answer in spoken cantonese", cfg.Chat.Directive)
	assert.Equal(t, CompletionEvent, cfg.Completion.Strategy)
	assert.Equal(t, 30*time.Second, cfg.Completion.Timeout)
	assert.Nil(t, cfg.Chat.PromptSet)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luckycat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
language: en-US
robot:
  host: 192.168.1.20
  reconnect_delay: 250ms
chat:
  prompt_set: 4
  mode: unlimit
completion:
  strategy: poll
  poll_interval: 500ms
audio:
  backend: mock
`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "en-US", cfg.Language)
	assert.Equal(t, "192.168.1.20", cfg.Robot.Host)
	assert.Equal(t, 3000, cfg.Robot.Port, "keys missing from the file keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Robot.ReconnectDelay)
	require.NotNil(t, cfg.Chat.PromptSet)
	assert.Equal(t, 4, *cfg.Chat.PromptSet)
	assert.Equal(t, "unlimit", cfg.Chat.Mode)
	assert.Equal(t, CompletionPoll, cfg.Completion.Strategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Completion.PollInterval)
	assert.Equal(t, audioio.BackendMock, cfg.Audio.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("robot: [not, a, map]"), 0o600))
	assert.Error(t, cfg.LoadFile(path))
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("ROBOT_HOST", "10.0.0.5")
	t.Setenv("ROBOT_PORT", "3100")
	t.Setenv("CHAT_USERNAME", "robot")
	t.Setenv("CHAT_PASSWORD", "secret")
	t.Setenv("CHAT_PROMPT_SET", "7")
	t.Setenv("COMPLETION_TIMEOUT", "10s")
	t.Setenv("DASHBOARD_ADDR", "")

	cfg := DefaultConfig()
	cfg.LoadEnvConfig()

	assert.Equal(t, "ws://10.0.0.5:3100/control", cfg.Robot.ControlURL())
	assert.Equal(t, "robot", cfg.Chat.Username)
	assert.Equal(t, "secret", cfg.Chat.Password)
	require.NotNil(t, cfg.Chat.PromptSet)
	assert.Equal(t, 7, *cfg.Chat.PromptSet)
	assert.Equal(t, 10*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, ":8080", cfg.Dashboard.Addr, "empty env values are ignored")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing host", func(c *Config) { c.Robot.Host = "" }, "Robot.Host"},
		{"bad port", func(c *Config) { c.Robot.Port = 70000 }, "Robot.Port"},
		{"missing language", func(c *Config) { c.Language = "" }, "Language"},
		{"missing base url", func(c *Config) { c.Chat.BaseURL = "" }, "Chat.BaseURL"},
		{"gemini without key", func(c *Config) { c.Chat.Backend = ChatGemini }, "Chat.GeminiAPIKey"},
		{"unknown backend", func(c *Config) { c.Chat.Backend = "openai" }, "Chat.Backend"},
		{"unknown strategy", func(c *Config) { c.Completion.Strategy = "guess" }, "Completion.Strategy"},
		{"unknown recognizer", func(c *Config) { c.Recognizer.Backend = "whisper" }, "Recognizer.Backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}
