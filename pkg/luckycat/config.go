// Package luckycat wires the robot control channel, speech recognition,
// chat backend and turn orchestrator into one application.
package luckycat

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-luckycat/internal/config"
	"github.com/teslashibe/go-luckycat/pkg/audioio"
	"github.com/teslashibe/go-luckycat/pkg/chat"
	"github.com/teslashibe/go-luckycat/pkg/history"
	"github.com/teslashibe/go-luckycat/pkg/stt"
	"github.com/teslashibe/go-luckycat/pkg/turn"
	"github.com/teslashibe/go-luckycat/pkg/web"
)

// Chat backends.
const (
	ChatServer = "server"
	ChatGemini = "gemini"
)

// Completion strategies.
const (
	CompletionEvent = "event"
	CompletionPoll  = "poll"
)

// Recognizer backends.
const (
	RecognizerGoogle = "google"
	RecognizerMock   = "mock"
)

// DefaultVADThreshold ends a capture after the configured silence once
// the input level has dropped below roughly -34 dBFS.
const DefaultVADThreshold = 0.02

// Config holds all configuration for the application.
// Flag parsing is done in cmd/luckycat; this struct is data only.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Language is the BCP-47 tag used for recognition and speech.
	Language string `yaml:"language"`

	// HistoryCapacity bounds the conversation kept for the chat backend.
	HistoryCapacity int `yaml:"history_capacity"`

	Robot      RobotConfig      `yaml:"robot"`
	Chat       ChatConfig       `yaml:"chat"`
	Completion CompletionConfig `yaml:"completion"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Audio      AudioConfig      `yaml:"audio"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

// RobotConfig locates the robot.
type RobotConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// ControlURL returns the websocket endpoint of the robot.
func (r RobotConfig) ControlURL() string {
	return config.ControlURL(r.Host, r.Port)
}

// APIURL returns the robot HTTP base URL.
func (r RobotConfig) APIURL() string {
	return config.RobotAPIURL(r.Host, r.Port)
}

// ChatConfig selects and configures the chat backend.
type ChatConfig struct {
	// Backend is "server" or "gemini".
	Backend string `yaml:"backend"`

	BaseURL   string        `yaml:"base_url"`
	Path      string        `yaml:"path"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Directive string        `yaml:"directive"`
	Mode      string        `yaml:"mode"`
	PromptSet *int          `yaml:"prompt_set"`
	Timeout   time.Duration `yaml:"timeout"`

	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
}

// CompletionConfig controls how the end of robot speech is detected.
type CompletionConfig struct {
	// Strategy is "event" (tts end frame) or "poll" (GET /status).
	Strategy     string        `yaml:"strategy"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RecognizerConfig selects and configures speech recognition.
type RecognizerConfig struct {
	// Backend is "google" or "mock".
	Backend         string        `yaml:"backend"`
	CredentialsFile string        `yaml:"credentials_file"`
	APIKey          string        `yaml:"api_key"`
	Endpoint        string        `yaml:"endpoint"`
	Model           string        `yaml:"model"`
	InterimInterval time.Duration `yaml:"interim_interval"`

	// MockTranscript is what the mock recognizer hears.
	MockTranscript string `yaml:"mock_transcript"`
}

// AudioConfig configures the microphone and end-of-speech detection.
type AudioConfig struct {
	Backend      audioio.Backend `yaml:"backend"`
	Device       string          `yaml:"device"`
	VADThreshold float64         `yaml:"vad_threshold"`
	VADSilence   time.Duration   `yaml:"vad_silence"`
}

// DashboardConfig configures the web dashboard. An empty Addr disables it.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	stc := stt.DefaultConfig()
	return &Config{
		LogLevel:        "info",
		Language:        stt.DefaultLanguage,
		HistoryCapacity: history.DefaultCapacity,
		Robot: RobotConfig{
			Host:           config.DefaultRobotHost,
			Port:           config.DefaultRobotPort,
			ReconnectDelay: time.Second,
		},
		Chat: ChatConfig{
			Backend:     ChatServer,
			BaseURL:     chat.DefaultBaseURL,
			Path:        chat.DefaultChatPath,
			Directive:   chat.DefaultDirective,
			Mode:        string(chat.ModeUserDefault),
			Timeout:     chat.DefaultTimeout,
			GeminiModel: chat.DefaultGeminiModel,
		},
		Completion: CompletionConfig{
			Strategy:     CompletionEvent,
			Timeout:      turn.DefaultCompletionTimeout,
			PollInterval: turn.DefaultPollInterval,
		},
		Recognizer: RecognizerConfig{
			Backend: RecognizerGoogle,
		},
		Audio: AudioConfig{
			Backend:      audioio.BackendAuto,
			VADThreshold: DefaultVADThreshold,
			VADSilence:   stc.VADSilence,
		},
		Dashboard: DashboardConfig{
			Addr: web.DefaultAddr,
		},
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnvConfig applies environment overrides.
// Call this after LoadFile and before flags are applied.
func (c *Config) LoadEnvConfig() {
	c.LogLevel = config.String("LOG_LEVEL", c.LogLevel)
	c.Language = config.String("LUCKYCAT_LANGUAGE", c.Language)

	c.Robot.Host = config.RobotHost(c.Robot.Host)
	c.Robot.Port = config.Int("ROBOT_PORT", c.Robot.Port)

	c.Chat.Backend = config.String("CHAT_BACKEND", c.Chat.Backend)
	c.Chat.BaseURL = config.String("CHAT_BASE_URL", c.Chat.BaseURL)
	c.Chat.Username = config.String("CHAT_USERNAME", c.Chat.Username)
	c.Chat.Password = config.String("CHAT_PASSWORD", c.Chat.Password)
	if set := config.Int("CHAT_PROMPT_SET", 0); set > 0 {
		c.Chat.PromptSet = &set
	}
	c.Chat.GeminiAPIKey = config.String("GEMINI_API_KEY", config.String("GOOGLE_API_KEY", c.Chat.GeminiAPIKey))

	c.Recognizer.CredentialsFile = config.String("GOOGLE_APPLICATION_CREDENTIALS", c.Recognizer.CredentialsFile)
	c.Recognizer.APIKey = config.String("SPEECH_API_KEY", c.Recognizer.APIKey)

	c.Completion.Strategy = config.String("COMPLETION_STRATEGY", c.Completion.Strategy)
	c.Completion.Timeout = config.Duration("COMPLETION_TIMEOUT", c.Completion.Timeout)

	c.Dashboard.Addr = config.String("DASHBOARD_ADDR", c.Dashboard.Addr)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Robot.Host == "" {
		return &ConfigError{Field: "Robot.Host", Message: "robot host is required (ROBOT_HOST)"}
	}
	if c.Robot.Port <= 0 || c.Robot.Port > 65535 {
		return &ConfigError{Field: "Robot.Port", Message: fmt.Sprintf("invalid robot port %d", c.Robot.Port)}
	}
	if c.Language == "" {
		return &ConfigError{Field: "Language", Message: "language is required"}
	}

	switch c.Chat.Backend {
	case ChatServer:
		if c.Chat.BaseURL == "" {
			return &ConfigError{Field: "Chat.BaseURL", Message: "chat base URL is required"}
		}
	case ChatGemini:
		if c.Chat.GeminiAPIKey == "" {
			return &ConfigError{Field: "Chat.GeminiAPIKey", Message: "GEMINI_API_KEY environment variable is required for the gemini backend"}
		}
	default:
		return &ConfigError{Field: "Chat.Backend", Message: fmt.Sprintf("unknown chat backend %q (want server or gemini)", c.Chat.Backend)}
	}

	switch c.Completion.Strategy {
	case CompletionEvent, CompletionPoll:
	default:
		return &ConfigError{Field: "Completion.Strategy", Message: fmt.Sprintf("unknown completion strategy %q (want event or poll)", c.Completion.Strategy)}
	}

	switch c.Recognizer.Backend {
	case RecognizerGoogle, RecognizerMock:
	default:
		return &ConfigError{Field: "Recognizer.Backend", Message: fmt.Sprintf("unknown recognizer %q (want google or mock)", c.Recognizer.Backend)}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
