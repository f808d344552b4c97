package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/teslashibe/go-luckycat/pkg/history"
	"github.com/teslashibe/go-luckycat/pkg/metrics"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string
	Model  string

	// Directive becomes the system instruction together with any system
	// entries in the history.
	Directive string

	// BaseURL overrides the API endpoint.
	BaseURL string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Gemini answers through the Gemini API.
type Gemini struct {
	client  *genai.Client
	cfg     GeminiConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Gemini{
		client:  client,
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "chat.gemini", "model", cfg.Model),
		metrics: cfg.Metrics,
	}, nil
}

// Reply implements Backend. User and assistant entries become the
// conversation contents; system entries and the directive become the
// system instruction.
func (g *Gemini) Reply(ctx context.Context, text string, hist []history.Entry) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	contents, system := geminiContents(text, withDirective(hist, g.cfg.Directive))

	var config *genai.GenerateContentConfig
	if len(system) > 0 {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(strings.Join(system, "\n"), genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
	if err != nil {
		g.metrics.ChatError("gemini")
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		g.metrics.ChatError("gemini")
		return "", ErrNoChoices
	}
	g.logger.Debug("gemini reply", "chars", len(reply))
	return reply, nil
}

func geminiContents(text string, hist []history.Entry) ([]*genai.Content, []string) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, e := range hist {
		switch e.Role {
		case history.RoleSystem:
			system = append(system, e.Content)
		case history.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(e.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(e.Content, genai.RoleUser))
		}
	}
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	return contents, system
}

var _ Backend = (*Gemini)(nil)
