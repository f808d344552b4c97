package stt

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/speech/v1"
)

// DefaultMaxAudio is the longest capture sent to synchronous recognition.
const DefaultMaxAudio = 60 * time.Second

// GoogleConfig configures the Google Cloud Speech backend.
type GoogleConfig struct {
	// CredentialsFile is a service account JSON file. When empty,
	// CredentialsJSON, APIKey and then application default credentials
	// are tried in that order.
	CredentialsFile string
	CredentialsJSON []byte
	APIKey          string

	// Endpoint overrides the API base URL.
	Endpoint string

	// HTTPClient replaces the authenticated client entirely.
	HTTPClient *http.Client

	// Model selects a recognition model, e.g. "latest_short".
	Model string

	// InterimInterval enables partial results by re-recognizing the audio
	// captured so far at this interval. Zero disables partials.
	InterimInterval time.Duration

	// MaxAudio caps the captured audio per stream.
	MaxAudio time.Duration

	Logger *slog.Logger
}

// GoogleRecognizer recognizes speech with the Cloud Speech REST API.
type GoogleRecognizer struct {
	cfg    GoogleConfig
	logger *slog.Logger

	mu  sync.Mutex
	svc *speech.Service
}

// NewGoogleRecognizer creates an unbound recognizer.
func NewGoogleRecognizer(cfg GoogleConfig) *GoogleRecognizer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAudio <= 0 {
		cfg.MaxAudio = DefaultMaxAudio
	}
	return &GoogleRecognizer{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "stt.google"),
	}
}

// Bind resolves credentials and creates the API service.
func (g *GoogleRecognizer) Bind(ctx context.Context) error {
	opts, err := g.clientOptions(ctx)
	if err != nil {
		return err
	}

	svc, err := speech.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create speech service: %w", err)
	}

	g.mu.Lock()
	g.svc = svc
	g.mu.Unlock()

	g.logger.Info("speech backend bound", "model", g.cfg.Model)
	return nil
}

func (g *GoogleRecognizer) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if g.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.cfg.Endpoint))
	}

	if g.cfg.HTTPClient != nil {
		return append(opts, option.WithHTTPClient(g.cfg.HTTPClient)), nil
	}

	data := g.cfg.CredentialsJSON
	if g.cfg.CredentialsFile != "" {
		b, err := os.ReadFile(g.cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		data = b
	}

	switch {
	case len(data) > 0:
		creds, err := google.CredentialsFromJSON(ctx, data, speech.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(oauth2.ReuseTokenSource(nil, creds.TokenSource)))
	case g.cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(g.cfg.APIKey))
	default:
		creds, err := google.FindDefaultCredentials(ctx, speech.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(creds.TokenSource))
	}
	return opts, nil
}

// Open starts a stream that buffers audio and recognizes it on Finish.
func (g *GoogleRecognizer) Open(ctx context.Context, cfg StreamConfig) (RecognitionStream, error) {
	g.mu.Lock()
	svc := g.svc
	g.mu.Unlock()
	if svc == nil {
		return nil, ErrNotBound
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &googleStream{
		recognizer: g,
		svc:        svc,
		cfg:        cfg,
		ctx:        streamCtx,
		cancel:     cancel,
		maxBytes:   int(g.cfg.MaxAudio.Seconds() * float64(cfg.SampleRate) * 2),
		events:     make(chan Event, 8),
		finishCh:   make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

// Close drops the API service.
func (g *GoogleRecognizer) Close() error {
	g.mu.Lock()
	g.svc = nil
	g.mu.Unlock()
	return nil
}

// recognize runs one synchronous recognition over pcm.
func (g *GoogleRecognizer) recognize(ctx context.Context, svc *speech.Service, cfg StreamConfig, pcm []byte) (string, error) {
	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: int64(cfg.SampleRate),
			LanguageCode:    cfg.Language,
			Model:           g.cfg.Model,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(pcm),
		},
	}

	resp, err := svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}

	var b strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		b.WriteString(result.Alternatives[0].Transcript)
	}
	return strings.TrimSpace(b.String()), nil
}

type googleStream struct {
	recognizer *GoogleRecognizer
	svc        *speech.Service
	cfg        StreamConfig
	ctx        context.Context
	cancel     context.CancelFunc
	maxBytes   int

	mu       sync.Mutex
	audio    []byte
	closed   bool
	overflow bool

	events     chan Event
	finishCh   chan struct{}
	finishOnce sync.Once
}

func (s *googleStream) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if len(s.audio)+len(pcm) > s.maxBytes {
		if !s.overflow {
			s.overflow = true
			return ErrAudioTooLong
		}
		return nil
	}
	s.audio = append(s.audio, pcm...)
	return nil
}

func (s *googleStream) Finish() {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.finishCh)
	})
}

func (s *googleStream) Cancel() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *googleStream) Events() <-chan Event {
	return s.events
}

func (s *googleStream) snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.audio...)
}

func (s *googleStream) loop() {
	defer close(s.events)
	defer s.cancel()

	var interim <-chan time.Time
	if d := s.recognizer.cfg.InterimInterval; d > 0 {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		interim = ticker.C
	}

	var last string
	for {
		select {
		case <-s.ctx.Done():
			return

		case <-interim:
			pcm := s.snapshot()
			if len(pcm) == 0 {
				continue
			}
			text, err := s.recognizer.recognize(s.ctx, s.svc, s.cfg, pcm)
			if err != nil {
				if s.ctx.Err() == nil {
					s.recognizer.logger.Debug("interim recognition failed", "error", err)
				}
				continue
			}
			if text != "" && text != last {
				last = text
				s.send(Event{Utterance: Utterance{Text: text}})
			}

		case <-s.finishCh:
			pcm := s.snapshot()
			if len(pcm) == 0 {
				s.send(Event{Utterance: Utterance{IsFinal: true}})
				return
			}
			text, err := s.recognizer.recognize(s.ctx, s.svc, s.cfg, pcm)
			if err != nil {
				if s.ctx.Err() == nil {
					s.send(Event{Err: err})
				}
				return
			}
			s.send(Event{Utterance: Utterance{Text: text, IsFinal: true}})
			return
		}
	}
}

func (s *googleStream) send(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

var _ Recognizer = (*GoogleRecognizer)(nil)
