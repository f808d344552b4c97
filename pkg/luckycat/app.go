package luckycat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-luckycat/pkg/audioio"
	"github.com/teslashibe/go-luckycat/pkg/chat"
	"github.com/teslashibe/go-luckycat/pkg/control"
	"github.com/teslashibe/go-luckycat/pkg/history"
	"github.com/teslashibe/go-luckycat/pkg/metrics"
	"github.com/teslashibe/go-luckycat/pkg/robot"
	"github.com/teslashibe/go-luckycat/pkg/stt"
	"github.com/teslashibe/go-luckycat/pkg/turn"
	"github.com/teslashibe/go-luckycat/pkg/web"
)

// Option overrides a component, mostly for tests and the simulator.
type Option func(*App)

// WithMicrophone replaces the microphone selected by Audio.Backend.
func WithMicrophone(m audioio.Microphone) Option {
	return func(a *App) {
		a.mic = m
	}
}

// WithRecognizer replaces the recognizer selected by Recognizer.Backend.
func WithRecognizer(r stt.Recognizer) Option {
	return func(a *App) {
		a.recognizer = r
	}
}

// WithBackend replaces the chat backend selected by Chat.Backend.
func WithBackend(b chat.Backend) Option {
	return func(a *App) {
		a.backend = b
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// App owns every component and their lifecycle.
type App struct {
	config *Config
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	channel    *control.Channel
	robot      *robot.Client
	mic        audioio.Microphone
	recognizer stt.Recognizer
	session    *stt.Session
	backend    chat.Backend
	history    *history.Buffer
	orch       *turn.Orchestrator
	dashboard  *web.Server
}

// New creates the application. Nothing is dialed or opened until Init.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	channel, err := control.New(
		control.WithURL(cfg.Robot.ControlURL()),
		control.WithReconnectDelay(cfg.Robot.ReconnectDelay),
		control.WithLogger(a.logger),
		control.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("control channel: %w", err)
	}
	a.channel = channel

	a.robot, err = robot.NewClient(cfg.Robot.APIURL(), robot.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("robot client: %w", err)
	}

	if a.mic == nil {
		a.mic, err = audioio.NewMicrophone(audioio.Config{
			Backend: cfg.Audio.Backend,
			Device:  cfg.Audio.Device,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("microphone: %w", err)
		}
	}
	if a.recognizer == nil {
		a.recognizer = a.newRecognizer()
	}

	a.session = stt.NewSession(a.mic, a.recognizer,
		stt.WithLanguage(cfg.Language),
		stt.WithVAD(cfg.Audio.VADThreshold, cfg.Audio.VADSilence),
		stt.WithLogger(a.logger),
		stt.WithMetrics(a.metrics),
	)
	a.history = history.New(cfg.HistoryCapacity)

	return a, nil
}

func (a *App) newRecognizer() stt.Recognizer {
	rc := a.config.Recognizer
	if rc.Backend == RecognizerMock {
		transcript := rc.MockTranscript
		if transcript == "" {
			transcript = "你好"
		}
		return &stt.MockRecognizer{Final: transcript, FinalAfter: 2 * time.Second}
	}
	return stt.NewGoogleRecognizer(stt.GoogleConfig{
		CredentialsFile: rc.CredentialsFile,
		APIKey:          rc.APIKey,
		Endpoint:        rc.Endpoint,
		Model:           rc.Model,
		InterimInterval: rc.InterimInterval,
		Logger:          a.logger,
	})
}

// Init brings up recognition and the chat backend.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	if err := a.session.Init(ctx); err != nil {
		return fmt.Errorf("recognition: %w", err)
	}
	a.logger.Info("recognition ready", "sample_rate", a.session.SampleRate(), "language", a.config.Language)

	if a.backend == nil {
		backend, err := a.newBackend(ctx)
		if err != nil {
			return fmt.Errorf("chat backend: %w", err)
		}
		a.backend = backend
	}

	a.orch = turn.New(a.session, a.backend, a.channel, a.newWaiter(),
		turn.WithLanguage(a.config.Language),
		turn.WithHistory(a.history),
		turn.WithLogger(a.logger),
		turn.WithMetrics(a.metrics),
	)

	if a.config.Dashboard.Addr != "" {
		opts := []web.Option{
			web.WithAddr(a.config.Dashboard.Addr),
			web.WithRobot(a.robot),
			web.WithLink(a.channel),
			web.WithGatherer(a.registry),
			web.WithLogger(a.logger),
		}
		if lister, ok := a.backend.(web.PromptSetLister); ok {
			opts = append(opts, web.WithPromptSets(lister))
		}
		a.dashboard = web.NewServer(a.orch, opts...)
	}
	return nil
}

func (a *App) newBackend(ctx context.Context) (chat.Backend, error) {
	cc := a.config.Chat
	if cc.Backend == ChatGemini {
		return chat.NewGemini(ctx, chat.GeminiConfig{
			APIKey:    cc.GeminiAPIKey,
			Model:     cc.GeminiModel,
			Directive: cc.Directive,
			Logger:    a.logger,
			Metrics:   a.metrics,
		})
	}
	return chat.NewClient(chat.Config{
		BaseURL:   cc.BaseURL,
		ChatPath:  cc.Path,
		Username:  cc.Username,
		Password:  cc.Password,
		Directive: cc.Directive,
		Mode:      chat.ParseMode(cc.Mode),
		PromptSet: cc.PromptSet,
		Timeout:   cc.Timeout,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
}

func (a *App) newWaiter() turn.Waiter {
	cc := a.config.Completion
	if cc.Strategy == CompletionPoll {
		return &turn.PollWaiter{
			Status:   a.robot,
			Interval: cc.PollInterval,
			Timeout:  cc.Timeout,
			Logger:   a.logger,
		}
	}
	return &turn.EventWaiter{
		Source:  a.channel,
		Timeout: cc.Timeout,
		Logger:  a.logger,
	}
}

// Run connects to the robot and serves the dashboard.
// Blocks until ctx is cancelled or the dashboard fails.
func (a *App) Run(ctx context.Context) error {
	if a.orch == nil {
		return errors.New("luckycat: Init must be called before Run")
	}

	g, gctx := errgroup.WithContext(ctx)

	a.channel.Connect(gctx)
	g.Go(func() error {
		a.channel.Wait()
		return nil
	})

	if a.dashboard != nil {
		g.Go(func() error {
			return a.dashboard.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.orch.Cancel()
		return nil
	})

	a.logger.Info("luckycat running", "robot", a.config.Robot.ControlURL(), "dashboard", a.config.Dashboard.Addr)
	return g.Wait()
}

// Shutdown cancels any turn and releases every component.
func (a *App) Shutdown() {
	if a.orch != nil {
		a.orch.Close()
	}
	a.channel.Disconnect()
	if err := a.session.Release(); err != nil {
		a.logger.Warn("release recognition", "error", err)
	}
	a.logger.Info("goodbye")
}

// Orchestrator returns the turn orchestrator. Nil before Init.
func (a *App) Orchestrator() *turn.Orchestrator {
	return a.orch
}

// Channel returns the robot control channel.
func (a *App) Channel() *control.Channel {
	return a.channel
}

// Registry returns the Prometheus registry holding the app's metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}
