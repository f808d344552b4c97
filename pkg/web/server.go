// Package web serves the operator dashboard: turn state, conversation
// history, turn controls and a live status websocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-luckycat/pkg/chat"
	"github.com/teslashibe/go-luckycat/pkg/history"
	"github.com/teslashibe/go-luckycat/pkg/hub"
	"github.com/teslashibe/go-luckycat/pkg/metrics"
	"github.com/teslashibe/go-luckycat/pkg/robot"
	"github.com/teslashibe/go-luckycat/pkg/turn"
)

// DefaultAddr is the dashboard listen address.
const DefaultAddr = ":8080"

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second

// Controller drives turns. *turn.Orchestrator implements it.
type Controller interface {
	Trigger(ctx context.Context) (string, error)
	Stop() error
	Cancel()
	Status() turn.Status
	History() []history.Entry
	Watch(fn func(turn.Status)) (cancel func())
}

// PromptSetLister lists prompt sets. *chat.Client implements it.
type PromptSetLister interface {
	PromptSets(ctx context.Context) ([]chat.PromptSet, error)
}

// Link reports whether the robot control channel is up.
// *control.Channel implements it.
type Link interface {
	IsConnected() bool
}

// State is the dashboard view of the system.
type State struct {
	turn.Status
	RobotConnected bool `json:"robot_connected"`
}

// Config holds dashboard configuration.
type Config struct {
	// Addr is the listen address.
	Addr string

	// Robot enables POST /api/robot/reset. Optional.
	Robot robot.Resetter

	// PromptSets enables GET /api/promptsets. Optional.
	PromptSets PromptSetLister

	// Link reports the control channel state. Optional.
	Link Link

	// Gatherer enables GET /metrics. Optional.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   DefaultAddr,
		Logger: slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option is a functional option for configuring a Server.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithRobot enables the robot reset endpoint.
func WithRobot(r robot.Resetter) Option {
	return func(c *Config) {
		c.Robot = r
	}
}

// WithPromptSets enables the prompt set listing endpoint.
func WithPromptSets(l PromptSetLister) Option {
	return func(c *Config) {
		c.PromptSets = l
	}
}

// WithLink reports the control channel state in State.
func WithLink(l Link) Option {
	return func(c *Config) {
		c.Link = l
	}
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.Gatherer = g
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Server is the dashboard server.
type Server struct {
	config *Config
	logger *slog.Logger
	app    *fiber.App
	ctrl   Controller

	statusHub *hub.Hub
	unwatch   func()

	// turnCtx parents turns started from the API; requests are too short-lived.
	mu      sync.Mutex
	turnCtx context.Context
}

// NewServer creates a dashboard for ctrl.
func NewServer(ctrl Controller, opts ...Option) *Server {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		config:    cfg,
		logger:    cfg.Logger.With("component", "web.server"),
		ctrl:      ctrl,
		statusHub: hub.New("status", cfg.Logger),
		turnCtx:   context.Background(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "luckycat dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/history", s.handleHistory)
	api.Post("/talk", s.handleTalk)
	api.Post("/stop", s.handleStop)
	api.Post("/cancel", s.handleCancel)
	api.Post("/robot/reset", s.handleRobotReset)
	api.Get("/promptsets", s.handlePromptSets)

	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(cfg.Gatherer)))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	s.unwatch = ctrl.Watch(s.publish)
	return s
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. Turns started through the API
// are cancelled along with ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.turnCtx = ctx
	s.mu.Unlock()

	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.statusHub.Run(hubCtx)

	stop := context.AfterFunc(ctx, func() {
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
	})
	defer stop()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	err := s.app.Listener(ln)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Shutdown stops watching the controller and closes the HTTP server.
func (s *Server) Shutdown() error {
	s.unwatch()
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

// App exposes the fiber app for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) state(status turn.Status) State {
	st := State{Status: status}
	if s.config.Link != nil {
		st.RobotConnected = s.config.Link.IsConnected()
	}
	return st
}

// publish pushes a status change to websocket clients.
func (s *Server) publish(status turn.Status) {
	if err := s.statusHub.BroadcastJSON(s.state(status)); err != nil {
		s.logger.Warn("encode state", "error", err)
	}
}
