package main

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-luckycat/pkg/control"
	"github.com/teslashibe/go-luckycat/pkg/robot"
)

// Speech timing of the simulated robot.
const (
	DefaultSpeechBase    = 300 * time.Millisecond
	DefaultSpeechPerRune = 120 * time.Millisecond
)

// simConfig configures the simulator.
type simConfig struct {
	SpeechBase    time.Duration
	SpeechPerRune time.Duration
	Logger        *slog.Logger
}

// simClient is one control connection. Writes are serialized by mu.
type simClient struct {
	id     string
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (c *simClient) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// simulator pretends to be the robot: it speaks tts commands for a time
// proportional to the text and reports progress to every control client.
type simulator struct {
	cfg    simConfig
	logger *slog.Logger

	mu       sync.Mutex
	clients  map[string]*simClient
	speaking int // utterances in flight
	spoken   []control.Command
	timers   []*time.Timer
}

func newSimulator(cfg simConfig) *simulator {
	if cfg.SpeechBase <= 0 {
		cfg.SpeechBase = DefaultSpeechBase
	}
	if cfg.SpeechPerRune <= 0 {
		cfg.SpeechPerRune = DefaultSpeechPerRune
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &simulator{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "robot-sim"),
		clients: make(map[string]*simClient),
	}
}

// routes builds the robot's HTTP and websocket surface.
func (s *simulator) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "robot-sim",
		DisableStartupMessage: true,
	})

	app.Get("/status", s.handleStatus)
	app.Post("/tts", s.handleTTS)
	app.Get("/reset", s.handleReset)

	app.Use("/control", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/control", websocket.New(s.handleControl))
	return app
}

// speechDuration is how long the robot takes to say text.
func (s *simulator) speechDuration(text string) time.Duration {
	return s.cfg.SpeechBase + time.Duration(utf8.RuneCountInString(text))*s.cfg.SpeechPerRune
}

// speak starts one utterance and schedules its end.
func (s *simulator) speak(cmd control.Command) {
	d := s.speechDuration(cmd.Text)

	s.mu.Lock()
	s.speaking++
	s.spoken = append(s.spoken, cmd)
	s.mu.Unlock()

	s.logger.Info("speaking", "text", cmd.Text, "lang", cmd.Lang, "duration", d)
	s.broadcast(control.PlaybackStatus{State: control.PlaybackStarting})

	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.speaking > 0 {
			s.speaking--
		}
		s.mu.Unlock()
		s.broadcast(control.PlaybackStatus{State: control.PlaybackEnded, Result: "ok"})
	})

	s.mu.Lock()
	s.timers = append(s.timers, timer)
	s.mu.Unlock()
}

// ttsFrame is the inbound frame shape the robot emits.
type ttsFrame struct {
	Feature control.Feature `json:"feature"`
	control.PlaybackStatus
}

func (s *simulator) broadcast(status control.PlaybackStatus) {
	s.mu.Lock()
	clients := make([]*simClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	frame := ttsFrame{Feature: control.FeatureTTS, PlaybackStatus: status}
	for _, c := range clients {
		if err := c.send(frame); err != nil {
			s.logger.Warn("send failed", "client", c.id, "error", err)
		}
	}
}

func (s *simulator) status() robot.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speaking > 0 {
		return robot.Status{Status: 1}
	}
	return robot.Status{Status: robot.StatusIdle}
}

// reset stops every pending utterance without sending end frames.
func (s *simulator) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.speaking = 0
}

func (s *simulator) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleTTS accepts text and lang as query parameters or a JSON body.
func (s *simulator) handleTTS(c *fiber.Ctx) error {
	cmd := control.Command{Feature: control.FeatureTTS}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&cmd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if text := c.Query("text"); text != "" {
		cmd.Text = text
	}
	if lang := c.Query("lang"); lang != "" {
		cmd.Lang = lang
	}
	if cmd.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}

	s.speak(cmd)
	return c.JSON(fiber.Map{"result": "ok"})
}

func (s *simulator) handleReset(c *fiber.Ctx) error {
	s.reset()
	return c.JSON(s.status())
}

// handleControl reads command arrays until the client goes away.
func (s *simulator) handleControl(conn *websocket.Conn) {
	client := &simClient{id: uuid.NewString(), conn: conn}

	s.mu.Lock()
	s.clients[client.id] = client
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("control client connected", "client", client.id, "clients", count)

	defer func() {
		s.mu.Lock()
		delete(s.clients, client.id)
		s.mu.Unlock()

		// The conn is recycled once the handler returns.
		client.mu.Lock()
		client.closed = true
		client.mu.Unlock()
		s.logger.Info("control client disconnected", "client", client.id)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmds []control.Command
		if err := json.Unmarshal(data, &cmds); err != nil {
			s.logger.Warn("discarding frame", "client", client.id, "error", err)
			continue
		}
		for _, cmd := range cmds {
			if cmd.Feature != control.FeatureTTS {
				s.logger.Debug("ignoring command", "feature", cmd.Feature)
				continue
			}
			s.speak(cmd)
		}
	}
}

// Spoken returns every command spoken so far.
func (s *simulator) Spoken() []control.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]control.Command(nil), s.spoken...)
}
