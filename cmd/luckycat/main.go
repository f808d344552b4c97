// luckycat listens for a spoken command, asks a chat backend for a reply
// and has the robot speak it.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	ilog "github.com/teslashibe/go-luckycat/internal/log"
	"github.com/teslashibe/go-luckycat/pkg/audioio"
	"github.com/teslashibe/go-luckycat/pkg/luckycat"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ilog.Init(cfg.LogLevel)
	if err := run(cfg); err != nil {
		ilog.Error("luckycat stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *luckycat.Config) error {
	app, err := luckycat.New(cfg, luckycat.WithLogger(ilog.L()))
	if err != nil {
		return err
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		return err
	}
	return app.Run(ctx)
}

// loadConfig layers defaults, the optional YAML file, environment
// variables and finally flags given on the command line.
func loadConfig(args []string) (*luckycat.Config, error) {
	cfg := luckycat.DefaultConfig()
	fs := flag.NewFlagSet("luckycat", flag.ExitOnError)

	configPath := fs.String("config", "", "YAML config file")
	debug := fs.Bool("debug", false, "Enable verbose debug logging")
	robotHost := fs.String("robot-host", "", "Robot host (overrides ROBOT_HOST env var)")
	robotPort := fs.Int("robot-port", cfg.Robot.Port, "Robot control and HTTP port")
	lang := fs.String("lang", cfg.Language, "Recognition and speech language")
	chatBackend := fs.String("chat", cfg.Chat.Backend, "Chat backend: server, gemini")
	promptSet := fs.Int("prompt-set", 0, "Prompt set id for the chat server (select mode)")
	completion := fs.String("completion", cfg.Completion.Strategy, "Speech completion strategy: event, poll")
	recognizer := fs.String("recognizer", cfg.Recognizer.Backend, "Recognizer: google, mock")
	mic := fs.String("mic", string(cfg.Audio.Backend), "Microphone backend: auto, exec, mock")
	device := fs.String("device", "", "Capture device for the exec microphone, e.g. plughw:1,0")
	dashboard := fs.String("dashboard", cfg.Dashboard.Addr, "Dashboard listen address, empty to disable")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	cfg.LoadEnvConfig()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			if *debug {
				cfg.LogLevel = "debug"
			}
		case "robot-host":
			cfg.Robot.Host = *robotHost
		case "robot-port":
			cfg.Robot.Port = *robotPort
		case "lang":
			cfg.Language = *lang
		case "chat":
			cfg.Chat.Backend = *chatBackend
		case "prompt-set":
			if *promptSet > 0 {
				cfg.Chat.PromptSet = promptSet
			} else {
				cfg.Chat.PromptSet = nil
			}
		case "completion":
			cfg.Completion.Strategy = *completion
		case "recognizer":
			cfg.Recognizer.Backend = *recognizer
		case "mic":
			cfg.Audio.Backend = audioio.Backend(*mic)
		case "device":
			cfg.Audio.Device = *device
		case "dashboard":
			cfg.Dashboard.Addr = *dashboard
		}
	})

	return cfg, nil
}
