// robot-sim serves the robot's control websocket and HTTP API locally so
// luckycat can be run without hardware.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	ilog "github.com/teslashibe/go-luckycat/internal/log"
)

func main() {
	addr := flag.String("addr", ":3000", "Listen address")
	base := flag.Duration("speech-base", DefaultSpeechBase, "Fixed part of every utterance")
	perRune := flag.Duration("speech-per-char", DefaultSpeechPerRune, "Speech time per character")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	ilog.Init(*level)
	sim := newSimulator(simConfig{
		SpeechBase:    *base,
		SpeechPerRune: *perRune,
		Logger:        ilog.L(),
	})
	app := sim.routes()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		sim.reset()
		app.ShutdownWithTimeout(5 * time.Second)
	}()

	ilog.Info("robot simulator listening", "addr", *addr)
	if err := app.Listen(*addr); err != nil {
		log.Fatalf("robot-sim: %v", err)
	}
}
