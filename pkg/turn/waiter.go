package turn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-luckycat/pkg/control"
	"github.com/teslashibe/go-luckycat/pkg/robot"
)

// Defaults for completion waiting.
const (
	DefaultCompletionTimeout = 30 * time.Second
	DefaultPollInterval      = time.Second
)

// Waiter sends the reply through speak and blocks until the robot has
// finished speaking, the timeout passes, or ctx is done.
type Waiter interface {
	Wait(ctx context.Context, speak func() error) (Outcome, error)
}

// MessageSource provides inbound control frames.
type MessageSource interface {
	Messages(ctx context.Context) <-chan control.Message
}

// EventWaiter waits for a tts "end" frame on the control channel.
type EventWaiter struct {
	Source MessageSource

	// Timeout bounds the wait. Zero means DefaultCompletionTimeout.
	Timeout time.Duration

	// ResubscribeDelay spaces subscriptions after a connection drops.
	ResubscribeDelay time.Duration

	Logger *slog.Logger
}

// Wait implements Waiter. The subscription is opened before speak is
// called so an immediate "end" frame is not missed.
func (w *EventWaiter) Wait(ctx context.Context, speak func() error) (Outcome, error) {
	logger := w.logger()

	waitCtx, cancel := context.WithTimeout(ctx, orDefault(w.Timeout, DefaultCompletionTimeout))
	defer cancel()

	msgs := w.Source.Messages(waitCtx)
	if err := speak(); err != nil {
		return OutcomeFailed, fmt.Errorf("speak: %w", err)
	}

	resubscribe := orDefault(w.ResubscribeDelay, 100*time.Millisecond)
	for {
		select {
		case <-waitCtx.Done():
			return doneOutcome(ctx, logger)

		case msg, ok := <-msgs:
			if !ok {
				// The connection ended; follow the next one.
				select {
				case <-waitCtx.Done():
					return doneOutcome(ctx, logger)
				case <-time.After(resubscribe):
				}
				msgs = w.Source.Messages(waitCtx)
				continue
			}

			status, ok := msg.(*control.PlaybackStatus)
			if !ok {
				continue
			}
			if status.Ended() {
				logger.Debug("playback ended", "result", status.Result)
				return OutcomeCompleted, nil
			}
			logger.Debug("playback started")
		}
	}
}

func (w *EventWaiter) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// PollWaiter polls the robot status until it reports idle.
type PollWaiter struct {
	Status robot.StatusReader

	// Interval between polls. The first poll happens one interval after
	// speaking so the robot has time to leave idle.
	Interval time.Duration

	// Timeout bounds the wait. On timeout the turn proceeds anyway.
	Timeout time.Duration

	Logger *slog.Logger
}

// Wait implements Waiter.
func (w *PollWaiter) Wait(ctx context.Context, speak func() error) (Outcome, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := speak(); err != nil {
		return OutcomeFailed, fmt.Errorf("speak: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, orDefault(w.Timeout, DefaultCompletionTimeout))
	defer cancel()

	ticker := time.NewTicker(orDefault(w.Interval, DefaultPollInterval))
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return doneOutcome(ctx, logger)
		case <-ticker.C:
			s, err := w.Status.Status(waitCtx)
			if err != nil {
				if waitCtx.Err() == nil {
					logger.Warn("status poll failed", "error", err)
				}
				continue
			}
			if s.Idle() {
				return OutcomeCompleted, nil
			}
		}
	}
}

// doneOutcome distinguishes cancellation of the turn from the wait timing out.
func doneOutcome(ctx context.Context, logger *slog.Logger) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeCancelled, err
	}
	logger.Warn("completion wait timed out, continuing")
	return OutcomeTimedOut, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

var (
	_ Waiter = (*EventWaiter)(nil)
	_ Waiter = (*PollWaiter)(nil)
)
