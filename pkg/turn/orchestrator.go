package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-luckycat/pkg/chat"
	"github.com/teslashibe/go-luckycat/pkg/history"
	"github.com/teslashibe/go-luckycat/pkg/metrics"
	"github.com/teslashibe/go-luckycat/pkg/stt"
)

// Recognizer produces one capture per turn. *stt.Session implements it.
type Recognizer interface {
	Start(ctx context.Context) (*stt.Capture, error)
	Stop() error
}

// Speaker sends the reply to the robot. *control.Channel implements it.
type Speaker interface {
	Speak(text, lang string) error
}

// Orchestrator runs turns one at a time.
type Orchestrator struct {
	config     *Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	recognizer Recognizer
	backend    chat.Backend
	speaker    Speaker
	waiter     Waiter
	history    *history.Buffer

	mu            sync.Mutex
	state         State
	turnID        string
	lastUtterance string
	lastReply     string
	cancel        context.CancelFunc
	watchers      map[int]func(Status)
	nextWatcher   int

	wg sync.WaitGroup
}

// New creates an Orchestrator in StateReady.
func New(recognizer Recognizer, backend chat.Backend, speaker Speaker, waiter Waiter, opts ...Option) *Orchestrator {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.History == nil {
		cfg.History = history.New(history.DefaultCapacity)
	}

	o := &Orchestrator{
		config:     cfg,
		logger:     cfg.Logger.With("component", "turn.orchestrator"),
		metrics:    cfg.Metrics,
		recognizer: recognizer,
		backend:    backend,
		speaker:    speaker,
		waiter:     waiter,
		history:    cfg.History,
		watchers:   make(map[int]func(Status)),
	}
	o.metrics.SetTurnState(int(StateReady))
	return o
}

// Talk runs one turn and blocks until it is back in StateReady. It returns
// ErrBusy, without any other effect, when a turn is already running.
//
// Empty utterances and completion timeouts are not errors; check
// Result.Outcome. Failed turns return the cause and cancelled turns the
// context error. History is only updated when the backend replied.
func (o *Orchestrator) Talk(ctx context.Context) (Result, error) {
	turnCtx, res, err := o.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	return o.execute(turnCtx, res)
}

// Trigger starts a turn in the background. It returns ErrBusy when a turn
// is already running.
func (o *Orchestrator) Trigger(ctx context.Context) (string, error) {
	turnCtx, res, err := o.begin(ctx)
	if err != nil {
		return "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(turnCtx, res)
	}()
	return res.TurnID, nil
}

// begin is the only transition out of StateReady.
func (o *Orchestrator) begin(ctx context.Context) (context.Context, Result, error) {
	o.mu.Lock()
	if o.state != StateReady {
		state := o.state
		o.mu.Unlock()
		o.logger.Debug("talk ignored", "state", state)
		return nil, Result{}, ErrBusy
	}

	turnCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	o.turnID = id
	o.cancel = cancel
	o.lastUtterance = ""
	o.state = StateListening
	o.mu.Unlock()

	o.logger.Info("turn started", "turn_id", id)
	o.changed(StateListening)
	return turnCtx, Result{TurnID: id}, nil
}

func (o *Orchestrator) execute(ctx context.Context, res Result) (Result, error) {
	started := time.Now()
	logger := o.logger.With("turn_id", res.TurnID)

	res, err := o.run(ctx, res, logger)
	res.Duration = time.Since(started)

	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.state = StateReady
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.metrics.TurnFinished(string(res.Outcome))
	switch res.Outcome {
	case OutcomeFailed:
		logger.Warn("turn aborted", "error", err, "duration", res.Duration)
	case OutcomeCancelled:
		logger.Info("turn cancelled", "duration", res.Duration)
	default:
		logger.Info("turn finished", "outcome", res.Outcome, "duration", res.Duration)
	}

	o.changed(StateReady)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, res Result, logger *slog.Logger) (Result, error) {
	// Listening
	phase := time.Now()
	utterance, err := o.listen(ctx)
	o.metrics.ObservePhase("listen", time.Since(phase))
	if err != nil {
		return o.abort(ctx, res, err)
	}
	res.Utterance = utterance

	if strings.TrimSpace(utterance) == "" {
		logger.Info("nothing heard")
		res.Outcome = OutcomeEmpty
		return res, nil
	}

	// Thinking
	o.transition(StateThinking)
	phase = time.Now()
	reply, err := o.backend.Reply(ctx, utterance, o.history.Snapshot())
	o.metrics.ObservePhase("think", time.Since(phase))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return o.abort(ctx, res, fmt.Errorf("chat backend: %w", err))
	}
	res.Reply = reply

	o.history.Append(history.User(utterance), history.Assistant(reply))

	// Speaking
	o.mu.Lock()
	o.lastReply = reply
	o.mu.Unlock()
	o.transition(StateSpeaking)

	phase = time.Now()
	outcome, err := o.waiter.Wait(ctx, func() error {
		return o.speaker.Speak(reply, o.config.Language)
	})
	o.metrics.ObservePhase("speak", time.Since(phase))
	res.Outcome = outcome
	return res, err
}

// listen runs one capture and returns the last utterance seen.
func (o *Orchestrator) listen(ctx context.Context) (string, error) {
	capture, err := o.recognizer.Start(ctx)
	if err != nil {
		return "", fmt.Errorf("start recognition: %w", err)
	}

	var last string
	for u := range capture.Utterances() {
		last = u.Text
		o.mu.Lock()
		o.lastUtterance = u.Text
		o.mu.Unlock()
		o.changed(StateListening)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := capture.Err(); err != nil {
		return "", fmt.Errorf("recognition: %w", err)
	}
	return last, nil
}

func (o *Orchestrator) abort(ctx context.Context, res Result, err error) (Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Outcome = OutcomeCancelled
		return res, ctxErr
	}
	res.Outcome = OutcomeFailed
	return res, err
}

func (o *Orchestrator) transition(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.changed(s)
}

// changed publishes the state to metrics and watchers.
func (o *Orchestrator) changed(s State) {
	o.metrics.SetTurnState(int(s))

	status := o.Status()
	o.mu.Lock()
	watchers := make([]func(Status), 0, len(o.watchers))
	for _, fn := range o.watchers {
		watchers = append(watchers, fn)
	}
	o.mu.Unlock()

	for _, fn := range watchers {
		fn(status)
	}
}

// Stop ends the current capture gracefully so the turn continues with
// what was heard. It has no effect outside StateListening.
func (o *Orchestrator) Stop() error {
	if o.State() != StateListening {
		return nil
	}
	return o.recognizer.Stop()
}

// Cancel aborts the running turn. Capture is interrupted, a pending
// backend call is abandoned and the completion wait ends.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close cancels the running turn and waits for background turns.
func (o *Orchestrator) Close() error {
	o.Cancel()
	o.wg.Wait()
	return nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns the observer view.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		State:         o.state,
		TurnID:        o.turnID,
		LastUtterance: o.lastUtterance,
		LastReply:     o.lastReply,
		CanTalk:       o.state == StateReady,
	}
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []history.Entry {
	return o.history.Snapshot()
}

// ResetHistory forgets the conversation.
func (o *Orchestrator) ResetHistory() {
	o.history.Clear()
}

// Watch registers fn for status changes. fn runs on the turn goroutine and
// must not block. Call the returned func to unregister.
func (o *Orchestrator) Watch(fn func(Status)) (cancel func()) {
	o.mu.Lock()
	id := o.nextWatcher
	o.nextWatcher++
	o.watchers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.watchers, id)
		o.mu.Unlock()
	}
}
