package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultCaptureCommand is the ALSA capture tool used by ExecMicrophone.
const DefaultCaptureCommand = "arecord"

// ExecMicrophone captures raw PCM16 from an external command's stdout.
type ExecMicrophone struct {
	// Command defaults to DefaultCaptureCommand.
	Command string

	// Device is passed with -D when set.
	Device string

	// Rates restricts the supported sample rates. Nil means all candidates.
	Rates []int

	// SoundDir is checked by Permitted. Defaults to /dev/snd.
	SoundDir string

	Logger *slog.Logger
}

func (m *ExecMicrophone) command() string {
	if m.Command == "" {
		return DefaultCaptureCommand
	}
	return m.Command
}

// Permitted implements Microphone. The capture command must be installed
// and the sound device directory readable.
func (m *ExecMicrophone) Permitted() bool {
	if _, err := exec.LookPath(m.command()); err != nil {
		return false
	}
	dir := m.SoundDir
	if dir == "" {
		dir = "/dev/snd"
	}
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// MinBufferSize implements Microphone. Supported rates get 20ms of PCM16.
func (m *ExecMicrophone) MinBufferSize(sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	if m.Rates != nil && !slices.Contains(m.Rates, sampleRate) {
		return 0
	}
	return sampleRate / 50 * 2
}

// Open implements Microphone.
func (m *ExecMicrophone) Open(cfg Config) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Device == "" {
		cfg.Device = m.Device
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &execSource{
		cfg:     cfg,
		command: m.command(),
		logger:  logger.With("component", "audioio.exec"),
	}, nil
}

// args returns the capture command arguments for cfg.
func (s *execSource) args() []string {
	args := []string{
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-c", strconv.Itoa(s.cfg.Channels),
		"-r", strconv.Itoa(s.cfg.SampleRate),
	}
	if s.cfg.Device != "" {
		args = append(args, "-D", s.cfg.Device)
	}
	return args
}

type execSource struct {
	cfg     Config
	command string
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	streamCh chan AudioChunk
	loopDone chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func (s *execSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, s.command, s.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", s.command, err)
	}

	s.running = true
	s.cmd = cmd
	s.cancel = cancel
	s.streamCh = make(chan AudioChunk, 10)
	s.loopDone = make(chan struct{})

	go s.readLoop(stdout, s.streamCh, s.loopDone)

	s.logger.Debug("capture started", "command", s.command, "args", s.args())
	return nil
}

// readLoop is the only sender on streamCh and closes it on exit.
func (s *execSource) readLoop(r io.Reader, streamCh chan<- AudioChunk, done chan<- struct{}) {
	defer close(done)
	defer close(streamCh)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Warn("capture read failed", "error", err)
			}
			return
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		select {
		case streamCh <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

func (s *execSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cmd, cancel, done := s.cmd, s.cancel, s.loopDone
	s.mu.Unlock()

	cancel()
	<-done
	// The process was killed; its exit status carries no information.
	_ = cmd.Wait()

	s.logger.Debug("capture stopped")
	return nil
}

func (s *execSource) Read(ctx context.Context) (AudioChunk, error) {
	stream := s.Stream()
	if stream == nil {
		return AudioChunk{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-stream:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

func (s *execSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

func (s *execSource) Config() Config { return s.cfg }

func (s *execSource) Name() string { return "exec" }

func (s *execSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

func (s *execSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "exec",
	}
}

var (
	_ Microphone      = (*ExecMicrophone)(nil)
	_ SourceWithStats = (*execSource)(nil)
)
