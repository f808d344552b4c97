package audioio

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// SampleRateCandidates are tried in order when opening a microphone.
var SampleRateCandidates = []int{16000, 11025, 22050, 44100}

// Sentinel errors for microphone setup.
var (
	// ErrPermissionDenied indicates audio capture is not allowed.
	ErrPermissionDenied = errors.New("audioio: audio capture permission not granted")

	// ErrNoSampleRate indicates none of the candidate rates is supported.
	ErrNoSampleRate = errors.New("audioio: no supported sample rate")

	// ErrOpenFailed indicates the device could not be opened.
	ErrOpenFailed = errors.New("audioio: failed to open capture device")
)

// Microphone is a capture device that can be probed before opening.
type Microphone interface {
	// Permitted reports whether the process may capture audio.
	Permitted() bool

	// MinBufferSize returns the minimum capture buffer in bytes for mono
	// PCM16 at sampleRate, or a value <= 0 if the rate is unsupported.
	MinBufferSize(sampleRate int) int

	// Open returns a Source configured with cfg.
	Open(cfg Config) (Source, error)
}

// ProbeSampleRate returns the first candidate rate the microphone supports
// together with its minimum buffer size in bytes.
func ProbeSampleRate(mic Microphone, candidates []int) (rate, minBuffer int, err error) {
	for _, r := range candidates {
		if n := mic.MinBufferSize(r); n > 0 {
			return r, n, nil
		}
	}
	return 0, 0, fmt.Errorf("%w, tried: %v", ErrNoSampleRate, candidates)
}

// bytesToDuration converts a mono PCM16 byte count to playback time.
func bytesToDuration(n, sampleRate int) time.Duration {
	frames := n / 2
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// NewMicrophone creates the microphone selected by cfg.Backend.
func NewMicrophone(cfg Config, logger *slog.Logger) (Microphone, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = detectBestBackend()
	}

	logger.Info("creating microphone", "backend", backend, "device", cfg.Device)

	switch backend {
	case BackendMock:
		return &MockMicrophone{Logger: logger, Options: []MockSourceOption{WithSineWave(440, 0.3)}}, nil
	case BackendExec:
		return &ExecMicrophone{Device: cfg.Device, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns exec when the capture command is installed.
func detectBestBackend() Backend {
	if _, err := exec.LookPath(DefaultCaptureCommand); err == nil {
		return BackendExec
	}
	return BackendMock
}
