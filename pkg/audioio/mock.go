package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence or sine wave).
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}
	loopDone chan struct{}

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
	envelope  func(chunk int64) float64
	chunks    int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithEnvelope scales the amplitude of each generated chunk. Chunks are
// numbered from zero for every Start. Use it to script speech followed by
// silence.
func WithEnvelope(fn func(chunk int64) float64) MockSourceOption {
	return func(m *MockSource) {
		m.envelope = fn
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.chunks = 0
	m.stopCh = make(chan struct{})
	m.loopDone = make(chan struct{})
	m.streamCh = make(chan AudioChunk, 10)

	go m.generateLoop(ctx, m.stopCh, m.streamCh, m.loopDone)

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.frequency,
	)

	return nil
}

// generateLoop is the only sender on streamCh and closes it on exit.
func (m *MockSource) generateLoop(ctx context.Context, stopCh <-chan struct{}, streamCh chan<- AudioChunk, done chan<- struct{}) {
	defer close(done)
	defer close(streamCh)

	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			chunk := m.generateChunk()
			select {
			case streamCh <- chunk:
				m.chunksRead.Add(1)
				m.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				m.overruns.Add(1)
				m.logger.Debug("mock source: buffer full, dropping chunk")
			}
		}
	}
}

func (m *MockSource) generateChunk() AudioChunk {
	bufferSize := m.cfg.BufferSize()
	samples := make([]int16, bufferSize*m.cfg.Channels)

	amplitude := m.amplitude
	if m.envelope != nil {
		amplitude *= m.envelope(m.chunks)
	}
	m.chunks++

	if m.frequency > 0 && amplitude > 0 {
		for i := 0; i < bufferSize; i++ {
			sample := amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate))
			sampleInt := int16(sample * 32767)

			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = sampleInt
			}

			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return AudioChunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
}

// Stop halts audio generation and waits for the generator to exit.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	done := m.loopDone
	m.mu.Unlock()

	<-done
	m.logger.Debug("mock audio source stopped")
	return nil
}

// Read reads the next audio chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	stream := m.Stream()
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

// Stream returns the audio chunk channel of the current run.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)

// MockMicrophone is a Microphone backed by MockSource.
type MockMicrophone struct {
	// Denied makes Permitted report false.
	Denied bool

	// Rates lists the supported sample rates. Nil means all candidates.
	Rates []int

	// OpenFunc overrides Open when set.
	OpenFunc func(cfg Config) (Source, error)

	// Options are applied to every MockSource created by Open.
	Options []MockSourceOption

	Logger *slog.Logger

	mu     sync.Mutex
	opened []*MockSource
	probed []int
}

// Permitted implements Microphone.
func (m *MockMicrophone) Permitted() bool {
	return !m.Denied
}

// MinBufferSize implements Microphone. Supported rates get 20ms of PCM16.
func (m *MockMicrophone) MinBufferSize(sampleRate int) int {
	m.mu.Lock()
	m.probed = append(m.probed, sampleRate)
	m.mu.Unlock()

	if m.Rates != nil {
		supported := false
		for _, r := range m.Rates {
			if r == sampleRate {
				supported = true
				break
			}
		}
		if !supported {
			return 0
		}
	}
	return sampleRate / 50 * 2
}

// Open implements Microphone.
func (m *MockMicrophone) Open(cfg Config) (Source, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(cfg)
	}
	src := NewMockSource(cfg, m.Logger, m.Options...)

	m.mu.Lock()
	m.opened = append(m.opened, src)
	m.mu.Unlock()
	return src, nil
}

// Opened returns the sources created by Open.
func (m *MockMicrophone) Opened() []*MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockSource(nil), m.opened...)
}

// Probed returns the sample rates passed to MinBufferSize, in order.
func (m *MockMicrophone) Probed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.probed...)
}

var _ Microphone = (*MockMicrophone)(nil)
