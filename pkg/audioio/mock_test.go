package audioio

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestMockSource_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	expectedSamples := cfg.BufferSize() * cfg.Channels
	if len(chunk.Samples) != expectedSamples {
		t.Errorf("Expected %d samples, got %d", expectedSamples, len(chunk.Samples))
	}
	if chunk.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, chunk.SampleRate)
	}
}

func TestMockSource_StreamClosedOnStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 5 * time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	stream := src.Stream()

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream was not closed after Stop")
		}
	}
}

func TestMockSource_SineWaveAndEnvelope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = 5 * time.Millisecond

	src := NewMockSource(cfg, nil,
		WithSineWave(440, 0.5),
		WithEnvelope(func(chunk int64) float64 {
			if chunk == 0 {
				return 1
			}
			return 0
		}),
	)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	first, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	second, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if first.RMS() < 0.1 {
		t.Errorf("expected audible first chunk, got rms %f", first.RMS())
	}
	if second.RMS() != 0 {
		t.Errorf("expected silent second chunk, got rms %f", second.RMS())
	}
}

func TestMockSource_Closed(t *testing.T) {
	src := NewMockSource(DefaultConfig(), nil)

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := src.Start(context.Background()); err != io.ErrClosedPipe {
		t.Errorf("expected io.ErrClosedPipe, got %v", err)
	}
}

func TestMockMicrophone_MinBufferSize(t *testing.T) {
	mic := &MockMicrophone{Rates: []int{22050}}

	if got := mic.MinBufferSize(16000); got != 0 {
		t.Errorf("expected 0 for unsupported rate, got %d", got)
	}
	if got := mic.MinBufferSize(22050); got != 882 {
		t.Errorf("expected 882, got %d", got)
	}
}

func TestAudioChunk_BytesRoundTrip(t *testing.T) {
	chunk := AudioChunk{Samples: []int16{0, 1, -1, 32767, -32768}, SampleRate: 16000, Channels: 1}

	var back AudioChunk
	back.FromBytes(chunk.Bytes(), 16000, 1)

	for i, s := range chunk.Samples {
		if back.Samples[i] != s {
			t.Errorf("sample %d: expected %d, got %d", i, s, back.Samples[i])
		}
	}
}
