package stt

import "context"

// StreamConfig describes the audio fed to a RecognitionStream.
type StreamConfig struct {
	// SampleRate of the mono PCM16 audio in Hz.
	SampleRate int

	// Language is a BCP-47 tag such as "yue-HK".
	Language string
}

// Event is one recognizer result or a terminal error.
type Event struct {
	Utterance Utterance
	Err       error
}

// Recognizer is a speech recognition backend.
type Recognizer interface {
	// Bind acquires the backend. Sessions call it once during Init.
	Bind(ctx context.Context) error

	// Open starts one recognition stream.
	Open(ctx context.Context, cfg StreamConfig) (RecognitionStream, error)

	// Close releases the backend.
	Close() error
}

// RecognitionStream consumes audio for one capture.
//
// Events is closed after a final result, an error, or Cancel. Write must
// not block on the consumer of Events.
type RecognitionStream interface {
	// Write appends mono PCM16 audio.
	Write(pcm []byte) error

	// Finish signals end of audio; pending results are still delivered.
	Finish()

	// Cancel abandons the stream without a final result.
	Cancel()

	// Events returns the result channel.
	Events() <-chan Event
}
