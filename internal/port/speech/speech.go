// Package speech defines the speech-to-text and text-to-speech ports.
package speech

import "context"

// Transcriber converts raw audio bytes into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimetype string) (string, error)
}

// Synthesizer converts text into spoken audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, format string) ([]byte, error)
}
