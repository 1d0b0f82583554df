// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents a uniform streaming interface. SynthesizeStream accepts a channel
// of text fragments and returns a channel of encoded audio chunks as they
// become available. [Synthesize] collects a whole utterance into one buffer
// for callers that need a complete clip.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// ErrNoAudio is returned by [Synthesize] when the provider closed the stream
// without producing a single byte.
var ErrNoAudio = errors.New("tts: provider produced no audio")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns
	// a channel that emits audio byte slices as they are synthesised.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. The caller must drain it.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis close the audio channel early.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// Synthesize renders a single utterance and returns the concatenated audio.
// A stream that ends because ctx was cancelled returns ctx.Err().
func Synthesize(ctx context.Context, p Provider, text string, voice VoiceProfile) ([]byte, error) {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := p.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return nil, fmt.Errorf("tts: start stream: %w", err)
	}

	var buf bytes.Buffer
	for chunk := range audioCh {
		buf.Write(chunk)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, ErrNoAudio
	}
	return buf.Bytes(), nil
}
