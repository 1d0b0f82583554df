// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., Groq or OpenAI
// Whisper, Deepgram pre-recorded, or a local whisper.cpp server). The quiz
// records one short utterance per answer, so the interface is a single
// request/response call rather than a streaming session.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by providers when Request.Audio has no bytes.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts the recorded audio in req to text. An utterance the
	// backend could not make sense of yields "" and a nil error; transport or
	// authentication problems are returned as errors.
	Transcribe(ctx context.Context, req Request) (string, error)
}
