// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{[]byte("ID3")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Adam"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hifz/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Voice is the voice profile passed to SynthesizeStream.
	Voice tts.VoiceProfile
}

// ListVoicesCall records a single invocation of ListVoices.
type ListVoicesCall struct {
	// Ctx is the context passed to ListVoices.
	Ctx context.Context
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks is emitted on the audio channel once the text channel
	// is closed.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned from SynthesizeStream.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned from ListVoices.
	ListVoicesErr error

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// Texts records every text fragment received, across all calls.
	Texts []string

	// ListVoicesCalls records every call to ListVoices in order.
	ListVoicesCalls []ListVoicesCall
}

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// channel that emits SynthesizeChunks after the text channel is drained.
// Fragments are recorded before the first chunk is sent, so they are visible
// once the caller has drained the audio channel.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		var got []string
		for t := range text {
			got = append(got, t)
		}
		p.mu.Lock()
		p.Texts = append(p.Texts, got...)
		p.mu.Unlock()

		for _, audio := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- audio:
			}
		}
	}()
	return ch, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls = append(p.ListVoicesCalls, ListVoicesCall{Ctx: ctx})
	return p.ListVoicesResult, p.ListVoicesErr
}

// CallCount returns how often SynthesizeStream was called. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeStreamCalls)
}

// ReceivedTexts returns a copy of all recorded text fragments. Thread-safe.
func (p *Provider) ReceivedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Texts))
	copy(out, p.Texts)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
	p.ListVoicesCalls = nil
	p.Texts = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
