package resilience

import (
	"context"

	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/pkg/provider/llm"
	"github.com/MrWong99/hifz/pkg/provider/stt"
	"github.com/MrWong99/hifz/pkg/provider/tts"
)

// ObserveTransitions returns an OnStateChange hook that counts transitions
// in m.
func ObserveTransitions(m *observe.Metrics) func(name string, from, to State) {
	return func(name string, _, to State) {
		m.RecordBreakerTransition(context.Background(), name, to.String())
	}
}

// LLMFallback is an [llm.Provider] that fails over across several backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Ping reports whether any backend is currently admitting calls.
func (f *LLMFallback) Ping(context.Context) error { return f.group.Available() }

// STTFallback is an [stt.Provider] that fails over across several backends.
// The same recording is replayed to each backend in turn.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// Transcribe implements [stt.Provider]. [stt.ErrEmptyAudio] is returned
// directly; no backend can do better with an empty clip and it must not trip
// any breaker.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", stt.ErrEmptyAudio
	}
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, req)
	})
}

// Ping reports whether any backend is currently admitting calls.
func (f *STTFallback) Ping(context.Context) error { return f.group.Available() }

// TTSFallback is a [tts.Provider] that fails over across several backends.
//
// Only stream setup is covered: once a backend has returned its audio
// channel, errors during synthesis close that channel early as usual. The text
// channel is drained before the first attempt so every backend can be offered
// the complete utterance.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// SynthesizeStream implements [tts.Provider].
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	var fragments []string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case frag, ok := <-text:
			if !ok {
				return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
					return p.SynthesizeStream(ctx, replay(fragments), voice)
				})
			}
			fragments = append(fragments, frag)
		}
	}
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Ping reports whether any backend is currently admitting calls.
func (f *TTSFallback) Ping(context.Context) error { return f.group.Available() }

func replay(fragments []string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, s := range fragments {
		ch <- s
	}
	close(ch)
	return ch
}
