// Package feedback produces the spoken and recorded feedback for answers.
//
// [Speaker] implements [quiz.CorrectionSpeaker]: it phrases the correction,
// synthesises it with a TTS provider and caches the audio per phrase, since
// the same few words come up again and again within a passage. [Journal]
// appends every judged attempt to a JSON lines file for later review.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/internal/quiz"
	"github.com/MrWong99/hifz/pkg/provider/tts"
)

const (
	praisePrefix     = "أحسنت! "
	correctionPrefix = "الإجابة الصحيحة هي: "

	defaultCacheTTL     = time.Hour
	defaultCacheCleanup = 10 * time.Minute
)

var _ quiz.CorrectionSpeaker = (*Speaker)(nil)

// Phrase returns the text spoken back to the learner.
func Phrase(correct string, isCorrect bool) string {
	if isCorrect {
		return praisePrefix + correct
	}
	return correctionPrefix + correct
}

// Speaker synthesises corrective audio.
type Speaker struct {
	tts          tts.Provider
	voice        tts.VoiceProfile
	providerName string
	cache        *cache.Cache
	metrics      *observe.Metrics
}

// Option configures a [Speaker].
type Option func(*Speaker)

// WithCacheTTL sets how long synthesised phrases are kept. Zero disables
// caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Speaker) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, defaultCacheCleanup)
	}
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(s *Speaker) { s.providerName = name }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// NewSpeaker returns a speaker that synthesises with p in voice.
func NewSpeaker(p tts.Provider, voice tts.VoiceProfile, opts ...Option) *Speaker {
	s := &Speaker{
		tts:          p,
		voice:        voice,
		providerName: "tts",
		cache:        cache.New(defaultCacheTTL, defaultCacheCleanup),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Speak implements [quiz.CorrectionSpeaker]. The spoken text only matters
// for logging; the phrase depends on the correct word and the verdict.
func (s *Speaker) Speak(ctx context.Context, spoken, correct string, isCorrect bool) ([]byte, error) {
	phrase := Phrase(correct, isCorrect)
	if s.cache != nil {
		if v, ok := s.cache.Get(phrase); ok {
			return v.([]byte), nil
		}
	}

	ctx, span := observe.StartSpan(ctx, "feedback.Speak")
	start := time.Now()
	audio, err := tts.Synthesize(ctx, s.tts, phrase, s.voice)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", s.providerName)))
	observe.EndSpan(span, err)
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.providerName, "tts", "error")
		s.metrics.RecordProviderError(ctx, s.providerName, "tts")
		return nil, fmt.Errorf("feedback: synthesise %q: %w", phrase, err)
	}
	s.metrics.RecordProviderRequest(ctx, s.providerName, "tts", "ok")

	if s.cache != nil {
		s.cache.SetDefault(phrase, audio)
	}
	observe.Logger(ctx).Debug("feedback: synthesised correction",
		"spoken", spoken, "phrase", phrase, "bytes", len(audio))
	return audio, nil
}
