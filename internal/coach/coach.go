// Package coach writes natural-language performance reviews of a learner's
// answer history with an LLM.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/internal/quiz"
	"github.com/MrWong99/hifz/pkg/provider/llm"
)

// ErrEmptyReply is returned when the model answered with no text.
var ErrEmptyReply = errors.New("coach: empty reply")

var _ quiz.Analyst = (*Coach)(nil)

// Coach implements [quiz.Analyst].
type Coach struct {
	llm          llm.Provider
	providerName string
	maxTokens    int
	metrics      *observe.Metrics
}

// Option configures a [Coach].
type Option func(*Coach)

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(c *Coach) { c.providerName = name }
}

// WithMaxTokens caps the length of the review. Zero keeps the provider default.
func WithMaxTokens(n int) Option {
	return func(c *Coach) { c.maxTokens = n }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coach) { c.metrics = m }
}

// New returns a coach that prompts p.
func New(p llm.Provider, opts ...Option) *Coach {
	c := &Coach{llm: p, providerName: "llm"}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// reviewEntry is the per-attempt record shown to the model.
type reviewEntry struct {
	Question   string `json:"question"`
	Expected   string `json:"correctAnswer"`
	UserAnswer string `json:"userAnswer"`
	Correct    bool   `json:"isCorrect"`
}

// Analyse implements [quiz.Analyst].
func (c *Coach) Analyse(ctx context.Context, entries []quiz.HistoryEntry) (string, error) {
	ctx, span := observe.StartSpan(ctx, "coach.Analyse")
	var err error
	defer func() { observe.EndSpan(span, err) }()

	prompt, err := buildPrompt(entries)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		Messages:  []llm.Message{llm.UserMessage(prompt)},
		MaxTokens: c.maxTokens,
	})
	c.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", c.providerName), observe.Attr("op", "analyse")))
	if err != nil {
		c.metrics.RecordProviderRequest(ctx, c.providerName, "llm", "error")
		c.metrics.RecordProviderError(ctx, c.providerName, "llm")
		err = fmt.Errorf("coach: complete: %w", err)
		return "", err
	}
	c.metrics.RecordProviderRequest(ctx, c.providerName, "llm", "ok")

	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		err = ErrEmptyReply
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func buildPrompt(entries []quiz.HistoryEntry) (string, error) {
	review := make([]reviewEntry, len(entries))
	for i, e := range entries {
		review[i] = reviewEntry{
			Question:   e.ClozeText,
			Expected:   e.ExpectedWord,
			UserAnswer: e.UserUtterance,
			Correct:    e.Correct,
		}
	}
	data, err := json.Marshal(review)
	if err != nil {
		return "", fmt.Errorf("coach: encode history: %w", err)
	}

	return "Analyze the following student performance history in Quran recitation:\n" +
		string(data) + "\n\n" +
		`Provide a concise summary of weaknesses (e.g. "Struggles with throat letters") ` +
		"and tips for improvement. Arabic language response.", nil
}
