// Package generator builds cloze questions from source passages with an LLM.
//
// [Generator] implements [quiz.QuestionSource]: it picks a random passage,
// asks the model for a JSON array of fill-in-the-gap items, validates every
// item and stamps it with a fresh id and the passage name. Items the model
// gets wrong (missing target, no gap, target absent from the options) are
// repaired when possible and dropped otherwise.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/hifz/internal/arabic"
	"github.com/MrWong99/hifz/internal/observe"
	"github.com/MrWong99/hifz/internal/passage"
	"github.com/MrWong99/hifz/internal/quiz"
	"github.com/MrWong99/hifz/pkg/provider/llm"
)

// ErrNoQuestions is returned when the model reply contained no usable item.
var ErrNoQuestions = errors.New("generator: no usable questions in reply")

const (
	defaultContextChars = 4000
	defaultPromptChars  = 3000
	defaultDifficulty   = "easy"
	gapMarker           = "....."
)

var _ quiz.QuestionSource = (*Generator)(nil)

// Generator turns passages into question batches.
type Generator struct {
	llm      llm.Provider
	passages passage.Source

	contextChars int
	promptChars  int
	difficulty   string
	temperature  float64
	providerName string

	metrics *observe.Metrics
	newID   func() string
}

// Option configures a [Generator].
type Option func(*Generator)

// WithContextChars sets how many runes of the passage are handed to the
// prompt builder. Default: 4000.
func WithContextChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.contextChars = n
		}
	}
}

// WithPromptChars caps the passage excerpt embedded in the prompt.
// Default: 3000.
func WithPromptChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.promptChars = n
		}
	}
}

// WithDifficulty sets the requested difficulty. Default: "easy".
func WithDifficulty(d string) Option {
	return func(g *Generator) {
		if d != "" {
			g.difficulty = d
		}
	}
}

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(g *Generator) { g.providerName = name }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithIDGenerator overrides the uuid-based question id generator.
func WithIDGenerator(fn func() string) Option {
	return func(g *Generator) { g.newID = fn }
}

// New returns a generator that draws passages from src and prompts p.
func New(p llm.Provider, src passage.Source, opts ...Option) *Generator {
	g := &Generator{
		llm:          p,
		passages:     src,
		contextChars: defaultContextChars,
		promptChars:  defaultPromptChars,
		difficulty:   defaultDifficulty,
		providerName: "llm",
		newID:        uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// NextBatch implements [quiz.QuestionSource].
func (g *Generator) NextBatch(ctx context.Context, count int) (quiz.Batch, error) {
	p, err := g.passages.Random(ctx)
	if err != nil {
		return quiz.Batch{}, fmt.Errorf("generator: pick passage: %w", err)
	}
	label := p.Label()
	text := p.Chunk(g.contextChars)
	if text == "" {
		return quiz.Batch{TopicLabel: label}, fmt.Errorf("generator: passage %q has no text", label)
	}

	qs, err := g.Generate(ctx, text, g.difficulty, count)
	if err != nil {
		return quiz.Batch{TopicLabel: label}, err
	}
	for i := range qs {
		qs[i].TopicLabel = label
	}
	return quiz.Batch{TopicLabel: label, Questions: qs}, nil
}

// Generate asks the model for count cloze questions over text. The result
// holds at most count items, all validated.
func (g *Generator) Generate(ctx context.Context, text, difficulty string, count int) ([]quiz.Question, error) {
	if count <= 0 {
		return nil, nil
	}
	ctx, span := observe.StartSpan(ctx, "generator.Generate")
	var err error
	defer func() { observe.EndSpan(span, err) }()

	req := llm.CompletionRequest{
		Messages:    []llm.Message{llm.UserMessage(buildPrompt(text, difficulty, count, g.promptChars))},
		Temperature: g.temperature,
	}

	start := time.Now()
	resp, err := g.llm.Complete(ctx, req)
	g.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", g.providerName), observe.Attr("op", "generate")))
	if err != nil {
		g.metrics.RecordProviderRequest(ctx, g.providerName, "llm", "error")
		g.metrics.RecordProviderError(ctx, g.providerName, "llm")
		err = fmt.Errorf("generator: complete: %w", err)
		return nil, err
	}
	g.metrics.RecordProviderRequest(ctx, g.providerName, "llm", "ok")
	if resp == nil {
		err = ErrNoQuestions
		return nil, err
	}

	qs, err := g.parse(resp.Content, resp.Truncated())
	if err != nil {
		observe.Logger(ctx).Debug("generator: unparseable reply",
			"content", resp.Content, "finish_reason", resp.FinishReason)
		return nil, err
	}
	if resp.Truncated() {
		observe.Logger(ctx).Warn("generator: reply hit the token limit",
			"provider", g.providerName, "kept", len(qs), "requested", count)
	}
	if len(qs) > count {
		qs = qs[:count]
	}
	g.metrics.QuestionsGenerated.Add(ctx, int64(len(qs)))
	return qs, nil
}

// rawQuestion is one item of the model's JSON reply. The model's own
// questionId is ignored.
type rawQuestion struct {
	ClozeText  string   `json:"clozeText"`
	TargetWord string   `json:"targetWord"`
	Options    []string `json:"options"`
}

// parse decodes the reply item by item. A truncated reply keeps the items
// that were complete before the cut.
func (g *Generator) parse(content string, truncated bool) ([]quiz.Question, error) {
	raws, err := decodeItems(extractJSONArray(content))
	if err != nil && (!truncated || len(raws) == 0) {
		return nil, fmt.Errorf("generator: decode reply: %w", err)
	}

	out := make([]quiz.Question, 0, len(raws))
	for _, r := range raws {
		q, ok := sanitize(r)
		if !ok {
			continue
		}
		q.ID = g.newID()
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, ErrNoQuestions
	}
	return out, nil
}

// sanitize validates one item. The target must be a real word, the cloze text
// must contain a gap (it is punched in when the model left the word in place)
// and the options must include the target exactly once.
func sanitize(r rawQuestion) (quiz.Question, bool) {
	target := strings.TrimSpace(r.TargetWord)
	cloze := strings.TrimSpace(r.ClozeText)
	if arabic.Normalize(target) == "" || cloze == "" {
		return quiz.Question{}, false
	}

	q := quiz.Question{ClozeText: cloze, TargetWord: target}
	if !q.HasGap() {
		if !strings.Contains(cloze, target) {
			return quiz.Question{}, false
		}
		q.ClozeText = strings.Replace(cloze, target, gapMarker, 1)
	}

	seen := make(map[string]bool, len(r.Options)+1)
	for _, o := range r.Options {
		o = strings.TrimSpace(o)
		key := arabic.Normalize(o)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		q.Options = append(q.Options, o)
	}
	if !seen[arabic.Normalize(target)] {
		q.Options = slices.Insert(q.Options, 0, target)
	}
	return q, true
}

func decodeItems(body string) ([]rawQuestion, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('[') {
		return nil, fmt.Errorf("reply starts with %v, want a JSON array", tok)
	}
	var raws []rawQuestion
	for dec.More() {
		var r rawQuestion
		if err := dec.Decode(&r); err != nil {
			return raws, err
		}
		raws = append(raws, r)
	}
	return raws, nil
}

// extractJSONArray strips markdown fences and any prose before the JSON
// array. Whatever follows the array is left for the decoder to ignore.
func extractJSONArray(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '['); i >= 0 {
		return s[i:]
	}
	return s
}
