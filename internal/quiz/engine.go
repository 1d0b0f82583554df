package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/hifz/internal/match"
	"github.com/MrWong99/hifz/internal/observe"
)

// QuestionSource produces batches of questions. Implementations may be slow
// and may fail; the engine treats failure as an empty batch.
type QuestionSource interface {
	NextBatch(ctx context.Context, count int) (Batch, error)
}

// CorrectionSpeaker synthesises corrective audio for an answer.
type CorrectionSpeaker interface {
	Speak(ctx context.Context, spoken, correct string, isCorrect bool) ([]byte, error)
}

// Analyst turns answer history into a natural-language performance review.
type Analyst interface {
	Analyse(ctx context.Context, entries []HistoryEntry) (string, error)
}

// AttemptRecorder persists judged attempts outside the session store.
type AttemptRecorder interface {
	RecordAttempt(sessionID string, e HistoryEntry) error
}

// defaultMaxConcurrentPrefetch bounds background fetches across all sessions.
const defaultMaxConcurrentPrefetch = 4

// Engine implements the session lifecycle. It is safe for concurrent use.
type Engine struct {
	source   QuestionSource
	speaker  CorrectionSpeaker
	analyst  Analyst
	recorder AttemptRecorder
	verifier atomic.Pointer[match.Verifier]
	store    *Store
	cfg      BatchConfig
	metrics  *observe.Metrics

	prefetchSem *semaphore.Weighted
	prefetchWG  sync.WaitGroup

	newID func() string
	now   func() time.Time
}

// Option configures an [Engine].
type Option func(*Engine)

// WithSpeaker sets the corrective audio collaborator. Without one, answer
// results carry no audio.
func WithSpeaker(s CorrectionSpeaker) Option {
	return func(e *Engine) { e.speaker = s }
}

// WithAnalyst sets the performance review collaborator. Without one, canned
// texts are returned.
func WithAnalyst(a Analyst) Option {
	return func(e *Engine) { e.analyst = a }
}

// WithRecorder sets a journal that receives every recorded attempt. It is
// called with the session lock held, so attempts of one session arrive in
// history order; RecordAttempt must not call back into the engine. Write
// failures are logged and otherwise ignored.
func WithRecorder(r AttemptRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithVerifier overrides the default [match.Verifier].
func WithVerifier(v *match.Verifier) Option {
	return func(e *Engine) {
		if v != nil {
			e.verifier.Store(v)
		}
	}
}

// WithStore injects a session store, mainly for tests.
func WithStore(s *Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithBatchConfig overrides [DefaultBatchConfig].
func WithBatchConfig(c BatchConfig) Option {
	return func(e *Engine) { e.cfg = c }
}

// WithMaxConcurrentPrefetch bounds background fetches across all sessions.
// Values <= 0 keep the default of 4.
func WithMaxConcurrentPrefetch(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.prefetchSem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator overrides the uuid-based session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New creates an engine that pulls questions from source.
func New(source QuestionSource, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errors.New("quiz: question source is required")
	}
	e := &Engine{
		source:      source,
		store:       NewStore(),
		cfg:         DefaultBatchConfig(),
		prefetchSem: semaphore.NewWeighted(defaultMaxConcurrentPrefetch),
		newID:       uuid.NewString,
		now:         time.Now,
	}
	e.verifier.Store(match.NewVerifier(match.DefaultPolicy()))
	for _, o := range opts {
		o(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e, nil
}

// SetVerifier swaps the answer verifier. Answers already being judged keep
// the previous one.
func (e *Engine) SetVerifier(v *match.Verifier) {
	if v != nil {
		e.verifier.Store(v)
	}
}

// Config returns the effective batch configuration.
func (e *Engine) Config() BatchConfig { return e.cfg }

// StartSession creates and registers a new session seeded with one batch.
// When the batch is empty the session is still registered and returned
// together with [ErrGenerationUnavailable].
func (e *Engine) StartSession(ctx context.Context) (Snapshot, error) {
	ctx, span := observe.StartSpan(ctx, "quiz.StartSession")
	defer span.End()

	id := e.newID()
	ctx = observe.WithSession(ctx, id)
	span.SetAttributes(attribute.String(observe.SessionKey, id))

	b := e.fetchBatch(ctx)
	s := &Session{
		id:         id,
		topicLabel: b.TopicLabel,
		createdAt:  e.now(),
		questions:  b.Questions,
	}
	e.store.Put(s)
	e.metrics.ActiveSessions.Add(ctx, 1)
	span.SetAttributes(attribute.Int("questions", len(b.Questions)))

	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if len(snap.Questions) == 0 {
		observe.Logger(ctx).Warn("quiz: session started without questions")
		return snap, ErrGenerationUnavailable
	}
	observe.Logger(ctx).Info("quiz: session started",
		"topic", s.topicLabel, "questions", len(snap.Questions))
	return snap, nil
}

// SubmitAnswer judges transcribed against the session's current question.
//
// It returns [ErrSessionNotFound], [ErrNoQuestion] or [ErrInvalidQuestion]
// without touching the session. Otherwise the attempt is recorded and, when
// correct, the progression counters advance. Corrective audio is requested
// after the session lock is released.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, transcribed string) (AnswerResult, error) {
	ctx, span := observe.StartSpan(observe.WithSession(ctx, sessionID), "quiz.SubmitAnswer")
	var err error
	defer func() { observe.EndSpan(span, err) }()

	s, err := e.store.Get(sessionID)
	if err != nil {
		return AnswerResult{}, err
	}

	s.mu.Lock()
	if s.currentIndex >= len(s.questions) {
		s.mu.Unlock()
		err = ErrNoQuestion
		return AnswerResult{}, err
	}
	q := s.questions[s.currentIndex]
	d, verr := e.verifier.Load().Verify(transcribed, q.TargetWord)
	if verr != nil {
		s.mu.Unlock()
		err = fmt.Errorf("quiz: question %s: %w", q.ID, verr)
		return AnswerResult{}, err
	}

	entry := HistoryEntry{
		QuestionID:    q.ID,
		UserUtterance: transcribed,
		ExpectedWord:  q.TargetWord,
		ClozeText:     q.ClozeText,
		Correct:       d.Correct,
		Tier:          d.Tier,
	}
	s.history = append(s.history, entry)
	// Journal under the lock so the file order matches history.
	rerr := e.record(sessionID, entry)
	var startPrefetch bool
	if d.Correct {
		startPrefetch = e.cfg.advance(s)
	}
	res := AnswerResult{
		Correct:       d.Correct,
		Tier:          d.Tier,
		UserText:      transcribed,
		Target:        q.TargetWord,
		ClozeText:     q.ClozeText,
		Options:       q.Options,
		CurrentIndex:  s.currentIndex,
		TotalCorrect:  s.totalCorrect,
		BatchPosition: s.batchPosition,
		ShowSummary:   takeSummaryFlag(s),
	}
	s.mu.Unlock()

	if startPrefetch {
		e.prefetch(ctx, s)
	}
	if rerr != nil {
		observe.Logger(ctx).Warn("quiz: failed to journal attempt", "err", rerr)
	}

	e.metrics.RecordAnswer(ctx, d.Correct, d.Tier.String())
	span.SetAttributes(
		attribute.Bool("answer.correct", d.Correct),
		attribute.String("answer.tier", d.Tier.String()),
	)
	observe.Logger(ctx).Debug("quiz: answer judged",
		"question_id", q.ID, "correct", d.Correct, "tier", d.Tier.String(), "similarity", d.Similarity)

	res.FeedbackAudio = e.speak(ctx, transcribed, q.TargetWord, d.Correct)
	return res, nil
}

func (e *Engine) record(sessionID string, entry HistoryEntry) error {
	if e.recorder == nil {
		return nil
	}
	return e.recorder.RecordAttempt(sessionID, entry)
}

// speak requests corrective audio. Any failure yields nil.
func (e *Engine) speak(ctx context.Context, transcribed, target string, correct bool) []byte {
	if e.speaker == nil {
		return nil
	}
	spoken := transcribed
	if spoken == "" {
		spoken = UnclearUtterance
	}
	audio, err := e.speaker.Speak(ctx, spoken, target, correct)
	if err != nil {
		observe.Logger(ctx).Warn("quiz: corrective audio unavailable", "err", err)
		return nil
	}
	return audio
}

// prefetch fetches the next batch off the request path. The caller has
// already set s.prefetchInFlight; it is cleared here once the fetch ends,
// whatever the outcome. The fetch outlives the triggering request.
func (e *Engine) prefetch(ctx context.Context, s *Session) {
	ctx = context.WithoutCancel(ctx)
	e.prefetchWG.Add(1)
	go func() {
		defer e.prefetchWG.Done()

		// Acquire cannot fail on a context without cancellation.
		_ = e.prefetchSem.Acquire(ctx, 1)
		e.metrics.InflightPrefetches.Add(ctx, 1)
		b := e.fetchBatch(ctx)
		e.metrics.InflightPrefetches.Add(ctx, -1)
		e.prefetchSem.Release(1)

		s.mu.Lock()
		s.questions = append(s.questions, b.Questions...)
		s.prefetchInFlight = false
		total := len(s.questions)
		s.mu.Unlock()

		outcome := "appended"
		if len(b.Questions) == 0 {
			outcome = "empty"
		}
		e.metrics.RecordPrefetch(ctx, outcome)
		observe.Logger(ctx).Info("quiz: prefetch finished",
			"added", len(b.Questions), "total", total)
	}()
}

// fetchBatch asks the source for one batch, absorbing failure.
func (e *Engine) fetchBatch(ctx context.Context) Batch {
	ctx, span := observe.StartSpan(ctx, "quiz.fetchBatch")
	start := time.Now()
	b, err := e.source.NextBatch(ctx, e.cfg.BatchSize)
	e.metrics.BatchGenerationDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	if err != nil {
		observe.Logger(ctx).Warn("quiz: question batch unavailable", "err", err)
		return Batch{}
	}
	return b
}

// Wait blocks until every background prefetch has finished.
func (e *Engine) Wait() {
	e.prefetchWG.Wait()
}

// Session returns a snapshot of the session.
func (e *Engine) Session(ctx context.Context, sessionID string) (Snapshot, error) {
	s, err := e.store.Get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// CurrentQuestion returns the question awaiting an answer. ok is false when
// the session has run out of questions.
func (e *Engine) CurrentQuestion(sessionID string) (q Question, ok bool, err error) {
	s, err := e.store.Get(sessionID)
	if err != nil {
		return Question{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex >= len(s.questions) {
		return Question{}, false, nil
	}
	return s.questions[s.currentIndex], true, nil
}

// BatchSummary reports on the last BatchSize history entries. The analysis
// is only requested when at least one of them was wrong.
func (e *Engine) BatchSummary(ctx context.Context, sessionID string) (Summary, error) {
	ctx, span := observe.StartSpan(observe.WithSession(ctx, sessionID), "quiz.BatchSummary")
	defer span.End()

	s, err := e.store.Get(sessionID)
	if err != nil {
		return Summary{}, err
	}

	s.mu.Lock()
	recent := lastN(s.history, e.cfg.BatchSize)
	total := s.totalCorrect
	s.mu.Unlock()

	sum := Summary{
		TotalQuestions: e.cfg.BatchSize,
		WrongAnswers:   []WrongAnswer{},
		OverallScore:   total,
	}
	var wrong []HistoryEntry
	for _, h := range recent {
		if h.Correct {
			sum.CorrectCount++
			continue
		}
		wrong = append(wrong, h)
		sum.WrongAnswers = append(sum.WrongAnswers, WrongAnswer{
			Question: h.ClozeText,
			Correct:  h.ExpectedWord,
			UserSaid: h.UserUtterance,
		})
	}
	sum.WrongCount = len(wrong)

	if len(wrong) == 0 {
		sum.Analysis = NoMistakesText
		return sum, nil
	}
	sum.Analysis = e.analyse(ctx, wrong, FallbackAnalysis)
	return sum, nil
}

// SessionStats reviews the whole answer history of the session.
func (e *Engine) SessionStats(ctx context.Context, sessionID string) (string, error) {
	ctx, span := observe.StartSpan(observe.WithSession(ctx, sessionID), "quiz.SessionStats")
	defer span.End()

	s, err := e.store.Get(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	history := append([]HistoryEntry(nil), s.history...)
	s.mu.Unlock()

	if len(history) == 0 {
		return NoStatsText, nil
	}
	return e.analyse(ctx, history, NoStatsText), nil
}

func (e *Engine) analyse(ctx context.Context, entries []HistoryEntry, fallback string) string {
	if e.analyst == nil {
		return fallback
	}
	text, err := e.analyst.Analyse(ctx, entries)
	if err != nil || text == "" {
		observe.Logger(ctx).Warn("quiz: analysis unavailable", "err", err)
		return fallback
	}
	return text
}

// lastN returns a copy of the last n entries of h.
func lastN(h []HistoryEntry, n int) []HistoryEntry {
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]HistoryEntry(nil), h...)
}
