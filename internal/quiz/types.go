// Package quiz owns quiz session state and the operations that drive it.
//
// The [Engine] composes the answer [match.Verifier], an in-memory [Store] of
// sessions and the batch coordinator that advances progression counters and
// triggers background prefetch of the next question batch. All collaborators
// that talk to external AI services ([QuestionSource], [CorrectionSpeaker],
// [Analyst]) are interfaces; their failures are absorbed and replaced by
// neutral defaults so an answer always gets a verdict.
package quiz

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/hifz/internal/match"
)

// Question is one cloze item. It is immutable once created.
type Question struct {
	// ID is unique within the process.
	ID string `json:"questionId"`

	// ClozeText is the passage text with the target word replaced by a gap.
	ClozeText string `json:"clozeText"`

	// TargetWord is the hidden word the user has to say.
	TargetWord string `json:"targetWord"`

	// Options are the words offered to the user, target included.
	Options []string `json:"options"`

	// TopicLabel is the display name of the source passage.
	TopicLabel string `json:"surahName,omitempty"`
}

// gapPattern matches the gap marker in cloze text: three or more dots, or
// the ellipsis character.
var gapPattern = regexp.MustCompile(`\.{3,}|…+`)

// HasGap reports whether the cloze text contains a gap marker.
func (q Question) HasGap() bool {
	return gapPattern.MatchString(q.ClozeText)
}

// Filled returns the cloze text with every gap replaced by the target word,
// i.e. the complete verse.
func (q Question) Filled() string {
	return strings.TrimSpace(gapPattern.ReplaceAllLiteralString(q.ClozeText, q.TargetWord))
}

// Batch is one unit of questions returned by a [QuestionSource].
type Batch struct {
	TopicLabel string
	Questions  []Question
}

// HistoryEntry records one answer attempt. Entries are never mutated.
type HistoryEntry struct {
	QuestionID    string     `json:"questionId"`
	UserUtterance string     `json:"userAnswer"`
	ExpectedWord  string     `json:"correctAnswer"`
	ClozeText     string     `json:"clozeText"`
	Correct       bool       `json:"isCorrect"`
	Tier          match.Tier `json:"tier"`
}

// Session is one quiz run. All fields are guarded by mu; callers outside
// this package only ever see a [Snapshot].
type Session struct {
	mu sync.Mutex

	id         string
	topicLabel string
	createdAt  time.Time

	questions     []Question
	currentIndex  int
	batchPosition int
	totalCorrect  int
	history       []HistoryEntry

	prefetchInFlight bool
	pendingSummary   bool
}

// ID returns the immutable session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot is a read-only copy of a session's state, suitable for JSON.
type Snapshot struct {
	SessionID        string         `json:"sessionId"`
	TopicLabel       string         `json:"surahName"`
	CreatedAt        time.Time      `json:"createdAt"`
	Questions        []Question     `json:"questions"`
	CurrentIndex     int            `json:"currentIndex"`
	BatchPosition    int            `json:"batchIndex"`
	TotalCorrect     int            `json:"totalAnswered"`
	History          []HistoryEntry `json:"history"`
	PrefetchInFlight bool           `json:"isFetchingMore"`
}

// snapshot copies the session state. The caller must hold s.mu.
func (s *Session) snapshot() Snapshot {
	return Snapshot{
		SessionID:        s.id,
		TopicLabel:       s.topicLabel,
		CreatedAt:        s.createdAt,
		Questions:        append([]Question(nil), s.questions...),
		CurrentIndex:     s.currentIndex,
		BatchPosition:    s.batchPosition,
		TotalCorrect:     s.totalCorrect,
		History:          append([]HistoryEntry(nil), s.history...),
		PrefetchInFlight: s.prefetchInFlight,
	}
}

// AnswerResult is returned by [Engine.SubmitAnswer].
type AnswerResult struct {
	Correct   bool       `json:"isCorrect"`
	Tier      match.Tier `json:"tier"`
	UserText  string     `json:"userText"`
	Target    string     `json:"target"`
	ClozeText string     `json:"clozeText"`
	Options   []string   `json:"options"`

	// FeedbackAudio is the corrective speech, or nil when synthesis was
	// unavailable. Encoded as base64 (or null) in JSON.
	FeedbackAudio []byte `json:"feedbackAudio"`

	CurrentIndex  int  `json:"currentIndex"`
	TotalCorrect  int  `json:"totalAnswered"`
	BatchPosition int  `json:"batchIndex"`
	ShowSummary   bool `json:"showSummary"`
}

// WrongAnswer is one reviewed mistake in a [Summary].
type WrongAnswer struct {
	Question string `json:"question"`
	Correct  string `json:"correct"`
	UserSaid string `json:"userSaid"`
}

// Summary reports on the most recent batch of answers.
type Summary struct {
	TotalQuestions int           `json:"totalQuestions"`
	CorrectCount   int           `json:"correctCount"`
	WrongCount     int           `json:"wrongCount"`
	WrongAnswers   []WrongAnswer `json:"wrongAnswers"`
	Analysis       string        `json:"analysis"`
	OverallScore   int           `json:"overallScore"`
}
