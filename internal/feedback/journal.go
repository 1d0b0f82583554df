package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/hifz/internal/quiz"
)

// Compile-time interface check.
var _ quiz.AttemptRecorder = (*Journal)(nil)

// Record is a single attempt written to the journal.
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id"`
	QuestionID    string    `json:"question_id"`
	UserAnswer    string    `json:"user_answer"`
	CorrectAnswer string    `json:"correct_answer"`
	Correct       bool      `json:"is_correct"`
	Tier          string    `json:"tier"`
}

// Journal persists attempts as JSON lines in a local file.
// Thread-safe for concurrent use.
type Journal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewJournal creates a Journal that writes to the given path.
// The file is created on the first write.
func NewJournal(path string) *Journal {
	return &Journal{path: path, now: time.Now}
}

// RecordAttempt appends one attempt to the file.
func (j *Journal) RecordAttempt(sessionID string, e quiz.HistoryEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	record := Record{
		Timestamp:     j.now().UTC(),
		SessionID:     sessionID,
		QuestionID:    e.QuestionID,
		UserAnswer:    e.UserUtterance,
		CorrectAnswer: e.ExpectedWord,
		Correct:       e.Correct,
		Tier:          e.Tier.String(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("feedback: open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("feedback: write: %w", err)
	}
	return nil
}
