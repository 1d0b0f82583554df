package quiz

import (
	"errors"

	"github.com/MrWong99/hifz/internal/match"
)

var (
	// ErrSessionNotFound is returned for an unregistered session id.
	ErrSessionNotFound = errors.New("quiz: session not found")

	// ErrNoQuestion is returned when the session has no question at its
	// current index. The caller should request a summary or wait for the
	// next batch.
	ErrNoQuestion = errors.New("quiz: no question available")

	// ErrInvalidQuestion is returned when the current question has no usable
	// target word. The attempt is not recorded.
	ErrInvalidQuestion = match.ErrInvalidQuestion

	// ErrGenerationUnavailable is returned by [Engine.StartSession] when the
	// initial batch came back empty. The session is still registered.
	ErrGenerationUnavailable = errors.New("quiz: question generation unavailable")
)

// Canned texts used when a collaborator is unavailable.
const (
	NoMistakesText   = "ممتاز! أداء رائع بدون أخطاء في هذه الجولة! 🎉"
	FallbackAnalysis = "تحتاج لمراجعة بعض الكلمات. حاول التركيز أكثر على النطق الصحيح."
	NoStatsText      = "لا توجد بيانات كافية."
	UnclearUtterance = "غير واضح"
)
