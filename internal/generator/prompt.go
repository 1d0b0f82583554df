package generator

import (
	"fmt"
	"unicode/utf8"
)

// difficultyHints maps the configured difficulty onto an instruction for the
// model. Unknown values fall back to the plain label.
var difficultyHints = map[string]string{
	"easy":   "اختر كلمات واضحة ومشهورة من الآيات.",
	"medium": "اختر كلمات متوسطة الصعوبة.",
	"hard":   "اختر كلمات أقل شيوعاً تحتاج إلى حفظ دقيق.",
}

// buildPrompt renders the Arabic cloze-generation prompt. The passage excerpt
// is cut at maxChars runes.
func buildPrompt(text, difficulty string, count, maxChars int) string {
	hint, ok := difficultyHints[difficulty]
	if !ok {
		hint = "مستوى الصعوبة: " + difficulty
	}
	excerpt := text
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		excerpt = string([]rune(text)[:maxChars]) + "..."
	}

	return fmt.Sprintf(`أنت معلم قرآن محترف. مهمتك إنشاء أسئلة "أكمل الفراغ" من النص القرآني التالي.

المطلوب: توليد %d سؤال. %s

لكل سؤال:
1. اختر آية كاملة من النص.
2. اختر كلمة مهمة من الآية لإخفائها (targetWord).
3. أنشئ النص مع الفراغ (clozeText) بحيث تستبدل الكلمة المخفية بـ "%s".
4. قدم 3 خيارات: الكلمة الصحيحة + كلمتين خاطئتين لكن منطقيتين.

مهم جداً:
- في clozeText، يجب أن تكون الكلمة المخفية مستبدلة بـ "%s" فقط.
- لا تضع الكلمة الصحيحة في clozeText أبداً.
- احتفظ بالتشكيل الكامل في جميع النصوص.

النص القرآني:
%s

أخرج النتيجة بصيغة JSON فقط بدون أي نص إضافي:
[
    {
        "questionId": 1,
        "clozeText": "نص الآية مع %s مكان الكلمة المخفية",
        "targetWord": "الكلمة الصحيحة",
        "options": ["الكلمة الصحيحة", "كلمة خاطئة 1", "كلمة خاطئة 2"]
    }
]

مثال توضيحي:
إذا كانت الآية: "إِنَّا أَعْطَيْنَاكَ الْكَوْثَرَ"
والكلمة المخفية: "الْكَوْثَرَ"
فيجب أن يكون clozeText: "إِنَّا أَعْطَيْنَاكَ %s"
`, count, hint, gapMarker, gapMarker, excerpt, gapMarker, gapMarker)
}
