package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
)

// questionFocuses adds variety to generated questions; one is picked
// at random per question.
var questionFocuses = []string{
	"introducing yourself",
	"daily routines",
	"describing people or places",
	"giving opinions",
	"talking about past events",
	"talking about future plans",
	"hypothetical situations",
	"making comparisons",
	"asking for directions",
	"culture and traditions",
}

// QuizQuestion is one generated question with its expected answer.
type QuizQuestion struct {
	Question      string `json:"question"`
	CorrectAnswer string `json:"correctAnswer"`
}

// GenerateQuestion asks the model for one new question in the learning
// language, forbidding repeats of previously asked questions. The
// model nests the question JSON as a string inside the "correction"
// field; both layers are unwrapped here. Any parse failure substitutes
// a fixed fallback pair rather than failing the quiz turn.
func (g *Generator) GenerateQuestion(ctx context.Context, learningLang, topic string, asked []string) (QuizQuestion, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a language tutor running a spoken quiz in %s.\n", learningLang)
	if topic != "" {
		fmt.Fprintf(&sb, "The quiz topic is: %s.\n", topic)
	}
	fmt.Fprintf(&sb, "Generate one short spoken-answer question about %s, written only in %s.\n",
		questionFocuses[rand.Intn(len(questionFocuses))], learningLang)
	if len(asked) > 0 {
		sb.WriteString("Do not repeat any of these previously asked questions:\n")
		for _, q := range asked {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}
	sb.WriteString("Return a JSON object with one key \"correction\" whose value is a JSON-encoded string ")
	sb.WriteString("of the form {\"question\": \"...\", \"correctAnswer\": \"...\"}.\n")

	raw, err := g.call(ctx, sb.String())
	if err != nil {
		return QuizQuestion{}, fmt.Errorf("model call: %w", err)
	}

	var outer Feedback
	if err := unmarshalModelJSON(raw, &outer); err != nil || outer.Correction == "" {
		slog.Warn("Quiz question generation returned unparseable output, using fallback", "error", err)
		return fallbackQuestion(learningLang), nil
	}
	var q QuizQuestion
	if err := unmarshalModelJSON(outer.Correction, &q); err != nil || q.Question == "" {
		slog.Warn("Quiz question inner payload unparseable, using fallback", "error", err)
		return fallbackQuestion(learningLang), nil
	}
	return q, nil
}

// EvalRequest carries one spoken answer to be judged.
type EvalRequest struct {
	Question         string
	CorrectAnswer    string
	UserAnswer       string
	LearningLanguage string
	NativeLanguage   string
}

// EvaluateAnswer asks the model to judge a spoken answer, instructing
// it to ignore punctuation and formatting and judge grammar,
// vocabulary, and meaning only. Correctness is classified from the
// feedback text afterwards via ClassifyCorrectness.
func (g *Generator) EvaluateAnswer(ctx context.Context, req EvalRequest) (Feedback, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are grading a spoken quiz answer from a student learning %s. Their native language is %s.\n", req.LearningLanguage, req.NativeLanguage)
	fmt.Fprintf(&sb, "Question: %q\n", req.Question)
	fmt.Fprintf(&sb, "Expected answer: %q\n", req.CorrectAnswer)
	fmt.Fprintf(&sb, "The student's transcribed spoken answer: %q\n", req.UserAnswer)
	sb.WriteString("The answer was spoken, so ignore punctuation, capitalization, and formatting differences entirely. ")
	sb.WriteString("Judge only grammar, vocabulary, and whether the meaning answers the question.\n")
	sb.WriteString("Return a JSON object with exactly these keys:\n")
	fmt.Fprintf(&sb, "- \"correction\": short feedback in %s, stating clearly whether the answer was correct and giving the correct answer if not.\n", req.LearningLanguage)
	fmt.Fprintf(&sb, "- \"explanation\": a brief rationale in %s.\n", req.NativeLanguage)

	raw, err := g.call(ctx, sb.String())
	if err != nil {
		return Feedback{}, fmt.Errorf("model call: %w", err)
	}
	var fb Feedback
	if err := unmarshalModelJSON(raw, &fb); err != nil || fb.Correction == "" {
		slog.Warn("Quiz evaluation returned unparseable output, using fallback", "error", err)
		return Feedback{
			Correction:  req.CorrectAnswer,
			Explanation: retryMessage(req.NativeLanguage),
		}, nil
	}
	return fb, nil
}

// positiveWords and negativeWords drive ClassifyCorrectness across the
// supported feedback languages.
var positiveWords = []string{
	"correct", "right", "well done", "excellent", "perfect", "great job",
	"correcto", "muy bien", "perfecto", "bien hecho",
	"très bien", "parfait", "exact",
	"richtig", "sehr gut", "perfekt",
	"corretto", "ottimo", "perfetto",
	"correto", "muito bem", "perfeito",
}

var negativeWords = []string{
	"incorrect", "wrong", "not quite", "mistake",
	"incorrecto", "equivocado",
	"faux", "incorrecte",
	"falsch",
	"sbagliato", "errato",
	"errado", "incorreto",
}

// ClassifyCorrectness infers a boolean verdict from the model's
// free-text feedback, since the model is not asked for one directly.
// A feedback string counts as correct when it contains a positive
// marker, or when it contains no negative marker at all. This is a
// known-fragile heuristic kept for compatibility: "not correct"
// matches the positive "correct" and classifies as correct. Replace by
// asking the model for an explicit boolean field when the prompt
// contract can change.
func ClassifyCorrectness(feedbackText string) bool {
	text := strings.ToLower(feedbackText)
	for _, w := range positiveWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			return false
		}
	}
	return true
}

// QuestionResult summarizes one answered question for the summary call.
type QuestionResult struct {
	Question      string
	CorrectAnswer string
	UserAnswer    string
	Correct       bool
}

// Assessment is the holistic end-of-quiz evaluation. All scores are in
// [0,100]; the free-text fields are in the learner's native language.
type Assessment struct {
	PronunciationScore float64 `json:"pronunciationScore"`
	GrammarScore       float64 `json:"grammarScore"`
	VocabularyScore    float64 `json:"vocabularyScore"`
	ComprehensionScore float64 `json:"comprehensionScore"`
	OverallScore       float64 `json:"overallScore"`
	Strengths          string  `json:"strengths"`
	Weaknesses         string  `json:"weaknesses"`
	Recommendations    string  `json:"recommendations"`
}

// Summarize produces the holistic assessment for a finished quiz. On
// model or parse failure it substitutes the static per-language
// fallback bundle so the score screen always renders.
func (g *Generator) Summarize(ctx context.Context, learningLang, nativeLang string, results []QuestionResult, score, total int) Assessment {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A student learning %s finished a spoken quiz, scoring %d out of %d.\n", learningLang, score, total)
	sb.WriteString("Their answers:\n")
	for i, r := range results {
		verdict := "incorrect"
		if r.Correct {
			verdict = "correct"
		}
		fmt.Fprintf(&sb, "%d. Q: %s | expected: %s | said: %s (%s)\n", i+1, r.Question, r.CorrectAnswer, r.UserAnswer, verdict)
	}
	fmt.Fprintf(&sb, "Return a JSON object with keys pronunciationScore, grammarScore, vocabularyScore, comprehensionScore, overallScore (each 0-100) and strengths, weaknesses, recommendations (short texts written in %s).\n", nativeLang)

	raw, err := g.call(ctx, sb.String())
	if err != nil {
		slog.Warn("Quiz summary model call failed, using fallback assessment", "error", err)
		return fallbackAssessment(nativeLang, score, total)
	}
	var a Assessment
	if err := unmarshalModelJSON(raw, &a); err != nil || a.Strengths == "" {
		slog.Warn("Quiz summary returned unparseable output, using fallback assessment", "error", err)
		return fallbackAssessment(nativeLang, score, total)
	}
	a.PronunciationScore = clampScore(a.PronunciationScore)
	a.GrammarScore = clampScore(a.GrammarScore)
	a.VocabularyScore = clampScore(a.VocabularyScore)
	a.ComprehensionScore = clampScore(a.ComprehensionScore)
	a.OverallScore = clampScore(a.OverallScore)
	return a
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
