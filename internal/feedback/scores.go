package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Scores holds the per-turn speech-quality assessment, each sub-score
// clamped to [0,100].
type Scores struct {
	Accuracy           float64 `json:"accuracy"`
	PronunciationScore float64 `json:"pronunciationScore"`
	GrammarScore       float64 `json:"grammarScore"`
	FluencyScore       float64 `json:"fluencyScore"`
	Feedback           string  `json:"feedback"`
}

// ScoreAccuracy rates the transcript against a reference. In echo mode
// the reference is the corrected sentence; in dialogue mode reference
// equals the transcript itself and the call is a speech-quality
// self-assessment. A parse failure yields neutral scores rather than
// failing the turn; only transport errors propagate.
func (g *Generator) ScoreAccuracy(ctx context.Context, transcript, reference, learningLang, nativeLang string) (Scores, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are assessing a language learner's spoken %s.\n", learningLang)
	fmt.Fprintf(&sb, "Transcript of what they said: %q\n", transcript)
	if reference != transcript && reference != "" {
		fmt.Fprintf(&sb, "The corrected form: %q\n", reference)
		sb.WriteString("Rate how close the student's utterance is to the corrected form.\n")
	} else {
		sb.WriteString("Rate the overall quality of the utterance on its own.\n")
	}
	fmt.Fprintf(&sb, "Return a JSON object with keys accuracy, pronunciationScore, grammarScore, fluencyScore (each 0-100) and feedback (one short sentence in %s).\n", nativeLang)

	raw, err := g.call(ctx, sb.String())
	if err != nil {
		return Scores{}, fmt.Errorf("model call: %w", err)
	}

	var s Scores
	if err := unmarshalModelJSON(raw, &s); err != nil {
		slog.Warn("Accuracy scoring returned unparseable output, using neutral scores", "error", err)
		return Scores{Accuracy: 50, PronunciationScore: 50, GrammarScore: 50, FluencyScore: 50}, nil
	}
	s.Accuracy = clampScore(s.Accuracy)
	s.PronunciationScore = clampScore(s.PronunciationScore)
	s.GrammarScore = clampScore(s.GrammarScore)
	s.FluencyScore = clampScore(s.FluencyScore)
	return s, nil
}
