package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ashureev/lingo-labs/internal/feedback"
	"github.com/ashureev/lingo-labs/internal/protocol"
	"github.com/ashureev/lingo-labs/internal/session"
	"github.com/ashureev/lingo-labs/internal/transcribe"
)

// runTurn drives one processing turn over the accumulated audio:
// transcription, mode-specific feedback, scoring, and synthesis. The
// audio buffer is flushed exactly once whether the turn succeeds or
// fails, so stale frames never leak into the next turn.
func (h *Handler) runTurn(ctx context.Context, c *conn, sess *session.Session) {
	defer sess.EndTurn()
	defer sess.FlushAudio()

	turnCtx, cancel := context.WithTimeout(ctx, h.timeouts.Turn)
	defer cancel()

	chunks := sess.AudioSnapshot()
	if len(chunks) == 0 {
		c.sendError("No audio received")
		return
	}

	result, err := h.stt.Transcribe(turnCtx, chunks, sess.LearningLanguage)
	if err != nil {
		slog.Error("Transcription failed", "error", err, "session_id", sess.ID)
		switch {
		case errors.Is(err, transcribe.ErrUnsupportedLanguage):
			c.sendError("Unsupported language: " + sess.LearningLanguage)
		default:
			c.sendError("Could not transcribe audio. Please try again.")
		}
		return
	}
	if result.Text == "" {
		c.sendError("No speech detected. Please try again.")
		return
	}
	slog.Info("Turn transcribed",
		"session_id", sess.ID,
		"chars", len(result.Text),
		"language", result.Language)

	// The transcript goes out immediately so the client can render it
	// while the model stages run; a second, score-enriched copy follows
	// after assessment.
	c.sendJSON(protocol.Transcription{
		Transcription: result.Text,
		Language:      result.Language,
	})

	if sess.Mode == session.ModeQuiz {
		h.handleQuizAnswer(turnCtx, c, sess, result.Text)
		return
	}
	h.runFeedbackStages(turnCtx, c, sess, result.Text)
}

// runFeedbackStages runs the echo and dialogue pipeline after
// transcription: model feedback, accuracy scoring, and synthesis.
func (h *Handler) runFeedbackStages(ctx context.Context, c *conn, sess *session.Session, transcript string) {
	req := feedback.Request{
		Text:             transcript,
		LearningLanguage: sess.LearningLanguage,
		NativeLanguage:   sess.NativeLanguage,
		Mode:             string(sess.Mode),
	}
	if sess.Mode == session.ModeDialogue {
		req.ScenarioContext = h.scenarios.Get(sess.ScenarioID).PromptContext()
		for _, entry := range sess.History() {
			req.History = append(req.History, feedback.Turn{Role: entry.Role, Content: entry.Content})
		}
	}

	fb, err := h.gen.Generate(ctx, req)
	if err != nil {
		slog.Error("Feedback generation failed", "error", err, "session_id", sess.ID)
		c.sendError("Could not generate feedback. Please try again.")
		return
	}

	if sess.Mode == session.ModeDialogue {
		sess.AppendHistory("user", transcript)
		sess.AppendHistory("assistant", fb.Correction)
	}

	c.sendJSON(protocol.Feedback{
		Correction:          fb.Correction,
		Explanation:         fb.Explanation,
		CorrectionLanguage:  sess.LearningLanguage,
		ExplanationLanguage: sess.NativeLanguage,
	})

	// In echo mode the transcript is scored against the correction; in
	// dialogue the correction is a reply, so the transcript is assessed
	// on its own.
	reference := fb.Correction
	if sess.Mode == session.ModeDialogue {
		reference = transcript
	}
	scores, err := h.gen.ScoreAccuracy(ctx, transcript, reference, sess.LearningLanguage, sess.NativeLanguage)
	if err != nil {
		slog.Warn("Accuracy scoring failed, omitting scores", "error", err, "session_id", sess.ID)
	} else {
		c.sendJSON(protocol.Transcription{
			Transcription:      transcript,
			Language:           sess.LearningLanguage,
			Accuracy:           scores.Accuracy,
			PronunciationScore: scores.PronunciationScore,
			GrammarScore:       scores.GrammarScore,
			FluencyScore:       scores.FluencyScore,
			AccuracyFeedback:   scores.Feedback,
		})
	}

	correctionURL := h.sendClip(ctx, c, fb.Correction, sess.LearningLanguage, "correction", false)
	explanationURL := ""
	if fb.Explanation != "" {
		explanationURL = h.sendClip(ctx, c, fb.Explanation, sess.NativeLanguage, "explanation", false)
	}

	c.sendJSON(protocol.Done{
		Type:                "done",
		Done:                true,
		AudioCorrectionURL:  correctionURL,
		AudioExplanationURL: explanationURL,
	})
}

// sendOpeningLine delivers the scripted scenario opener in dialogue
// mode. The line is fixed text, not a model call, so a conversation
// always starts the same way for a given scenario and language.
func (h *Handler) sendOpeningLine(ctx context.Context, c *conn, sess *session.Session, scenarioID string) {
	if scenarioID == "" {
		scenarioID = sess.ScenarioID
	}
	sc := h.scenarios.Get(scenarioID)
	line := sc.OpeningLine(sess.LearningLanguage)

	sess.AppendHistory("assistant", line)

	c.sendJSON(protocol.Feedback{
		Correction:         line,
		CorrectionLanguage: sess.LearningLanguage,
	})
	url := h.sendClip(ctx, c, line, sess.LearningLanguage, "correction", false)
	c.sendJSON(protocol.Done{
		Type:               "done",
		Done:               true,
		AudioCorrectionURL: url,
	})
}

// sendClip synthesizes text and sends exactly one message for it: an
// audio reference on success, an error envelope on failure. Returns the
// clip URL, or "" when synthesis failed.
func (h *Handler) sendClip(ctx context.Context, c *conn, text, languageCode, label string, isFinal bool) string {
	url, err := h.tts.Synthesize(ctx, text, languageCode, label)
	if err != nil {
		slog.Error("Speech synthesis failed", "error", err, "label", label, "session_id", c.sessionID)
		c.sendError("Could not synthesize " + label + " audio.")
		return ""
	}
	c.sendJSON(protocol.Audio{
		Type:     "audio",
		AudioURL: url,
		Label:    label,
		IsFinal:  isFinal,
	})
	return url
}

// synthesizeClip is the quiet variant used where the clip URL is
// embedded in a larger message instead of sent as its own frame.
// Failures degrade to an empty URL; quiz text is always on screen too.
func (h *Handler) synthesizeClip(ctx context.Context, text, languageCode, label string) string {
	url, err := h.tts.Synthesize(ctx, text, languageCode, label)
	if err != nil {
		slog.Warn("Speech synthesis failed, sending without audio", "error", err, "label", label)
		return ""
	}
	return url
}
