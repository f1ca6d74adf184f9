package relay

import (
	"context"
	"log/slog"

	"github.com/ashureev/lingo-labs/internal/feedback"
	"github.com/ashureev/lingo-labs/internal/protocol"
	"github.com/ashureev/lingo-labs/internal/session"
)

// maxEvalAttempts bounds answer-evaluation retries per question before
// the question is closed out as skipped.
const maxEvalAttempts = 2

// sendNextQuestion generates, records, and delivers the next quiz
// question, then arms the answer timer that auto-skips an unanswered
// question.
func (h *Handler) sendNextQuestion(ctx context.Context, c *conn, sess *session.Session) {
	quiz := sess.QuizState()
	if quiz == nil {
		c.sendError("No quiz in progress")
		return
	}
	if quiz.Waiting() {
		slog.Debug("Question already outstanding, not generating another", "session_id", sess.ID)
		return
	}
	if quiz.Exhausted() {
		return
	}

	q, err := h.gen.GenerateQuestion(ctx, sess.LearningLanguage, quiz.Topic(), quiz.AskedQuestions())
	if err != nil {
		slog.Error("Quiz question generation failed", "error", err, "session_id", sess.ID)
		c.sendError("Could not generate the next question. Please try again.")
		return
	}

	number := quiz.PushQuestion(q.Question, q.CorrectAnswer)
	audioURL := h.synthesizeClip(ctx, q.Question, sess.LearningLanguage, "question")

	c.sendJSON(protocol.QuizQuestion{
		Type:             "quiz_question",
		Question:         q.Question,
		QuestionNumber:   number,
		TotalQuestions:   quiz.Total(),
		QuestionAudioURL: audioURL,
	})
	slog.Info("Quiz question sent",
		"session_id", sess.ID,
		"question_number", number,
		"total", quiz.Total())

	quiz.ArmAnswerTimer(h.timeouts.QuizAnswer, func() {
		slog.Info("Quiz answer timed out, skipping question", "session_id", sess.ID)
		h.handleQuizAnswer(ctx, c, sess, "")
	})
}

// handleQuizAnswer completes the outstanding question with the spoken
// transcript. An empty transcript is the skip path, used by the
// skip_question action and the answer timeout. Late or duplicate calls
// are dropped by the quiz state guard.
func (h *Handler) handleQuizAnswer(ctx context.Context, c *conn, sess *session.Session, transcript string) {
	quiz := sess.QuizState()
	if quiz == nil {
		c.sendError("No quiz in progress")
		return
	}
	active, ok := quiz.ActiveQuestion()
	if !ok {
		slog.Debug("Answer received with no outstanding question", "session_id", sess.ID)
		return
	}
	quiz.StopAnswerTimer()

	var fb feedback.Feedback
	var correct bool
	feedbackLang := sess.LearningLanguage
	if transcript == "" {
		// Skip notices are templated in the native language.
		fb = feedback.Feedback{
			Correction: feedback.SkippedMessage(sess.NativeLanguage, active.CorrectAnswer),
		}
		feedbackLang = sess.NativeLanguage
		correct = false
	} else {
		if !quiz.MarkTranscript(transcript) {
			// A repeated finalization of the same audio; the question
			// stays open and the timer goes back on.
			slog.Debug("Duplicate transcript for the active question ignored", "session_id", sess.ID)
			// The turn context is gone by the time the timer fires.
			quiz.ArmAnswerTimer(h.timeouts.QuizAnswer, func() {
				h.handleQuizAnswer(context.WithoutCancel(ctx), c, sess, "")
			})
			return
		}
		var err error
		fb, err = h.gen.EvaluateAnswer(ctx, feedback.EvalRequest{
			Question:         active.Question,
			CorrectAnswer:    active.CorrectAnswer,
			UserAnswer:       transcript,
			LearningLanguage: sess.LearningLanguage,
			NativeLanguage:   sess.NativeLanguage,
		})
		if err != nil {
			slog.Error("Quiz answer evaluation failed", "error", err, "session_id", sess.ID)
			if quiz.RecordEvalFailure() >= maxEvalAttempts {
				// Repeated upstream failures; close the question out as
				// skipped rather than leaving it open indefinitely.
				fb = feedback.Feedback{
					Correction: feedback.SkippedMessage(sess.NativeLanguage, active.CorrectAnswer),
				}
				feedbackLang = sess.NativeLanguage
				correct = false
			} else {
				c.sendError("Could not evaluate your answer. Please try again.")
				quiz.ResetTranscript()
				quiz.ArmAnswerTimer(h.timeouts.QuizAnswer, func() {
					h.handleQuizAnswer(context.WithoutCancel(ctx), c, sess, "")
				})
				return
			}
		} else {
			correct = feedback.ClassifyCorrectness(fb.Correction)
		}
	}

	if !quiz.RecordAnswer(transcript, correct) {
		// The timeout and a real answer raced; the first one won.
		return
	}

	feedbackURL := h.synthesizeClip(ctx, fb.Correction, feedbackLang, "quiz_feedback")
	explanationURL := ""
	if fb.Explanation != "" {
		explanationURL = h.synthesizeClip(ctx, fb.Explanation, sess.NativeLanguage, "quiz_explanation")
	}

	hasMore := !quiz.Exhausted()
	c.sendJSON(protocol.QuizFeedback{
		Type:                "quiz_feedback",
		IsCorrect:           correct,
		Feedback:            fb.Correction,
		Explanation:         fb.Explanation,
		FeedbackAudioURL:    feedbackURL,
		ExplanationAudioURL: explanationURL,
		Score:               quiz.Score(),
		CurrentQuestion:     quiz.Current(),
		TotalQuestions:      quiz.Total(),
		HasMoreQuestions:    hasMore,
	})

	if !hasMore {
		// The spoken wrap-up goes out first; the score screen follows
		// once the client confirms or skips the final audio.
		sentence := feedback.SummarySentence(sess.NativeLanguage, quiz.Score(), quiz.Total())
		h.sendClip(ctx, c, sentence, sess.NativeLanguage, "summary", true)
	}
}

// handleQuizAction routes one quiz control verb against current state.
// Verbs that do not match the state are logged and dropped rather than
// erroring, since timer races make them routine.
func (h *Handler) handleQuizAction(ctx context.Context, c *conn, sess *session.Session, action string) {
	quiz := sess.QuizState()
	if quiz == nil {
		c.sendError("No quiz in progress")
		return
	}

	switch action {
	case protocol.ActionSkipQuestion:
		if !quiz.Waiting() {
			slog.Debug("skip_question with no outstanding question", "session_id", sess.ID)
			return
		}
		go h.handleQuizAnswer(ctx, c, sess, "")

	case protocol.ActionNextQuestion:
		if quiz.Waiting() || quiz.Exhausted() {
			slog.Debug("next_question in wrong state", "session_id", sess.ID,
				"waiting", quiz.Waiting(), "exhausted", quiz.Exhausted())
			return
		}
		go h.sendNextQuestion(ctx, c, sess)

	case protocol.ActionEndQuiz:
		if sess.Processing() {
			// Cancellation applies between turns only; an in-flight
			// answer evaluation still owns the quiz state.
			slog.Debug("end_quiz during an active turn ignored", "session_id", sess.ID)
			return
		}
		quiz.StopAnswerTimer()
		go h.sendSummary(ctx, c, sess, !quiz.Exhausted())

	case protocol.ActionFinalAudioCompleted, protocol.ActionSkipFinalAudio:
		if !quiz.Exhausted() {
			slog.Debug("final audio action before quiz end", "session_id", sess.ID, "action", action)
			return
		}
		go h.sendSummary(ctx, c, sess, false)
	}
}

// sendSummary delivers the end-of-quiz score screen and discards the
// quiz state, completed or ended early.
func (h *Handler) sendSummary(ctx context.Context, c *conn, sess *session.Session, endedEarly bool) {
	quiz := sess.QuizState()
	if quiz == nil {
		return
	}

	results := quiz.Results()
	score, total := quiz.Score(), quiz.Total()

	// An early termination can leave the last question unanswered; the
	// summary covers completed questions only.
	questionList := make([]protocol.QuizQuestionResult, 0, len(results))
	assessInput := make([]feedback.QuestionResult, 0, len(results))
	for _, r := range results {
		if !r.Answered {
			continue
		}
		questionList = append(questionList, protocol.QuizQuestionResult{
			Question:      r.Question,
			CorrectAnswer: r.CorrectAnswer,
			UserAnswer:    r.UserAnswer,
		})
		assessInput = append(assessInput, feedback.QuestionResult{
			Question:      r.Question,
			CorrectAnswer: r.CorrectAnswer,
			UserAnswer:    r.UserAnswer,
			Correct:       r.Correct,
		})
	}

	assessment := h.gen.Summarize(ctx, sess.LearningLanguage, sess.NativeLanguage, assessInput, score, total)
	sentence := feedback.SummarySentence(sess.NativeLanguage, score, total)
	summaryAudioURL := h.synthesizeClip(ctx, sentence, sess.NativeLanguage, "summary")

	percentage := 0.0
	if total > 0 {
		percentage = float64(score) / float64(total) * 100
	}

	msgType := "quiz_summary"
	if endedEarly {
		msgType = "quiz_ended_early"
	}
	c.sendJSON(protocol.QuizSummary{
		Type:            msgType,
		Score:           score,
		TotalQuestions:  total,
		Percentage:      percentage,
		Summary:         sentence,
		SummaryAudioURL: summaryAudioURL,
		Questions:       questionList,
		DetailedFeedback: protocol.QuizDetailedFeedback{
			PronunciationScore: assessment.PronunciationScore,
			GrammarScore:       assessment.GrammarScore,
			VocabularyScore:    assessment.VocabularyScore,
			ComprehensionScore: assessment.ComprehensionScore,
			OverallScore:       assessment.OverallScore,
			Strengths:          assessment.Strengths,
			Weaknesses:         assessment.Weaknesses,
			Recommendations:    assessment.Recommendations,
		},
	})
	slog.Info("Quiz summary sent",
		"session_id", sess.ID,
		"score", score,
		"total", total,
		"ended_early", endedEarly)

	sess.ClearQuiz()
}
