// Package protocol defines the WebSocket message vocabulary exchanged
// with tutoring clients. Inbound control frames are decoded once, at
// the connection boundary, into a closed set of message variants.
package protocol

import (
	"encoding/json"
	"errors"
)

// ErrUnknownMessage is returned when an inbound text frame parses as
// JSON but matches none of the recognized control shapes.
var ErrUnknownMessage = errors.New("protocol: unknown message shape")

// Control is the closed set of inbound control messages. Exactly one
// variant is produced per frame by Decode.
type Control interface {
	controlMessage()
}

// StartConversation requests the scripted opening line in dialogue mode.
type StartConversation struct {
	Scenario string
}

// EndUtterance signals the end of the user's utterance and triggers a
// processing turn over the accumulated audio.
type EndUtterance struct{}

// QuizAction is a quiz control verb.
type QuizAction struct {
	Action string
}

// Quiz action verbs.
const (
	ActionSkipQuestion        = "skip_question"
	ActionNextQuestion        = "next_question"
	ActionEndQuiz             = "end_quiz"
	ActionFinalAudioCompleted = "final_audio_completed"
	ActionSkipFinalAudio      = "skip_final_audio"
)

func (StartConversation) controlMessage() {}
func (EndUtterance) controlMessage()      {}
func (QuizAction) controlMessage()        {}

// Decode parses one inbound text frame into a Control variant.
// Malformed JSON is reported as-is; well-formed JSON that matches no
// recognized shape yields ErrUnknownMessage.
func Decode(data []byte) (Control, error) {
	var raw struct {
		Type     string `json:"type"`
		Scenario string `json:"scenario"`
		End      bool   `json:"end"`
		Action   string `json:"action"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch {
	case raw.Type == "start_conversation":
		return StartConversation{Scenario: raw.Scenario}, nil
	case raw.End:
		return EndUtterance{}, nil
	case raw.Action != "":
		switch raw.Action {
		case ActionSkipQuestion, ActionNextQuestion, ActionEndQuiz,
			ActionFinalAudioCompleted, ActionSkipFinalAudio:
			return QuizAction{Action: raw.Action}, nil
		}
		return nil, ErrUnknownMessage
	}
	return nil, ErrUnknownMessage
}

// Transcription reports the finalized transcript for a turn along with
// the accuracy sub-scores computed against it.
type Transcription struct {
	Transcription      string  `json:"transcription"`
	Language           string  `json:"language"`
	Accuracy           float64 `json:"accuracy"`
	PronunciationScore float64 `json:"pronunciationScore"`
	GrammarScore       float64 `json:"grammarScore"`
	FluencyScore       float64 `json:"fluencyScore"`
	AccuracyFeedback   string  `json:"accuracyFeedback"`
}

// Feedback carries the model's correction and explanation text.
type Feedback struct {
	Correction          string `json:"correction"`
	Explanation         string `json:"explanation"`
	CorrectionLanguage  string `json:"correctionLanguage"`
	ExplanationLanguage string `json:"explanationLanguage"`
}

// Audio references one synthesized clip by URL. Audio is never inlined.
type Audio struct {
	Type     string `json:"type"` // always "audio"
	AudioURL string `json:"audioUrl"`
	Label    string `json:"label"`
	IsFinal  bool   `json:"isFinal"`
}

// Done closes out a turn once all stages have completed.
type Done struct {
	Type                string `json:"type"` // always "done"
	Done                bool   `json:"done"`
	AudioCorrectionURL  string `json:"audioCorrectionUrl"`
	AudioExplanationURL string `json:"audioExplanationUrl"`
}

// QuizQuestion delivers one generated question to the client.
type QuizQuestion struct {
	Type             string `json:"type"` // always "quiz_question"
	Question         string `json:"question"`
	QuestionNumber   int    `json:"questionNumber"`
	TotalQuestions   int    `json:"totalQuestions"`
	QuestionAudioURL string `json:"questionAudioUrl"`
}

// QuizFeedback reports the evaluation of one answer.
type QuizFeedback struct {
	Type                string `json:"type"` // always "quiz_feedback"
	IsCorrect           bool   `json:"isCorrect"`
	Feedback            string `json:"feedback"`
	Explanation         string `json:"explanation"`
	FeedbackAudioURL    string `json:"feedbackAudioUrl"`
	ExplanationAudioURL string `json:"explanationAudioUrl"`
	Score               int    `json:"score"`
	CurrentQuestion     int    `json:"currentQuestion"`
	TotalQuestions      int    `json:"totalQuestions"`
	HasMoreQuestions    bool   `json:"hasMoreQuestions"`
}

// QuizQuestionResult is one entry in the summary's question list.
type QuizQuestionResult struct {
	Question      string `json:"question"`
	CorrectAnswer string `json:"correctAnswer"`
	UserAnswer    string `json:"userAnswer"`
}

// QuizDetailedFeedback holds the holistic end-of-quiz assessment.
type QuizDetailedFeedback struct {
	PronunciationScore float64 `json:"pronunciationScore"`
	GrammarScore       float64 `json:"grammarScore"`
	VocabularyScore    float64 `json:"vocabularyScore"`
	ComprehensionScore float64 `json:"comprehensionScore"`
	OverallScore       float64 `json:"overallScore"`
	Strengths          string  `json:"strengths"`
	Weaknesses         string  `json:"weaknesses"`
	Recommendations    string  `json:"recommendations"`
}

// QuizSummary is the final score screen payload. Type is
// "quiz_summary" for a completed quiz and "quiz_ended_early" when the
// client terminated before the last question.
type QuizSummary struct {
	Type             string               `json:"type"`
	Score            int                  `json:"score"`
	TotalQuestions   int                  `json:"totalQuestions"`
	Percentage       float64              `json:"percentage"`
	Summary          string               `json:"summary"`
	SummaryAudioURL  string               `json:"summaryAudioUrl"`
	Questions        []QuizQuestionResult `json:"questions"`
	DetailedFeedback QuizDetailedFeedback `json:"detailedFeedback"`
}

// Error is the single client-visible error envelope.
type Error struct {
	Error string `json:"error"`
}
