package session

import (
	"sync"
	"time"
)

// MaxQuizQuestions caps a quiz regardless of what the client requests.
const MaxQuizQuestions = 20

// QuizQuestion is one asked question and, once evaluated, its outcome.
type QuizQuestion struct {
	Question      string
	CorrectAnswer string
	UserAnswer    string
	Answered      bool
	Correct       bool
}

// Quiz is the bounded question/answer/scoring state layered on a
// session in quiz mode. currentQuestion only advances after a
// completed or skipped answer; isWaitingForAnswer is true exactly
// between question delivery and answer receipt.
type Quiz struct {
	mu        sync.Mutex
	topic     string
	total     int
	current   int
	score     int
	waiting   bool
	questions []QuizQuestion

	// Per-question evaluation tracking, reset when the next question is
	// pushed: the transcript already submitted for the active question
	// and the number of failed evaluation attempts against it.
	lastTranscript string
	evalFailures   int

	answerTimer *time.Timer
}

// NewQuiz creates quiz state for the requested question count and
// topic. Counts outside [1, MaxQuizQuestions] are clamped.
func NewQuiz(total int, topic string) *Quiz {
	if total < 1 {
		total = 5
	}
	if total > MaxQuizQuestions {
		total = MaxQuizQuestions
	}
	return &Quiz{topic: topic, total: total}
}

// Topic returns the quiz topic ("" for general).
func (q *Quiz) Topic() string { return q.topic }

// Total returns the bounded question count.
func (q *Quiz) Total() int { return q.total }

// Current returns the number of completed (answered or skipped)
// questions, which is also the zero-based index of the active one.
func (q *Quiz) Current() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Score returns the running number of correct answers.
func (q *Quiz) Score() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.score
}

// Waiting reports whether a question is out and unanswered.
func (q *Quiz) Waiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting
}

// PushQuestion records a newly asked question and enters the waiting
// state. The per-question transcript and failure tracking reset here.
// It returns the 1-based question number for the client.
func (q *Quiz) PushQuestion(question, correctAnswer string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.questions = append(q.questions, QuizQuestion{
		Question:      question,
		CorrectAnswer: correctAnswer,
	})
	q.waiting = true
	q.lastTranscript = ""
	q.evalFailures = 0
	return len(q.questions)
}

// MarkTranscript records the transcript about to be evaluated for the
// active question. It returns false when the transcript duplicates the
// one already submitted, so a repeated finalization of the same audio
// cannot be evaluated twice for one question.
func (q *Quiz) MarkTranscript(transcript string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if transcript != "" && transcript == q.lastTranscript {
		return false
	}
	q.lastTranscript = transcript
	return true
}

// ResetTranscript forgets the submitted transcript after a failed
// evaluation attempt, so the learner may repeat the same answer.
func (q *Quiz) ResetTranscript() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastTranscript = ""
}

// RecordEvalFailure counts one failed evaluation attempt for the
// active question and returns the running total.
func (q *Quiz) RecordEvalFailure() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evalFailures++
	return q.evalFailures
}

// ActiveQuestion returns the question currently awaiting an answer.
// ok is false when no question is outstanding.
func (q *Quiz) ActiveQuestion() (QuizQuestion, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.waiting || len(q.questions) == 0 {
		return QuizQuestion{}, false
	}
	return q.questions[len(q.questions)-1], true
}

// RecordAnswer completes the active question: it stores the user's
// answer, updates the score, advances currentQuestion, and leaves the
// waiting state. Returns false if no question was outstanding, so a
// late timeout cannot double-complete a question.
func (q *Quiz) RecordAnswer(userAnswer string, correct bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.waiting || len(q.questions) == 0 {
		return false
	}
	last := &q.questions[len(q.questions)-1]
	last.UserAnswer = userAnswer
	last.Answered = true
	last.Correct = correct
	if correct {
		q.score++
	}
	q.current++
	q.waiting = false
	return true
}

// Exhausted reports whether every question has been asked and completed.
func (q *Quiz) Exhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current >= q.total
}

// AskedQuestions returns the texts of all questions asked so far, used
// to forbid repeats in the generation prompt.
func (q *Quiz) AskedQuestions() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.questions))
	for _, qq := range q.questions {
		out = append(out, qq.Question)
	}
	return out
}

// Results returns a copy of all question records.
func (q *Quiz) Results() []QuizQuestion {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QuizQuestion, len(q.questions))
	copy(out, q.questions)
	return out
}

// ArmAnswerTimer schedules fn after d, replacing any previous timer.
// The timer is the auto-skip backstop for an unanswered question.
func (q *Quiz) ArmAnswerTimer(d time.Duration, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.answerTimer != nil {
		q.answerTimer.Stop()
	}
	q.answerTimer = time.AfterFunc(d, fn)
}

// StopAnswerTimer cancels the pending auto-skip, if any. Called
// whenever the state the timer guards changes for another reason.
func (q *Quiz) StopAnswerTimer() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.answerTimer != nil {
		q.answerTimer.Stop()
		q.answerTimer = nil
	}
}
