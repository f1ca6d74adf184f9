package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewQuizClampsQuestionCount(t *testing.T) {
	tests := []struct {
		input int
		want  int
	}{
		{0, 5},
		{-3, 5},
		{1, 1},
		{10, 10},
		{MaxQuizQuestions, MaxQuizQuestions},
		{MaxQuizQuestions + 50, MaxQuizQuestions},
	}
	for _, tt := range tests {
		if got := NewQuiz(tt.input, "").Total(); got != tt.want {
			t.Errorf("NewQuiz(%d).Total() = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestQuizAnswerFlow(t *testing.T) {
	q := NewQuiz(2, "food")

	if q.Waiting() {
		t.Fatal("New quiz should not be waiting for an answer")
	}
	if got := q.PushQuestion("¿Qué es esto?", "Es una manzana."); got != 1 {
		t.Fatalf("First PushQuestion number = %d, want 1", got)
	}
	if !q.Waiting() {
		t.Fatal("Quiz should be waiting after a question is pushed")
	}

	active, ok := q.ActiveQuestion()
	if !ok || active.Question != "¿Qué es esto?" {
		t.Fatalf("ActiveQuestion = %+v, %v", active, ok)
	}

	if !q.RecordAnswer("Es una manzana.", true) {
		t.Fatal("RecordAnswer should succeed for the outstanding question")
	}
	if q.Score() != 1 || q.Current() != 1 {
		t.Errorf("After correct answer: score=%d current=%d, want 1 and 1", q.Score(), q.Current())
	}
	if q.Waiting() {
		t.Error("Quiz should not be waiting after the answer is recorded")
	}
	if q.Exhausted() {
		t.Error("Quiz with one of two questions answered should not be exhausted")
	}

	q.PushQuestion("¿Cómo te llamas?", "Me llamo Ana.")
	if !q.RecordAnswer("", false) {
		t.Fatal("Skip should be recordable")
	}
	if q.Score() != 1 {
		t.Errorf("Skipped question changed score to %d", q.Score())
	}
	if !q.Exhausted() {
		t.Error("Quiz should be exhausted after both questions complete")
	}
}

func TestRecordAnswerRejectsDoubleCompletion(t *testing.T) {
	q := NewQuiz(3, "")
	q.PushQuestion("Q1", "A1")

	if !q.RecordAnswer("answer", true) {
		t.Fatal("First RecordAnswer should succeed")
	}
	// A late auto-skip timeout racing the real answer must lose.
	if q.RecordAnswer("", false) {
		t.Error("Second RecordAnswer for the same question should be rejected")
	}
	if q.Current() != 1 {
		t.Errorf("current = %d after double completion attempt, want 1", q.Current())
	}
}

func TestMarkTranscriptRejectsDuplicate(t *testing.T) {
	q := NewQuiz(2, "")
	q.PushQuestion("Q1", "A1")

	if !q.MarkTranscript("la respuesta") {
		t.Fatal("First transcript for a question should be accepted")
	}
	if q.MarkTranscript("la respuesta") {
		t.Error("Identical transcript for the same question should be rejected")
	}
	if !q.MarkTranscript("otra respuesta") {
		t.Error("A different transcript should be accepted")
	}

	// A failed evaluation forgets the submission so the learner can
	// repeat the same answer.
	q.ResetTranscript()
	if !q.MarkTranscript("otra respuesta") {
		t.Error("Transcript should be accepted again after a reset")
	}

	// The next question starts clean.
	q.RecordAnswer("otra respuesta", true)
	q.PushQuestion("Q2", "A2")
	if !q.MarkTranscript("la respuesta") {
		t.Error("A new question should not inherit the previous dedup state")
	}
}

func TestRecordEvalFailureResetsPerQuestion(t *testing.T) {
	q := NewQuiz(2, "")
	q.PushQuestion("Q1", "A1")

	if got := q.RecordEvalFailure(); got != 1 {
		t.Errorf("First failure count = %d, want 1", got)
	}
	if got := q.RecordEvalFailure(); got != 2 {
		t.Errorf("Second failure count = %d, want 2", got)
	}

	q.RecordAnswer("", false)
	q.PushQuestion("Q2", "A2")
	if got := q.RecordEvalFailure(); got != 1 {
		t.Errorf("Failure count after a new question = %d, want 1", got)
	}
}

func TestRecordAnswerWithoutQuestion(t *testing.T) {
	q := NewQuiz(3, "")
	if q.RecordAnswer("hello", true) {
		t.Error("RecordAnswer with no outstanding question should be rejected")
	}
}

func TestAskedQuestionsAndResults(t *testing.T) {
	q := NewQuiz(3, "")
	q.PushQuestion("Q1", "A1")
	q.RecordAnswer("wrong", false)
	q.PushQuestion("Q2", "A2")
	q.RecordAnswer("A2", true)

	asked := q.AskedQuestions()
	if len(asked) != 2 || asked[0] != "Q1" || asked[1] != "Q2" {
		t.Errorf("AskedQuestions = %v", asked)
	}

	results := q.Results()
	if len(results) != 2 {
		t.Fatalf("Results length = %d, want 2", len(results))
	}
	if results[0].Correct || !results[1].Correct {
		t.Errorf("Result correctness = %v, %v; want false, true", results[0].Correct, results[1].Correct)
	}
}

func TestAnswerTimerStopPreventsFiring(t *testing.T) {
	q := NewQuiz(1, "")
	var fired atomic.Bool

	q.ArmAnswerTimer(20*time.Millisecond, func() { fired.Store(true) })
	q.StopAnswerTimer()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("Stopped timer should not fire")
	}
}

func TestAnswerTimerReplacesPrevious(t *testing.T) {
	q := NewQuiz(1, "")
	var first, second atomic.Bool

	q.ArmAnswerTimer(20*time.Millisecond, func() { first.Store(true) })
	q.ArmAnswerTimer(20*time.Millisecond, func() { second.Store(true) })

	time.Sleep(60 * time.Millisecond)
	if first.Load() {
		t.Error("Replaced timer should not fire")
	}
	if !second.Load() {
		t.Error("Replacement timer should fire")
	}
}
