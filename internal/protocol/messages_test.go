package protocol

import (
	"errors"
	"testing"
)

func TestDecodeControlMessages(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Control
	}{
		{
			name:  "start conversation with scenario",
			input: `{"type":"start_conversation","scenario":"cafe"}`,
			want:  StartConversation{Scenario: "cafe"},
		},
		{
			name:  "start conversation without scenario",
			input: `{"type":"start_conversation"}`,
			want:  StartConversation{},
		},
		{
			name:  "end of utterance",
			input: `{"end":true}`,
			want:  EndUtterance{},
		},
		{
			name:  "skip question action",
			input: `{"action":"skip_question"}`,
			want:  QuizAction{Action: ActionSkipQuestion},
		},
		{
			name:  "next question action",
			input: `{"action":"next_question"}`,
			want:  QuizAction{Action: ActionNextQuestion},
		},
		{
			name:  "end quiz action",
			input: `{"action":"end_quiz"}`,
			want:  QuizAction{Action: ActionEndQuiz},
		},
		{
			name:  "final audio completed action",
			input: `{"action":"final_audio_completed"}`,
			want:  QuizAction{Action: ActionFinalAudioCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if err != nil {
				t.Fatalf("Decode(%s) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Decode(%s) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeRejectsUnknownShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty object", input: `{}`},
		{name: "end false", input: `{"end":false}`},
		{name: "unknown action", input: `{"action":"restart_quiz"}`},
		{name: "unknown type", input: `{"type":"ping"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			if !errors.Is(err, ErrUnknownMessage) {
				t.Errorf("Decode(%s) error = %v, want ErrUnknownMessage", tt.input, err)
			}
		})
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"end":tru`))
	if err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
	if errors.Is(err, ErrUnknownMessage) {
		t.Error("Malformed JSON should not be reported as unknown shape")
	}
}
