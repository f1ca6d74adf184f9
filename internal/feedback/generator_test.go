package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeGenerator returns a Generator whose model calls are scripted.
func fakeGenerator(invoke invokeFunc) *Generator {
	return &Generator{
		invoke: invoke,
		pacer:  NewPacer(time.Millisecond, 1000),
	}
}

func respond(raw string) invokeFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		return raw, nil
	}
}

func TestGenerateEchoFeedback(t *testing.T) {
	var prompt string
	g := fakeGenerator(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return `{"correction":"Yo fui al mercado.","explanation":"Use the preterite for completed actions."}`, nil
	})

	fb, err := g.Generate(context.Background(), Request{
		Text:             "Yo iba al mercado ayer una vez.",
		LearningLanguage: "es-ES",
		NativeLanguage:   "en-US",
		Mode:             ModeEcho,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if fb.Correction != "Yo fui al mercado." {
		t.Errorf("Correction = %q", fb.Correction)
	}
	if !strings.Contains(prompt, "Yo iba al mercado ayer una vez.") {
		t.Error("Prompt does not contain the transcript")
	}
}

func TestGenerateDialogueIncludesHistoryAndScenario(t *testing.T) {
	var prompt string
	g := fakeGenerator(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return `{"correction":"Perfecto, ¿algo más?","explanation":""}`, nil
	})

	_, err := g.Generate(context.Background(), Request{
		Text:             "Un café con leche, por favor.",
		LearningLanguage: "es-ES",
		NativeLanguage:   "en-US",
		Mode:             ModeDialogue,
		ScenarioContext:  "Role-play scenario: you are a barista.",
		History: []Turn{
			{Role: "assistant", Content: "¡Hola! ¿Qué te gustaría tomar?"},
			{Role: "user", Content: "Hola, buenos días."},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(prompt, "barista") {
		t.Error("Prompt missing scenario context")
	}
	if !strings.Contains(prompt, "Hola, buenos días.") {
		t.Error("Prompt missing conversation history")
	}
}

func TestGenerateHistoryTruncation(t *testing.T) {
	var prompt string
	g := fakeGenerator(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return `{"correction":"ok","explanation":""}`, nil
	})

	history := make([]Turn, maxHistoryTurns+4)
	for i := range history {
		history[i] = Turn{Role: "user", Content: "entry-" + string(rune('a'+i))}
	}
	_, err := g.Generate(context.Background(), Request{
		Text:             "hola",
		LearningLanguage: "es-ES",
		NativeLanguage:   "en-US",
		Mode:             ModeDialogue,
		History:          history,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(prompt, "entry-a") {
		t.Error("Oldest history entry should have been truncated from the prompt")
	}
	if !strings.Contains(prompt, "entry-"+string(rune('a'+maxHistoryTurns+3))) {
		t.Error("Newest history entry missing from the prompt")
	}
}

func TestGenerateFallbackOnGarbage(t *testing.T) {
	g := fakeGenerator(respond("I am not JSON at all"))

	fb, err := g.Generate(context.Background(), Request{
		Text:             "hola",
		LearningLanguage: "es-ES",
		NativeLanguage:   "es-MX",
		Mode:             ModeEcho,
	})
	if err != nil {
		t.Fatalf("Generate should not fail on unparseable output: %v", err)
	}
	if fb.Correction != "hola" {
		t.Errorf("Fallback correction = %q, want the original text", fb.Correction)
	}
	if fb.Explanation != retryMessages["es"] {
		t.Errorf("Fallback explanation = %q, want the Spanish retry message", fb.Explanation)
	}
}

func TestGeneratePropagatesTransportError(t *testing.T) {
	transport := errors.New("rpc error: unavailable")
	g := fakeGenerator(func(ctx context.Context, p string) (string, error) {
		return "", transport
	})

	_, err := g.Generate(context.Background(), Request{
		Text: "hola", LearningLanguage: "es-ES", NativeLanguage: "en-US", Mode: ModeEcho,
	})
	if !errors.Is(err, transport) {
		t.Errorf("Error should wrap the transport failure, got %v", err)
	}
}

func TestGenerateRejectsInvalidMode(t *testing.T) {
	g := fakeGenerator(respond("{}"))

	_, err := g.Generate(context.Background(), Request{
		Text: "hi", LearningLanguage: "en-US", NativeLanguage: "en-US", Mode: "karaoke",
	})
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("Invalid mode error = %v", err)
	}
}

func TestUnmarshalModelJSONTolerance(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "clean JSON", raw: `{"correction":"a","explanation":"b"}`},
		{name: "markdown fenced", raw: "```json\n{\"correction\":\"a\",\"explanation\":\"b\"}\n```"},
		{name: "trailing comma", raw: `{"correction":"a","explanation":"b",}`},
		{name: "single quotes", raw: `{'correction':'a','explanation':'b'}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fb Feedback
			if err := unmarshalModelJSON(tt.raw, &fb); err != nil {
				t.Fatalf("unmarshalModelJSON: %v", err)
			}
			if fb.Correction != "a" || fb.Explanation != "b" {
				t.Errorf("Parsed %+v", fb)
			}
		})
	}
}

func TestScoreAccuracyClampsScores(t *testing.T) {
	g := fakeGenerator(respond(`{"accuracy":140,"pronunciationScore":-10,"grammarScore":85,"fluencyScore":90,"feedback":"Nice work."}`))

	s, err := g.ScoreAccuracy(context.Background(), "hola", "hola", "es-ES", "en-US")
	if err != nil {
		t.Fatalf("ScoreAccuracy: %v", err)
	}
	if s.Accuracy != 100 {
		t.Errorf("Accuracy = %v, want clamped 100", s.Accuracy)
	}
	if s.PronunciationScore != 0 {
		t.Errorf("PronunciationScore = %v, want clamped 0", s.PronunciationScore)
	}
	if s.GrammarScore != 85 || s.FluencyScore != 90 {
		t.Errorf("Scores = %+v", s)
	}
}

func TestScoreAccuracyNeutralOnGarbage(t *testing.T) {
	g := fakeGenerator(respond("not json"))

	s, err := g.ScoreAccuracy(context.Background(), "hola", "hola", "es-ES", "en-US")
	if err != nil {
		t.Fatalf("ScoreAccuracy should not fail on unparseable output: %v", err)
	}
	if s.Accuracy != 50 || s.PronunciationScore != 50 || s.GrammarScore != 50 || s.FluencyScore != 50 {
		t.Errorf("Neutral scores = %+v, want all 50", s)
	}
}
