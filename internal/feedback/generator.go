// Package feedback turns transcripts into pedagogical feedback through
// the language model: corrections, dialogue replies, quiz questions
// and evaluations, accuracy scores, and end-of-quiz summaries. Model
// output is JSON-shaped text; parsing is tolerant, and malformed
// output degrades to templated fallbacks instead of failing the turn.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"google.golang.org/genai"
)

// ErrInvalidMode is returned for a mode outside the recognized set.
var ErrInvalidMode = errors.New("feedback: invalid mode")

// Recognized interaction modes.
const (
	ModeEcho     = "echo"
	ModeDialogue = "dialogue"
	ModeQuiz     = "quiz"
)

// maxHistoryTurns bounds how much dialogue history is folded into the
// prompt; older turns are dropped to keep prompt size flat.
const maxHistoryTurns = 8

// Turn is one prior conversation exchange included in dialogue prompts.
type Turn struct {
	Role    string
	Content string
}

// Request carries everything the generator needs for one feedback call.
type Request struct {
	Text             string
	LearningLanguage string
	NativeLanguage   string
	Mode             string
	ScenarioContext  string // dialogue only, "" otherwise
	History          []Turn // dialogue only
}

// Feedback is the structured result of one generation call.
type Feedback struct {
	Correction  string `json:"correction"`
	Explanation string `json:"explanation"`
}

// invokeFunc issues one raw prompt and returns the model's text.
type invokeFunc func(ctx context.Context, prompt string) (string, error)

// Generator issues paced language-model calls.
type Generator struct {
	invoke invokeFunc
	pacer  *Pacer
}

// New creates a Generator backed by the Gemini API.
func New(ctx context.Context, apiKey, model string, pacer *Pacer) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Generator{
		invoke: func(ctx context.Context, prompt string) (string, error) {
			cfg := &genai.GenerateContentConfig{
				ResponseMIMEType: "application/json",
			}
			resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
			if err != nil {
				return "", err
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				return "", errors.New("no candidates")
			}
			var sb strings.Builder
			for _, p := range resp.Candidates[0].Content.Parts {
				if p.Text != "" {
					sb.WriteString(p.Text)
				}
			}
			return sb.String(), nil
		},
		pacer: pacer,
	}, nil
}

// call runs one paced model invocation.
func (g *Generator) call(ctx context.Context, prompt string) (string, error) {
	if err := g.pacer.Acquire(ctx); err != nil {
		return "", err
	}
	defer g.pacer.Release()
	return g.invoke(ctx, prompt)
}

// Generate produces correction/explanation feedback for one transcript
// according to the session mode's prompt contract. Transport errors
// are returned; malformed model output is replaced with a templated
// retry message in the learner's native language.
func (g *Generator) Generate(ctx context.Context, req Request) (Feedback, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Feedback{}, err
	}

	raw, err := g.call(ctx, prompt)
	if err != nil {
		return Feedback{}, fmt.Errorf("model call: %w", err)
	}

	var fb Feedback
	if err := unmarshalModelJSON(raw, &fb); err != nil || (fb.Correction == "" && fb.Explanation == "") {
		slog.Warn("Model returned unparseable feedback, using fallback", "error", err, "mode", req.Mode)
		return Feedback{
			Correction:  req.Text,
			Explanation: retryMessage(req.NativeLanguage),
		}, nil
	}
	return fb, nil
}

func buildPrompt(req Request) (string, error) {
	switch req.Mode {
	case ModeEcho:
		return echoPrompt(req), nil
	case ModeDialogue:
		return dialoguePrompt(req), nil
	case ModeQuiz:
		// Quiz evaluation uses EvaluateAnswer; a bare Generate call in
		// quiz mode follows the echo contract for the spoken answer.
		return echoPrompt(req), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
}

func echoPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a language tutor. The student is learning %s; their native language is %s.\n", req.LearningLanguage, req.NativeLanguage)
	fmt.Fprintf(&sb, "The student said: %q\n", req.Text)
	sb.WriteString("Return a JSON object with exactly these keys:\n")
	fmt.Fprintf(&sb, "- \"correction\": the corrected sentence in %s, or the original sentence unchanged if it is already correct.\n", req.LearningLanguage)
	fmt.Fprintf(&sb, "- \"explanation\": a short explanation of the mistakes in %s. Use an empty string if there were none.\n", req.NativeLanguage)
	return sb.String()
}

func dialoguePrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a conversation partner helping a student practice %s. Their native language is %s.\n", req.LearningLanguage, req.NativeLanguage)
	if req.ScenarioContext != "" {
		sb.WriteString(req.ScenarioContext)
		sb.WriteString("\n")
	}
	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
		}
	}
	fmt.Fprintf(&sb, "The student just said: %q\n", req.Text)
	sb.WriteString("Return a JSON object with exactly these keys:\n")
	fmt.Fprintf(&sb, "- \"correction\": your natural, in-character reply in %s that keeps the conversation going.\n", req.LearningLanguage)
	fmt.Fprintf(&sb, "- \"explanation\": only if the student made a serious grammar mistake, a brief note in %s; otherwise an empty string.\n", req.NativeLanguage)
	return sb.String()
}

// unmarshalModelJSON unmarshals model output, attempting a repair pass
// when the payload is close-to-JSON (trailing commas, markdown fences).
func unmarshalModelJSON(raw string, v any) error {
	raw = stripCodeFences(raw)
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	fixed, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

// stripCodeFences removes a surrounding markdown code block, which the
// model emits despite the JSON response mime type being set.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
