// Package relay implements the client-facing WebSocket protocol and
// the per-session tutoring state machine: audio accumulation, turn
// orchestration for echo and dialogue modes, and the quiz engine.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/lingo-labs/internal/feedback"
	"github.com/ashureev/lingo-labs/internal/protocol"
	"github.com/ashureev/lingo-labs/internal/scenario"
	"github.com/ashureev/lingo-labs/internal/session"
	"github.com/ashureev/lingo-labs/internal/transcribe"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Transcriber resolves buffered audio to one finalized transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, chunks [][]byte, languageCode string) (transcribe.Result, error)
}

// Generator issues the language-model calls the pipeline needs.
type Generator interface {
	Generate(ctx context.Context, req feedback.Request) (feedback.Feedback, error)
	ScoreAccuracy(ctx context.Context, transcript, reference, learningLang, nativeLang string) (feedback.Scores, error)
	GenerateQuestion(ctx context.Context, learningLang, topic string, asked []string) (feedback.QuizQuestion, error)
	EvaluateAnswer(ctx context.Context, req feedback.EvalRequest) (feedback.Feedback, error)
	Summarize(ctx context.Context, learningLang, nativeLang string, results []feedback.QuestionResult, score, total int) feedback.Assessment
}

// Synthesizer converts text to a hosted audio clip URL.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, languageCode, label string) (string, error)
}

// Timeouts groups the session-level timers.
type Timeouts struct {
	Idle       time.Duration // silent-connection force close
	Turn       time.Duration // per-turn pipeline ceiling
	QuizAnswer time.Duration // per-question auto-skip
}

// Handler upgrades tutoring WebSocket connections and drives sessions.
type Handler struct {
	registry      *session.Registry
	stt           Transcriber
	gen           Generator
	tts           Synthesizer
	scenarios     *scenario.Catalog
	timeouts      Timeouts
	allowedOrigin string
	isDev         bool
}

// NewHandler creates the WebSocket handler.
func NewHandler(registry *session.Registry, stt Transcriber, gen Generator, tts Synthesizer, scenarios *scenario.Catalog, timeouts Timeouts, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		registry:      registry,
		stt:           stt,
		gen:           gen,
		tts:           tts,
		scenarios:     scenarios,
		timeouts:      timeouts,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	sess := sessionFromQuery(r)
	slog.Info("Tutoring connection opened",
		"session_id", sess.ID,
		"mode", sess.Mode,
		"learning_language", sess.LearningLanguage,
		"ip", r.RemoteAddr)

	h.registry.Create(sess)
	defer h.registry.Remove(sess.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(ws, sess.ID)

	// Quiz sessions open with the first question; there is no
	// separate start message in the protocol.
	if sess.Mode == session.ModeQuiz {
		go h.sendNextQuestion(ctx, c, sess)
	}

	h.readLoop(ctx, c, sess)
	slog.Info("Tutoring connection closed", "session_id", sess.ID)
}

// sessionFromQuery builds a session from connection query parameters,
// defaulting missing values rather than rejecting the connection.
func sessionFromQuery(r *http.Request) *session.Session {
	q := r.URL.Query()

	learning := q.Get("learningLanguage")
	if learning == "" {
		learning = "en-US"
	}
	native := q.Get("nativeLanguage")
	if native == "" {
		native = "en-US"
	}
	mode := session.ParseMode(q.Get("mode"))

	sess := session.New(uuid.NewString(), learning, native, mode, q.Get("scenarioId"))

	if mode == session.ModeQuiz {
		count, _ := strconv.Atoi(q.Get("questions"))
		sess.AttachQuiz(session.NewQuiz(count, q.Get("topic")))
	}
	return sess
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop demultiplexes inbound frames until the connection drops or
// goes idle. Binary frames accumulate audio; text frames are control
// messages decoded once at this boundary.
func (h *Handler) readLoop(ctx context.Context, c *conn, sess *session.Session) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, h.timeouts.Idle)
		msgType, data, err := c.ws.Read(readCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				slog.Info("Closing idle connection", "session_id", sess.ID)
				_ = c.ws.Close(websocket.StatusPolicyViolation, "idle timeout")
			case websocket.CloseStatus(err) != -1:
				slog.Debug("WebSocket closed by client", "session_id", sess.ID)
			default:
				slog.Warn("WebSocket read error", "error", err, "session_id", sess.ID)
			}
			return
		}

		// Guard against a message racing session teardown.
		if h.registry.Get(sess.ID) == nil {
			c.sendError("Session not found")
			continue
		}

		if msgType == websocket.MessageBinary {
			if err := sess.AppendAudio(data); err != nil {
				c.sendError("Empty audio chunk received")
			}
			continue
		}

		ctrl, err := protocol.Decode(data)
		if err != nil {
			// Malformed or unrecognized control JSON is non-fatal.
			slog.Debug("Dropping unrecognized control message", "error", err, "session_id", sess.ID)
			continue
		}
		h.dispatch(ctx, c, sess, ctrl)
	}
}

// dispatch routes one decoded control message by session state.
func (h *Handler) dispatch(ctx context.Context, c *conn, sess *session.Session, ctrl protocol.Control) {
	switch msg := ctrl.(type) {
	case protocol.StartConversation:
		if sess.Mode != session.ModeDialogue {
			slog.Debug("start_conversation outside dialogue mode ignored", "session_id", sess.ID)
			return
		}
		go h.sendOpeningLine(ctx, c, sess, msg.Scenario)

	case protocol.EndUtterance:
		if !sess.TryBeginTurn() {
			// A second trigger while a turn is in flight would evaluate
			// the same audio twice; drop it.
			slog.Debug("Turn already in flight, ignoring end signal", "session_id", sess.ID)
			return
		}
		go h.runTurn(ctx, c, sess)

	case protocol.QuizAction:
		h.handleQuizAction(ctx, c, sess, msg.Action)
	}
}
