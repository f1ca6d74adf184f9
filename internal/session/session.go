// Package session holds the per-connection tutoring state: language
// settings, the audio accumulator, conversation history, and the quiz
// sub-record. One Session exists per live WebSocket connection and is
// discarded when the connection closes.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrEmptyChunk is returned when a zero-length audio frame is appended.
var ErrEmptyChunk = errors.New("session: empty audio chunk")

// Mode selects what a processing turn means for a session.
type Mode string

// Interaction modes.
const (
	ModeEcho     Mode = "echo"
	ModeDialogue Mode = "dialogue"
	ModeQuiz     Mode = "quiz"
)

// ParseMode maps a query-string value to a Mode, defaulting to echo.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeDialogue, ModeQuiz:
		return Mode(s)
	default:
		return ModeEcho
	}
}

// maxHistoryEntries bounds the conversation history; oldest entries are
// dropped first.
const maxHistoryEntries = 30

// HistoryEntry is one conversation turn in dialogue mode.
type HistoryEntry struct {
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// Session is the mutable state of one live connection.
type Session struct {
	ID               string
	LearningLanguage string
	NativeLanguage   string
	Mode             Mode
	ScenarioID       string

	mu         sync.Mutex
	audio      [][]byte
	history    []HistoryEntry
	processing bool
	quiz       *Quiz
}

// New creates a session with the given settings. The quiz sub-record is
// attached separately by the connection handler when mode is quiz.
func New(id, learningLang, nativeLang string, mode Mode, scenarioID string) *Session {
	return &Session{
		ID:               id,
		LearningLanguage: learningLang,
		NativeLanguage:   nativeLang,
		Mode:             mode,
		ScenarioID:       scenarioID,
	}
}

// AttachQuiz installs the quiz sub-record at connection setup.
func (s *Session) AttachQuiz(q *Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quiz = q
}

// QuizState returns the quiz sub-record, or nil outside quiz mode and
// after the summary has been delivered.
func (s *Session) QuizState() *Quiz {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiz
}

// ClearQuiz discards the quiz sub-record once the summary is sent; a
// session cannot quiz twice without reconnecting.
func (s *Session) ClearQuiz() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quiz != nil {
		s.quiz.StopAnswerTimer()
		s.quiz = nil
	}
}

// AppendAudio adds one binary frame to the accumulator. Zero-length
// frames are rejected so the client hears about broken capture early.
func (s *Session) AppendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return ErrEmptyChunk
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, chunk)
	return nil
}

// FlushAudio atomically returns the accumulated frames and clears the
// buffer. Called exactly once per attempted turn, on success and on
// failure, so stale audio never mixes into the next turn.
func (s *Session) FlushAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := s.audio
	s.audio = nil
	return chunks
}

// AudioSnapshot returns a copy of the buffered frames without
// clearing them. The turn pipeline snapshots before transcription and
// flushes once the transcription step has consumed the audio.
func (s *Session) AudioSnapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// AudioLen reports the number of buffered frames.
func (s *Session) AudioLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

// TryBeginTurn marks the session as processing. It returns false if a
// turn is already in flight; the caller must then drop the trigger
// rather than queue it.
func (s *Session) TryBeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	return true
}

// EndTurn clears the processing flag. Safe to call on failure paths.
func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
}

// Processing reports whether a turn is currently in flight.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// AppendHistory records one conversation turn, dropping the oldest
// entry once the cap is reached.
func (s *Session) AppendHistory(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, HistoryEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(s.history) > maxHistoryEntries {
		s.history = s.history[len(s.history)-maxHistoryEntries:]
	}
}

// History returns a copy of the conversation history.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}
