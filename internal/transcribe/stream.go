package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// eventKind discriminates upstream recognizer events.
type eventKind int

const (
	eventResult eventKind = iota
	eventUtteranceEnd
	eventError
)

// event is one recognizer message, normalized.
type event struct {
	Kind         eventKind
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
	Err          error
}

// streamSession is one open recognizer stream. The live implementation
// speaks the provider's WebSocket protocol; tests substitute fakes.
type streamSession interface {
	// SendAudio writes one binary PCM frame upstream.
	SendAudio(chunk []byte) error
	// RequestClose asks the upstream to flush and finish the stream.
	RequestClose() error
	// Events delivers normalized transcript events until the stream ends.
	Events() <-chan event
	// Close tears the connection down.
	Close() error
}

// liveDialer returns a dialFunc that opens a recognizer WebSocket with
// the audio parameters fixed by the capture contract: 16-bit linear
// PCM, mono, at the configured sample rate.
func liveDialer(endpoint, apiKey string, sampleRate int) dialFunc {
	return func(ctx context.Context, languageCode string) (streamSession, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("recognizer url: %w", err)
		}
		q := u.Query()
		q.Set("encoding", "linear16")
		q.Set("sample_rate", strconv.Itoa(sampleRate))
		q.Set("channels", "1")
		q.Set("language", languageCode)
		q.Set("interim_results", "true")
		q.Set("vad_events", "true")
		q.Set("utterance_end_ms", "1000")
		u.RawQuery = q.Encode()

		header := http.Header{}
		header.Set("Authorization", "Token "+apiKey)

		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("recognizer connect failed: %w, status=%s", err, resp.Status)
			}
			return nil, fmt.Errorf("recognizer connect failed: %w", err)
		}

		s := &liveSession{
			conn:   conn,
			events: make(chan event, 32),
			done:   make(chan struct{}),
		}
		go s.readLoop()
		return s, nil
	}
}

// liveSession adapts the provider WebSocket to streamSession.
type liveSession struct {
	conn      *websocket.Conn
	events    chan event
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// emit delivers an event unless the session has been closed; a closed
// session has no reader, so blocking here would leak the read loop.
func (s *liveSession) emit(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *liveSession) SendAudio(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

func (s *liveSession) RequestClose() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
}

func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}

func (s *liveSession) Events() <-chan event {
	return s.events
}

// recognizerMessage is the provider's transcript event shape.
type recognizerMessage struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *liveSession) readLoop() {
	defer close(s.events)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.emit(event{Kind: eventError, Err: fmt.Errorf("recognizer read: %w", err)})
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg recognizerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "Results":
			var transcript string
			if len(msg.Channel.Alternatives) > 0 {
				transcript = msg.Channel.Alternatives[0].Transcript
			}
			if !s.emit(event{
				Kind:         eventResult,
				Transcript:   transcript,
				IsFinal:      msg.IsFinal,
				SpeechFinal:  msg.SpeechFinal,
				FromFinalize: msg.FromFinalize,
			}) {
				return
			}
		case "UtteranceEnd":
			if !s.emit(event{Kind: eventUtteranceEnd}) {
				return
			}
		case "Error":
			s.emit(event{Kind: eventError, Err: fmt.Errorf("recognizer error: %s", string(data))})
			return
		}
	}
}
