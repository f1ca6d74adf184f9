package session

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestAppendAudioRejectsEmptyChunk(t *testing.T) {
	s := New("s1", "es-ES", "en-US", ModeEcho, "")

	if err := s.AppendAudio(nil); !errors.Is(err, ErrEmptyChunk) {
		t.Errorf("AppendAudio(nil) error = %v, want ErrEmptyChunk", err)
	}
	if err := s.AppendAudio([]byte{}); !errors.Is(err, ErrEmptyChunk) {
		t.Errorf("AppendAudio(empty) error = %v, want ErrEmptyChunk", err)
	}
	if s.AudioLen() != 0 {
		t.Errorf("Expected no buffered frames, got %d", s.AudioLen())
	}
}

func TestFlushAudioClearsBuffer(t *testing.T) {
	s := New("s1", "es-ES", "en-US", ModeEcho, "")
	for i := 0; i < 3; i++ {
		if err := s.AppendAudio([]byte{byte(i)}); err != nil {
			t.Fatalf("AppendAudio: %v", err)
		}
	}

	chunks := s.FlushAudio()
	if len(chunks) != 3 {
		t.Fatalf("FlushAudio returned %d chunks, want 3", len(chunks))
	}
	if s.AudioLen() != 0 {
		t.Errorf("Buffer not cleared after flush, %d frames remain", s.AudioLen())
	}
	if got := s.FlushAudio(); len(got) != 0 {
		t.Errorf("Second flush returned %d chunks, want 0", len(got))
	}
}

func TestAudioSnapshotDoesNotClear(t *testing.T) {
	s := New("s1", "es-ES", "en-US", ModeEcho, "")
	_ = s.AppendAudio([]byte("one"))
	_ = s.AppendAudio([]byte("two"))

	snap := s.AudioSnapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot has %d chunks, want 2", len(snap))
	}
	if s.AudioLen() != 2 {
		t.Errorf("Snapshot cleared the buffer, %d frames remain", s.AudioLen())
	}
}

func TestTryBeginTurnGate(t *testing.T) {
	s := New("s1", "es-ES", "en-US", ModeEcho, "")

	if !s.TryBeginTurn() {
		t.Fatal("First TryBeginTurn should succeed")
	}
	if s.TryBeginTurn() {
		t.Error("Second TryBeginTurn should fail while a turn is in flight")
	}
	s.EndTurn()
	if !s.TryBeginTurn() {
		t.Error("TryBeginTurn should succeed after EndTurn")
	}
}

func TestHistoryCapDropsOldest(t *testing.T) {
	s := New("s1", "es-ES", "en-US", ModeDialogue, "cafe")
	for i := 0; i < maxHistoryEntries+5; i++ {
		s.AppendHistory("user", "turn "+strconv.Itoa(i))
	}

	h := s.History()
	if len(h) != maxHistoryEntries {
		t.Fatalf("History length = %d, want %d", len(h), maxHistoryEntries)
	}
	if h[0].Content != "turn 5" {
		t.Errorf("Oldest surviving entry = %q, want %q", h[0].Content, "turn 5")
	}
}

func TestParseModeDefaultsToEcho(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"echo", ModeEcho},
		{"dialogue", ModeDialogue},
		{"quiz", ModeQuiz},
		{"", ModeEcho},
		{"karaoke", ModeEcho},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.input); got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSessionConcurrentAccess(t *testing.T) {
	s := New("s1", "es-ES", "en-US", ModeDialogue, "")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = s.AppendAudio([]byte{1})
				s.AppendHistory("user", "x")
				_ = s.AudioSnapshot()
				_ = s.History()
				if s.TryBeginTurn() {
					s.EndTurn()
				}
			}
		}()
	}
	wg.Wait()

	if s.AudioLen() != 2000 {
		t.Errorf("Expected 2000 buffered frames, got %d", s.AudioLen())
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	s := New("s1", "es-ES", "en-US", ModeEcho, "")

	r.Create(s)
	if r.Get("s1") != s {
		t.Fatal("Get should return the registered session")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	r.Remove("s1")
	if r.Get("s1") != nil {
		t.Error("Get should return nil after Remove")
	}

	// Removing twice must not panic.
	r.Remove("s1")
}
