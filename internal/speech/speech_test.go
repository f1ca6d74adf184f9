package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestStore(t *testing.T) *ClipStore {
	t.Helper()
	store, err := NewClipStore(filepath.Join(t.TempDir(), "clips.db"))
	if err != nil {
		t.Fatalf("NewClipStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestClipStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok := store.Lookup(ctx, "missing"); ok {
		t.Error("Lookup of unknown hash should miss")
	}

	if err := store.Insert(ctx, "abc123", "voice-1", "clip_abc123.mp3"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	filename, ok := store.Lookup(ctx, "abc123")
	if !ok || filename != "clip_abc123.mp3" {
		t.Errorf("Lookup = %q, %v", filename, ok)
	}

	// Reinserting the same hash replaces, not fails.
	if err := store.Insert(ctx, "abc123", "voice-1", "clip_abc123.mp3"); err != nil {
		t.Fatalf("Reinsert: %v", err)
	}
}

func TestClipStoreExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, "old", "v", "clip_old.mp3"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Fresh clips are not expired.
	expired, err := store.Expired(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Expired: %v", err)
	}
	if len(expired) != 0 {
		t.Errorf("Fresh clip reported expired: %v", expired)
	}

	// With a zero TTL everything inserted before now is expired.
	time.Sleep(1100 * time.Millisecond)
	expired, err = store.Expired(ctx, time.Second)
	if err != nil {
		t.Fatalf("Expired: %v", err)
	}
	if len(expired) != 1 || expired[0] != "clip_old.mp3" {
		t.Errorf("Expired = %v, want the old clip", expired)
	}

	if err := store.DeleteByFilename(ctx, expired); err != nil {
		t.Fatalf("DeleteByFilename: %v", err)
	}
	if _, ok := store.Lookup(ctx, "old"); ok {
		t.Error("Deleted clip still indexed")
	}
}

func TestSynthesizeCachesByContent(t *testing.T) {
	var upstreamHits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits.Add(1)
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("Missing API key header")
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	s, err := NewSynthesizer(upstream.URL, "test-key", dir, newTestStore(t))
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}

	url1, err := s.Synthesize(context.Background(), "Hola, ¿qué tal?", "es-ES", "correction")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(url1, "/audio/clip_") || !strings.HasSuffix(url1, ".mp3") {
		t.Errorf("Clip URL = %q", url1)
	}

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url1, "/audio/")))
	if err != nil {
		t.Fatalf("Clip file not written: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("Clip content = %q", data)
	}

	// Same text and voice reuse the clip without another upstream call.
	url2, err := s.Synthesize(context.Background(), "Hola, ¿qué tal?", "es-ES", "correction")
	if err != nil {
		t.Fatalf("Second Synthesize: %v", err)
	}
	if url2 != url1 {
		t.Errorf("Cached URL = %q, want %q", url2, url1)
	}
	if hits := upstreamHits.Load(); hits != 1 {
		t.Errorf("Upstream hit %d times, want 1", hits)
	}

	// Different text fetches again.
	if _, err := s.Synthesize(context.Background(), "Adiós.", "es-ES", "correction"); err != nil {
		t.Fatalf("Third Synthesize: %v", err)
	}
	if hits := upstreamHits.Load(); hits != 2 {
		t.Errorf("Upstream hit %d times after new text, want 2", hits)
	}
}

func TestSynthesizeRequiresCredentialAndText(t *testing.T) {
	s, err := NewSynthesizer("http://localhost:0", "", t.TempDir(), newTestStore(t))
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "text", "en-US", "l"); err != ErrMissingCredential {
		t.Errorf("Missing key error = %v", err)
	}

	s, err = NewSynthesizer("http://localhost:0", "k", t.TempDir(), newTestStore(t))
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "   ", "en-US", "l"); err == nil {
		t.Error("Expected error for blank text")
	}
}

func TestSynthesizeUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	s, err := NewSynthesizer(upstream.URL, "k", t.TempDir(), newTestStore(t))
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "text", "en-US", "correction"); err == nil {
		t.Error("Expected error for upstream failure status")
	}
}

func TestServeClipRejectsBadFilenames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clip_ok.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := chi.NewRouter()
	NewHandler(dir).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "valid clip", path: "/audio/clip_ok.mp3", want: http.StatusOK},
		{name: "wrong extension", path: "/audio/clip_ok.wav", want: http.StatusNotFound},
		{name: "traversal", path: "/audio/..%2Fsecret.mp3", want: http.StatusNotFound},
		{name: "missing clip", path: "/audio/clip_gone.mp3", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.want)
			}
		})
	}
}
