// Package speech converts feedback text into hosted audio clips. Clips
// are fetched from the upstream TTS service once, written under the
// audio directory, indexed in SQLite for reuse, and served to clients
// as URL references.
package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMissingCredential is returned when no TTS API key is configured.
var ErrMissingCredential = errors.New("speech: TTS API key not configured")

const synthesisTimeout = 15 * time.Second

// voiceTable maps learning-language codes to upstream voice IDs.
// Unmapped languages fall back to defaultVoice.
var voiceTable = map[string]string{
	"en-US": "EXAVITQu4vr4xnSDxMaL",
	"en-GB": "ThT5KcBeYPX3keUQqHPh",
	"es-ES": "VR6AewLTigWG4xSOukaG",
	"es-MX": "VR6AewLTigWG4xSOukaG",
	"fr-FR": "ErXwobaYiN019PkySvjV",
	"de-DE": "pNInz6obpgDQGcFmaJgB",
	"it-IT": "XB0fDUnXU5powFXDhCwa",
	"pt-BR": "IKne3meq5aSn9XLyUdCD",
	"ja-JP": "GBv7mTt0atIp3Br8iCZE",
	"zh-CN": "Xb7hH8MSUJpSbSDYk0k2",
}

const defaultVoice = "EXAVITQu4vr4xnSDxMaL"

// voiceFor resolves a language code to a voice ID.
func voiceFor(languageCode string) string {
	if v, ok := voiceTable[languageCode]; ok {
		return v
	}
	return defaultVoice
}

// Synthesizer fetches TTS audio and manages the on-disk clip cache.
type Synthesizer struct {
	baseURL  string
	apiKey   string
	audioDir string
	clips    *ClipStore
	client   *http.Client
}

// NewSynthesizer creates a synthesizer writing clips into audioDir.
func NewSynthesizer(baseURL, apiKey, audioDir string, clips *ClipStore) (*Synthesizer, error) {
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio directory: %w", err)
	}
	return &Synthesizer{
		baseURL:  baseURL,
		apiKey:   apiKey,
		audioDir: audioDir,
		clips:    clips,
		client:   &http.Client{Timeout: synthesisTimeout},
	}, nil
}

// Synthesize converts text to a hosted clip and returns its URL path.
// Identical text+voice pairs reuse the cached clip; the upstream is
// only hit on a cache miss.
func (s *Synthesizer) Synthesize(ctx context.Context, text, languageCode, label string) (string, error) {
	if s.apiKey == "" {
		return "", ErrMissingCredential
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("speech: empty text")
	}

	voice := voiceFor(languageCode)
	sum := sha256.Sum256([]byte(voice + "\x00" + text))
	hash := hex.EncodeToString(sum[:])

	if filename, ok := s.clips.Lookup(ctx, hash); ok {
		if _, err := os.Stat(filepath.Join(s.audioDir, filename)); err == nil {
			return "/audio/" + filename, nil
		}
		// Index entry without a file; fall through and regenerate.
	}

	filename := fmt.Sprintf("clip_%s.mp3", hash[:16])
	if err := s.fetch(ctx, text, voice, filepath.Join(s.audioDir, filename)); err != nil {
		return "", fmt.Errorf("synthesize %q clip: %w", label, err)
	}

	if err := s.clips.Insert(ctx, hash, voice, filename); err != nil {
		// The clip itself is usable; a missing index entry only costs
		// a future cache miss.
		slog.Warn("Failed to index synthesized clip", "error", err, "filename", filename)
	}
	return "/audio/" + filename, nil
}

// fetch performs one upstream TTS request and writes the MP3 to disk.
func (s *Synthesizer) fetch(ctx context.Context, text, voice, outputPath string) error {
	body := strings.NewReader(fmt.Sprintf(`{"text":%q,"model_id":"eleven_multilingual_v2"}`, text))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+voice, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, resp.Body); err != nil {
		return fmt.Errorf("write audio file: %w", err)
	}
	return nil
}
