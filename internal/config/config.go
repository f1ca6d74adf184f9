// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	// Upstream speech recognizer (streaming WebSocket API).
	RecognizerURL string
	RecognizerKey string

	// Language model.
	GeminiAPIKey string
	GeminiModel  string

	// Text-to-speech.
	TTSURL string
	TTSKey string

	// Synthesized audio clips are written here and served under /audio/.
	AudioDir   string
	ClipDBPath string
	ClipTTL    time.Duration

	// Session timers.
	IdleTimeout       time.Duration
	TranscribeTimeout time.Duration
	QuizAnswerTimeout time.Duration

	// Model call pacing (shared across all sessions).
	ModelMinInterval time.Duration
	ModelPerMinute   int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		RecognizerURL: getEnv("RECOGNIZER_URL", "wss://api.deepgram.com/v1/listen"),
		RecognizerKey: getEnv("RECOGNIZER_API_KEY", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		TTSURL:        getEnv("TTS_URL", "https://api.elevenlabs.io/v1/text-to-speech"),
		TTSKey:        getEnv("TTS_API_KEY", ""),
		AudioDir:      getEnv("AUDIO_DIR", "./data/audio"),
		ClipDBPath:    getEnv("CLIP_DB_PATH", "./data/clips.db"),
		ClipTTL:       getEnvDuration("CLIP_TTL", 24*time.Hour),

		IdleTimeout:       getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		TranscribeTimeout: getEnvDuration("TRANSCRIBE_TIMEOUT", 35*time.Second),
		QuizAnswerTimeout: getEnvDuration("QUIZ_ANSWER_TIMEOUT", 60*time.Second),

		ModelMinInterval: getEnvDuration("MODEL_MIN_INTERVAL", 1500*time.Millisecond),
		ModelPerMinute:   getEnvInt("MODEL_PER_MINUTE", 15),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.RecognizerURL == "" {
		return fmt.Errorf("RECOGNIZER_URL cannot be empty")
	}
	if c.AudioDir == "" {
		return fmt.Errorf("AUDIO_DIR cannot be empty")
	}
	if c.ClipDBPath == "" {
		return fmt.Errorf("CLIP_DB_PATH cannot be empty")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT must be > 0")
	}
	if c.TranscribeTimeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT must be > 0")
	}
	if c.QuizAnswerTimeout <= 0 {
		return fmt.Errorf("QUIZ_ANSWER_TIMEOUT must be > 0")
	}
	if c.ModelPerMinute <= 0 {
		return fmt.Errorf("MODEL_PER_MINUTE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
