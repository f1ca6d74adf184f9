// Package transcribe submits accumulated PCM audio to the upstream
// streaming speech recognizer and resolves exactly one finalized
// transcript per turn. The upstream can signal completion in several
// ways with different trust levels, so finalization is layered: a
// definitive final resolves immediately, an utterance-end event
// resolves if any text has accumulated, a short settle timer absorbs
// provider chattiness, and a hard ceiling bounds the whole call.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors surfaced to callers.
var (
	ErrUnsupportedLanguage = errors.New("transcribe: unsupported language")
	ErrNoAudio             = errors.New("transcribe: no audio chunks")
	ErrMissingCredential   = errors.New("transcribe: recognizer API key not configured")
)

// supportedLanguages is the set of language codes the upstream
// recognizer accepts. Checked before any network I/O.
var supportedLanguages = map[string]bool{
	"en-US": true,
	"en-GB": true,
	"es-ES": true,
	"es-MX": true,
	"fr-FR": true,
	"de-DE": true,
	"it-IT": true,
	"pt-BR": true,
	"nl-NL": true,
	"ja-JP": true,
	"ko-KR": true,
	"zh-CN": true,
	"ru-RU": true,
	"hi-IN": true,
}

// Supported reports whether the recognizer accepts a language code.
func Supported(languageCode string) bool {
	return supportedLanguages[languageCode]
}

// Result is the finalized transcript for one turn.
type Result struct {
	Text     string
	Language string
}

// RetryPolicy bounds reconnect attempts against upstream transport
// failures. Retry state lives here, not in closures, so it is testable
// independently of the network call.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy matches the upstream's tolerance: two reconnects
// with a fixed one-second pause.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, Backoff: time.Second}

// dialFunc opens one streaming recognizer session.
type dialFunc func(ctx context.Context, languageCode string) (streamSession, error)

// Transcriber resolves buffered audio to text through the upstream
// streaming recognizer.
type Transcriber struct {
	dial    dialFunc
	retry   RetryPolicy
	needKey bool
	key     string

	settleAfter    time.Duration // quiet period after the last transcript update
	finalizeAfter  time.Duration // proactive "finish the stream" nudge
	overallTimeout time.Duration // hard ceiling for the whole call
}

// Options configures a Transcriber.
type Options struct {
	URL        string
	APIKey     string
	SampleRate int
	Retry      RetryPolicy
	Timeout    time.Duration // hard ceiling per Transcribe call
}

// New creates a Transcriber speaking to the live recognizer endpoint.
func New(opts Options) *Transcriber {
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.Backoff == 0 {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Timeout == 0 {
		opts.Timeout = 35 * time.Second
	}
	return &Transcriber{
		dial:           liveDialer(opts.URL, opts.APIKey, opts.SampleRate),
		retry:          opts.Retry,
		needKey:        true,
		key:            opts.APIKey,
		settleAfter:    2500 * time.Millisecond,
		finalizeAfter:  30 * time.Second,
		overallTimeout: opts.Timeout,
	}
}

// Transcribe streams the buffered chunks and resolves one transcript.
// Validation failures (language, empty input, missing credential) are
// reported before any connection is opened; transport failures are
// retried per the policy and then surfaced.
func (t *Transcriber) Transcribe(ctx context.Context, chunks [][]byte, languageCode string) (Result, error) {
	if !Supported(languageCode) {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, languageCode)
	}
	if len(chunks) == 0 {
		return Result{}, ErrNoAudio
	}
	if t.needKey && t.key == "" {
		return Result{}, ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, t.overallTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(t.retry.Backoff):
			case <-ctx.Done():
				return Result{}, fmt.Errorf("transcription aborted during retry: %w", lastErr)
			}
		}
		text, err := t.attempt(ctx, chunks, languageCode)
		if err == nil {
			return Result{Text: text, Language: languageCode}, nil
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("transcription timed out: %w", err)
		}
		lastErr = err
	}
	return Result{}, fmt.Errorf("transcription failed after %d attempts: %w", t.retry.MaxRetries+1, lastErr)
}

// attempt runs one full connect-stream-finalize cycle.
func (t *Transcriber) attempt(ctx context.Context, chunks [][]byte, languageCode string) (string, error) {
	sess, err := t.dial(ctx, languageCode)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	for _, chunk := range chunks {
		if err := sess.SendAudio(chunk); err != nil {
			return "", fmt.Errorf("send audio: %w", err)
		}
	}

	// Final segments are concatenated; the latest interim is only a
	// tentative tail until a final arrives for that segment.
	var finals []string
	var interim string
	latest := func() string {
		if interim == "" {
			return strings.Join(finals, " ")
		}
		if len(finals) == 0 {
			return interim
		}
		return strings.Join(finals, " ") + " " + interim
	}

	settle := time.NewTimer(t.settleAfter)
	defer settle.Stop()
	finalize := time.NewTimer(t.finalizeAfter)
	defer finalize.Stop()

	events := sess.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Upstream closed the stream. Resolve with whatever
				// accumulated rather than failing a turn that has text.
				if s := latest(); s != "" {
					return s, nil
				}
				return "", errors.New("recognizer closed stream without transcript")
			}
			switch ev.Kind {
			case eventError:
				return "", ev.Err
			case eventUtteranceEnd:
				if s := latest(); s != "" {
					return s, nil
				}
			case eventResult:
				if ev.IsFinal {
					if ev.Transcript != "" {
						finals = append(finals, ev.Transcript)
					}
					interim = ""
					if ev.SpeechFinal || ev.FromFinalize {
						// Definitive final: the provider has committed.
						return strings.Join(finals, " "), nil
					}
				} else if ev.Transcript != "" {
					interim = ev.Transcript
				}
				resetTimer(settle, t.settleAfter)
			}

		case <-settle.C:
			// No update for the quiet period; take what we have. An
			// empty buffer means the provider has said nothing yet, so
			// keep waiting for it or the ceiling.
			if s := latest(); s != "" {
				return s, nil
			}
			settle.Reset(t.settleAfter)

		case <-finalize.C:
			if err := sess.RequestClose(); err != nil {
				return "", fmt.Errorf("finalize stream: %w", err)
			}

		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
