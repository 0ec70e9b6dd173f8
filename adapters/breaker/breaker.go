// Package breaker wraps the hosted AI collaborators in circuit breakers so a
// provider outage fails fast instead of holding every consultation for the
// full request timeout.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

// Settings tunes every breaker created by this package
type Settings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultSettings trips after 3 requests with at least 60% failures
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

func newCircuitBreaker(name string, s Settings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// execute runs fn and wraps breaker rejections with sentinel
func execute[T any](cb *gobreaker.CircuitBreaker, sentinel error, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s: %v", sentinel, cb.Name(), err)
		}
		return zero, err
	}
	return out.(T), nil
}

// breakerSet creates breakers lazily, one per key
type breakerSet struct {
	prefix   string
	settings Settings
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerSet(prefix string, settings Settings, logger *zap.Logger) *breakerSet {
	return &breakerSet{
		prefix:   prefix,
		settings: settings,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *breakerSet) get(key string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[key]
	if !ok {
		cb = newCircuitBreaker(b.prefix+":"+key, b.settings, b.logger)
		b.breakers[key] = cb
	}
	return cb
}

// Reasoner keeps one breaker per model so an outage of the vision model does
// not block the text-only fallback
type Reasoner struct {
	next     repositories.Reasoner
	breakers *breakerSet
}

// NewReasoner decorates next
func NewReasoner(next repositories.Reasoner, settings Settings, logger *zap.Logger) *Reasoner {
	return &Reasoner{next: next, breakers: newBreakerSet("reasoner", settings, logger)}
}

// Complete implements repositories.Reasoner
func (r *Reasoner) Complete(ctx context.Context, prompt string, image *entities.Image, model string) (string, error) {
	return execute(r.breakers.get(model), domain.ErrReasoning, func() (string, error) {
		return r.next.Complete(ctx, prompt, image, model)
	})
}

// SpeechToText keeps one breaker per language, since recognition models are
// per language and fail independently
type SpeechToText struct {
	next     repositories.SpeechToText
	breakers *breakerSet
}

// NewSpeechToText decorates next
func NewSpeechToText(next repositories.SpeechToText, settings Settings, logger *zap.Logger) *SpeechToText {
	return &SpeechToText{next: next, breakers: newBreakerSet("transcription", settings, logger)}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *SpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	return execute(s.breakers.get(config.Language), domain.ErrTranscription, func() (string, error) {
		return s.next.TranscribeAudio(ctx, audioData, config)
	})
}

// TextToSpeech keeps one breaker per language. A voice that keeps failing in
// one language must not block the retry in the default language.
type TextToSpeech struct {
	next     repositories.TextToSpeech
	breakers *breakerSet
}

// NewTextToSpeech decorates next
func NewTextToSpeech(next repositories.TextToSpeech, settings Settings, logger *zap.Logger) *TextToSpeech {
	return &TextToSpeech{next: next, breakers: newBreakerSet("speech", settings, logger)}
}

// Synthesize implements repositories.TextToSpeech
func (t *TextToSpeech) Synthesize(ctx context.Context, text string, language string) ([]byte, error) {
	return execute(t.breakers.get(language), domain.ErrSpeech, func() ([]byte, error) {
		return t.next.Synthesize(ctx, text, language)
	})
}
