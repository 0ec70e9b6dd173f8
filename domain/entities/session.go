package entities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/aidoctor/domain"
)

// SessionState represents where a consultation is in its lifecycle
type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateCollecting        SessionState = "collecting"
	StateReady             SessionState = "ready"
	StateComposing         SessionState = "composing"
	StateAwaitingReasoning SessionState = "awaiting_reasoning"
	StateAwaitingSpeech    SessionState = "awaiting_speech"
	StateComplete          SessionState = "complete"
)

// DefaultSessionTTL is how long an untouched session is kept
const DefaultSessionTTL = 30 * time.Minute

// StalledRunGrace is how long a session may sit in a pipeline state past its
// expiration before cleanup treats the run as abandoned
const StalledRunGrace = 10 * time.Minute

var transitions = map[SessionState][]SessionState{
	StateIdle:              {StateCollecting},
	StateCollecting:        {StateCollecting, StateReady, StateIdle},
	StateReady:             {StateCollecting, StateComposing, StateIdle},
	StateComposing:         {StateAwaitingReasoning, StateReady},
	StateAwaitingReasoning: {StateAwaitingSpeech, StateComplete, StateReady},
	StateAwaitingSpeech:    {StateComplete, StateReady},
	StateComplete:          {StateIdle, StateReady},
}

// Session holds the configuration and collected inputs of one consultation.
// Artifact bytes live in the artifact store; the session only tracks presence.
type Session struct {
	ID           string              `json:"id"`
	State        SessionState        `json:"state"`
	Persona      PersonaID           `json:"persona"`
	Language     LanguageCode        `json:"language"`
	HasImage     bool                `json:"has_image"`
	ImageMIME    string              `json:"image_mime,omitempty"`
	HasAudio     bool                `json:"has_audio"`
	AudioMIME    string              `json:"audio_mime,omitempty"`
	Text         string              `json:"text,omitempty"`
	Result       *ConsultationResult `json:"result,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActiveAt time.Time           `json:"last_active_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
	ttl          time.Duration
}

// NewSession creates an idle session with the given persona and language
func NewSession(persona PersonaID, language LanguageCode, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		State:        StateIdle,
		Persona:      persona,
		Language:     language,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
		ttl:          ttl,
	}
}

// IsReady is the collector readiness predicate
func (s *Session) IsReady() bool {
	return s.HasImage || s.HasAudio || s.Text != ""
}

// Transition moves the session to next, rejecting edges outside the lifecycle
func (s *Session) Transition(next SessionState) error {
	for _, allowed := range transitions[s.State] {
		if allowed == next {
			s.State = next
			s.UpdateLastActive()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, s.State, next)
}

// CanCollect reports whether inputs may still be changed
func (s *Session) CanCollect() bool {
	return s.State == StateIdle || s.State == StateCollecting || s.State == StateReady
}

// AttachImage records that an image artifact was stored
func (s *Session) AttachImage(mimeType string) error {
	return s.collect(func() {
		s.HasImage = true
		s.ImageMIME = mimeType
	})
}

// DetachImage records that the image artifact was removed
func (s *Session) DetachImage() error {
	return s.collect(func() {
		s.HasImage = false
		s.ImageMIME = ""
	})
}

// AttachAudio records that a voice recording was stored
func (s *Session) AttachAudio(mimeType string) error {
	return s.collect(func() {
		s.HasAudio = true
		s.AudioMIME = mimeType
	})
}

// DetachAudio records that the voice recording was removed
func (s *Session) DetachAudio() error {
	return s.collect(func() {
		s.HasAudio = false
		s.AudioMIME = ""
	})
}

// SetText replaces the written description
func (s *Session) SetText(text string) error {
	return s.collect(func() {
		s.Text = text
	})
}

// collect applies an artifact change and settles the Collecting/Ready state
func (s *Session) collect(apply func()) error {
	if !s.CanCollect() {
		return fmt.Errorf("%w: cannot change inputs while %s", domain.ErrInvalidTransition, s.State)
	}
	if err := s.Transition(StateCollecting); err != nil {
		return err
	}
	apply()
	if s.IsReady() {
		return s.Transition(StateReady)
	}
	return nil
}

// SetPersona switches the doctor persona. A finished consultation is discarded.
func (s *Session) SetPersona(persona PersonaID) error {
	if err := s.checkConfigurable(); err != nil {
		return err
	}
	s.Persona = persona
	return s.discardResult()
}

// SetLanguage switches the UI and output language. A finished consultation is discarded.
func (s *Session) SetLanguage(language LanguageCode) error {
	if err := s.checkConfigurable(); err != nil {
		return err
	}
	s.Language = language
	return s.discardResult()
}

func (s *Session) checkConfigurable() error {
	if !s.CanCollect() && s.State != StateComplete {
		return fmt.Errorf("%w: cannot reconfigure while %s", domain.ErrInvalidTransition, s.State)
	}
	return nil
}

func (s *Session) discardResult() error {
	if s.State != StateComplete {
		s.UpdateLastActive()
		return nil
	}
	next := StateIdle
	if s.IsReady() {
		next = StateReady
	}
	if err := s.Transition(next); err != nil {
		return err
	}
	s.Result = nil
	return nil
}

// Complete stores the result and finishes the consultation
func (s *Session) Complete(result *ConsultationResult) error {
	if err := s.Transition(StateComplete); err != nil {
		return err
	}
	s.Result = result
	return nil
}

// Abort returns an interrupted consultation to Ready so it can be analyzed
// again. The collected inputs are kept.
func (s *Session) Abort() error {
	switch s.State {
	case StateComposing, StateAwaitingReasoning, StateAwaitingSpeech:
	default:
		return fmt.Errorf("%w: nothing to abort while %s", domain.ErrInvalidTransition, s.State)
	}
	s.Result = nil
	return s.Transition(StateReady)
}

// Reset returns a fresh idle session under the same ID. Only persona and
// language carry over.
func (s *Session) Reset() (*Session, error) {
	if s.State != StateComplete && !s.CanCollect() {
		return nil, fmt.Errorf("%w: cannot reset while %s", domain.ErrInvalidTransition, s.State)
	}
	fresh := NewSession(s.Persona, s.Language, s.idleTTL())
	fresh.ID = s.ID
	return fresh, nil
}

// idleTTL is the configured TTL, or the current expiration window for
// sessions decoded from storage
func (s *Session) idleTTL() time.Duration {
	if s.ttl <= 0 {
		s.ttl = s.ExpiresAt.Sub(s.LastActiveAt)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	return s.ttl
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
	s.ExpiresAt = s.LastActiveAt.Add(s.idleTTL())
}

// IsExpired checks if the session has outlived its TTL
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// CanExpire reports whether cleanup may delete the session at now. A session
// in the pipeline is kept until it has stalled for StalledRunGrace.
func (s *Session) CanExpire(now time.Time) bool {
	if !now.After(s.ExpiresAt) {
		return false
	}
	if s.CanCollect() || s.State == StateComplete {
		return true
	}
	return now.After(s.ExpiresAt.Add(StalledRunGrace))
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.Persona == "" {
		return errors.New("persona is required")
	}
	if s.Language == "" {
		return errors.New("language is required")
	}
	if _, ok := transitions[s.State]; !ok {
		return errors.New("invalid session state")
	}
	return nil
}
