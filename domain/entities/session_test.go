package entities

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/satriahrh/aidoctor/domain"
)

func TestSessionCreation(t *testing.T) {
	session := NewSession(PersonaAyurvedic, LanguageHindi, 0)

	if session.ID == "" {
		t.Error("Expected session ID to be generated")
	}

	if session.State != StateIdle {
		t.Errorf("Expected state %s, got %s", StateIdle, session.State)
	}

	if session.IsReady() {
		t.Error("New session must not be ready")
	}

	if session.ExpiresAt.Sub(session.CreatedAt) != DefaultSessionTTL {
		t.Errorf("Expected default TTL %s, got %s", DefaultSessionTTL, session.ExpiresAt.Sub(session.CreatedAt))
	}
}

func TestSessionReadiness(t *testing.T) {
	tests := []struct {
		name    string
		collect func(s *Session) error
	}{
		{"image only", func(s *Session) error { return s.AttachImage("image/png") }},
		{"audio only", func(s *Session) error { return s.AttachAudio("audio/wav") }},
		{"text only", func(s *Session) error { return s.SetText("I have a headache") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
			if err := tt.collect(session); err != nil {
				t.Fatalf("collect failed: %v", err)
			}
			if !session.IsReady() {
				t.Error("Session should be ready after one input")
			}
			if session.State != StateReady {
				t.Errorf("Expected state %s, got %s", StateReady, session.State)
			}
		})
	}
}

func TestSessionEmptyTextIsNotReady(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)

	if err := session.SetText(""); err != nil {
		t.Fatalf("SetText failed: %v", err)
	}
	if session.State != StateCollecting {
		t.Errorf("Expected state %s, got %s", StateCollecting, session.State)
	}

	if err := session.AttachImage("image/jpeg"); err != nil {
		t.Fatalf("AttachImage failed: %v", err)
	}
	if err := session.DetachImage(); err != nil {
		t.Fatalf("DetachImage failed: %v", err)
	}
	if session.IsReady() || session.State != StateCollecting {
		t.Errorf("Session should fall back to collecting, got %s", session.State)
	}
}

func TestSessionLifecycle(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
	if err := session.SetText("fever"); err != nil {
		t.Fatal(err)
	}

	for _, next := range []SessionState{StateComposing, StateAwaitingReasoning, StateAwaitingSpeech} {
		if err := session.Transition(next); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
	}

	result := &ConsultationResult{ReplyText: "rest well"}
	if err := session.Complete(result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if session.Result != result {
		t.Error("Expected result to be stored")
	}

	if err := session.SetText("more"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition when collecting after completion, got %v", err)
	}

	fresh, err := session.Reset()
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if fresh.ID != session.ID {
		t.Error("Reset should keep the session ID")
	}
	if fresh.State != StateIdle || fresh.Result != nil || fresh.Text != "" {
		t.Error("Reset should produce an empty idle session")
	}
}

func TestSessionComposingOnlyFromReady(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)

	if err := session.Transition(StateComposing); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition from idle, got %v", err)
	}

	if err := session.SetText(""); err != nil {
		t.Fatal(err)
	}
	if err := session.Transition(StateComposing); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition from collecting, got %v", err)
	}
}

func TestSessionResetWhileComposing(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
	if err := session.SetText("cough"); err != nil {
		t.Fatal(err)
	}
	if err := session.Transition(StateComposing); err != nil {
		t.Fatal(err)
	}

	if _, err := session.Reset(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestSetPersonaDiscardsResult(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
	if err := session.SetText("rash"); err != nil {
		t.Fatal(err)
	}
	session.State = StateAwaitingSpeech
	if err := session.Complete(&ConsultationResult{}); err != nil {
		t.Fatal(err)
	}

	if err := session.SetPersona(PersonaHomeopathic); err != nil {
		t.Fatal(err)
	}

	if session.Result != nil {
		t.Error("Result should be discarded on persona change")
	}
	if session.State != StateReady {
		t.Errorf("Expected state %s, got %s", StateReady, session.State)
	}
}

func TestSetPersonaWhileRunning(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
	session.State = StateAwaitingReasoning

	if err := session.SetPersona(PersonaAyurvedic); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	if err := session.SetLanguage(LanguageHindi); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	if session.Persona != PersonaModern || session.Language != LanguageEnglish {
		t.Error("Persona and language must not change while running")
	}
}

func TestSessionExpiration(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)

	if session.IsExpired() {
		t.Error("Session should not be expired initially")
	}

	session.ExpiresAt = time.Now().Add(-1 * time.Minute)
	if !session.IsExpired() {
		t.Error("Session should be expired when ExpiresAt is in the past")
	}

	session.UpdateLastActive()
	if session.IsExpired() {
		t.Error("Activity should extend expiration")
	}
}

func TestSessionValidation(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
	if err := session.Validate(); err != nil {
		t.Errorf("Valid session should not have validation errors, got: %v", err)
	}

	session.Persona = ""
	if err := session.Validate(); err == nil {
		t.Error("Session without persona should have validation error")
	}

	session.Persona = PersonaModern
	session.State = SessionState("invalid")
	if err := session.Validate(); err == nil {
		t.Error("Session with invalid state should have validation error")
	}
}

func TestSession_UpdateLastActiveKeepsWindowAfterDecode(t *testing.T) {
	original := NewSession(PersonaModern, LanguageEnglish, 2*time.Hour)
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal session: %v", err)
	}

	var decoded Session
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal session: %v", err)
	}
	decoded.UpdateLastActive()

	if window := decoded.ExpiresAt.Sub(decoded.LastActiveAt); window != 2*time.Hour {
		t.Errorf("Expected the 2h window to survive decoding, got %v", window)
	}
}

func TestSetLanguageDiscardsResultToIdle(t *testing.T) {
	session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
	session.State = StateAwaitingReasoning
	if err := session.Complete(&ConsultationResult{}); err != nil {
		t.Fatal(err)
	}

	if err := session.SetLanguage(LanguageHindi); err != nil {
		t.Fatal(err)
	}
	if session.Result != nil {
		t.Error("Result should be discarded on language change")
	}
	if session.State != StateIdle {
		t.Errorf("Expected state %s without inputs, got %s", StateIdle, session.State)
	}
}

func TestSessionAbort(t *testing.T) {
	for _, state := range []SessionState{StateComposing, StateAwaitingReasoning, StateAwaitingSpeech} {
		t.Run(string(state), func(t *testing.T) {
			session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
			if err := session.SetText("cough"); err != nil {
				t.Fatal(err)
			}
			session.State = state

			if err := session.Abort(); err != nil {
				t.Fatalf("Abort failed: %v", err)
			}
			if session.State != StateReady {
				t.Errorf("Expected state %s, got %s", StateReady, session.State)
			}
			if session.Text != "cough" {
				t.Error("Abort should keep the collected inputs")
			}
			if err := session.Transition(StateComposing); err != nil {
				t.Errorf("Expected an aborted session to be analyzable again, got %v", err)
			}
		})
	}

	for _, state := range []SessionState{StateIdle, StateReady, StateComplete} {
		session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
		session.State = state
		if err := session.Abort(); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition aborting %s, got %v", state, err)
		}
	}
}

func TestSessionCanExpire(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		state   SessionState
		expires time.Time
		want    bool
	}{
		{"active", StateReady, now.Add(time.Minute), false},
		{"expired idle", StateIdle, now.Add(-time.Minute), true},
		{"expired complete", StateComplete, now.Add(-time.Minute), true},
		{"running", StateAwaitingReasoning, now.Add(-time.Minute), false},
		{"stalled run", StateComposing, now.Add(-StalledRunGrace - time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := NewSession(PersonaModern, LanguageEnglish, time.Hour)
			session.State = tt.state
			session.ExpiresAt = tt.expires
			if got := session.CanExpire(now); got != tt.want {
				t.Errorf("CanExpire() = %v, want %v", got, tt.want)
			}
		})
	}
}
