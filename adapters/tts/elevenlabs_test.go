package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/aidoctor/domain"
)

func TestNewElevenLabsTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// Test without API key
	_, err := NewElevenLabsTTS(ElevenLabsConfig{}, logger)
	if err == nil {
		t.Error("Expected error when API key is not set")
	}
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}

	// Test with API key
	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if tts.apiKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", tts.apiKey)
	}

	if tts.voiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, tts.voiceID)
	}

	if tts.outputFormat != defaultOutputFormat {
		t.Errorf("Expected default output format '%s', got '%s'", defaultOutputFormat, tts.outputFormat)
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ElevenLabsConfig
		wantErr bool
	}{
		{"valid", ElevenLabsConfig{APIKey: "k", Stability: 0.3, Clarity: 0.9}, false},
		{"missing key", ElevenLabsConfig{}, true},
		{"stability out of range", ElevenLabsConfig{APIKey: "k", Stability: 1.5}, true},
		{"clarity out of range", ElevenLabsConfig{APIKey: "k", Clarity: -0.1}, true},
		{"negative timeout", ElevenLabsConfig{APIKey: "k", Timeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateElevenLabsConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateElevenLabsConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestElevenLabsTTS_VoiceSettingsFromConfig(t *testing.T) {
	var got ElevenLabsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
		ModelID:    "eleven_multilingual_v2",
		Stability:  0.8,
		Clarity:    0.9,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if _, err := tts.Synthesize(context.Background(), "Rest well.", "en"); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if got.ModelID != "eleven_multilingual_v2" {
		t.Errorf("Expected model 'eleven_multilingual_v2', got '%s'", got.ModelID)
	}
	if got.VoiceSettings.Stability != 0.8 || got.VoiceSettings.SimilarityBoost != 0.9 {
		t.Errorf("Unexpected voice settings %+v", got.VoiceSettings)
	}
}

func TestElevenLabsTTS_Synthesize(t *testing.T) {
	var got ElevenLabsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-api-key" {
			t.Errorf("Expected api key header, got '%s'", r.Header.Get("xi-api-key"))
		}
		if !strings.HasPrefix(r.URL.Path, "/text-to-speech/voice-1") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != defaultOutputFormat {
			t.Errorf("Unexpected output format %s", r.URL.Query().Get("output_format"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
		VoiceID:    "voice-1",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	audio, err := tts.Synthesize(context.Background(), "Drink warm water.", "hi")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "ID3-audio" {
		t.Errorf("Unexpected audio %q", audio)
	}
	if got.Text != "Drink warm water." {
		t.Errorf("Expected text to be forwarded unmodified, got %q", got.Text)
	}
	if got.LanguageCode != "hi" {
		t.Errorf("Expected language_code 'hi', got '%s'", got.LanguageCode)
	}
}

func TestElevenLabsTTS_Synthesize_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"unsupported language"}`))
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key", APIBaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx := context.Background()
	if _, err := tts.Synthesize(ctx, "   ", "en"); !errors.Is(err, domain.ErrSpeech) {
		t.Errorf("Expected speech error for whitespace-only text, got %v", err)
	}

	_, err = tts.Synthesize(ctx, "hello", "xx")
	if !errors.Is(err, domain.ErrSpeech) {
		t.Errorf("Expected speech error, got %v", err)
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("Expected status code in error, got %v", err)
	}
}

func TestMockTTS(t *testing.T) {
	mock := NewMockTTS(zaptest.NewLogger(t))
	audio, err := mock.Synthesize(context.Background(), "hello", "en")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(audio) == 0 || audio[0] != 0xFF {
		t.Error("Expected an MP3 frame")
	}
}

// Integration test - only runs if ELEVEN_LABS_API_KEY is set with real API key
func TestElevenLabsTTS_Synthesize_Integration(t *testing.T) {
	apiKey := os.Getenv("ELEVEN_LABS_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test - set ELEVEN_LABS_API_KEY environment variable with real API key")
	}

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: apiKey}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	audio, err := tts.Synthesize(ctx, "आराम करें और पानी पीते रहें।", "hi")
	if err != nil {
		t.Fatalf("Failed to convert text to speech: %v", err)
	}
	if len(audio) == 0 {
		t.Error("No audio data received")
	}

	t.Logf("Integration test completed: received %d bytes", len(audio))
}
