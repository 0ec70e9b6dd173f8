package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

// MockTTS returns a tiny silent MP3 frame for local runs without credentials
type MockTTS struct {
	logger *zap.Logger
}

// NewMockTTS creates a new mock text-to-speech service
func NewMockTTS(logger *zap.Logger) repositories.TextToSpeech {
	return &MockTTS{logger: logger}
}

// silentFrame is a single MPEG-1 Layer III frame header followed by padding
var silentFrame = append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 413)...)

// Synthesize implements repositories.TextToSpeech
func (m *MockTTS) Synthesize(ctx context.Context, text string, language string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", domain.ErrSpeech)
	}
	m.logger.Info("Mock speech synthesis",
		zap.Int("textLength", len(text)),
		zap.String("language", language))
	return append([]byte(nil), silentFrame...), nil
}
