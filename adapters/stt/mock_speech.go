package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

// MockSpeechToText returns canned transcriptions for local runs without credentials
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.String("language", config.Language))

	if len(audioData) == 0 {
		return "", fmt.Errorf("%w: no audio data received", domain.ErrTranscription)
	}

	// Mock transcription based on language
	switch config.Language {
	case "hi":
		return "पेट में दर्द है", nil
	default:
		return "I have had a sore throat since yesterday", nil
	}
}
