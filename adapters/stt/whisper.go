package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

// DefaultWhisperModel is the transcription model used when none is configured
const DefaultWhisperModel = "whisper-large-v3"

// WhisperSpeechToText transcribes recordings through an OpenAI-compatible
// audio transcription endpoint (Groq or OpenAI)
type WhisperSpeechToText struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewWhisperSpeechToText creates a transcriber. An empty baseURL keeps the
// go-openai default endpoint.
func NewWhisperSpeechToText(apiKey, baseURL, model string, logger *zap.Logger) (*WhisperSpeechToText, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: whisper API key is required", domain.ErrConfiguration)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultWhisperModel
	}
	return &WhisperSpeechToText{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}, nil
}

// TranscribeAudio implements repositories.SpeechToText
func (w *WhisperSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("%w: no audio data received", domain.ErrTranscription)
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "patient_audio" + extensionFromMIME(config.MIMEType),
		Reader:   bytes.NewReader(audioData),
		Language: config.Language,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscription, err)
	}

	w.logger.Info("Whisper transcription completed",
		zap.String("model", w.model),
		zap.String("language", config.Language),
		zap.Int("audioSize", len(audioData)))
	return strings.TrimSpace(resp.Text), nil
}

// extensionFromMIME picks the file name extension the endpoint uses to
// detect the container format
func extensionFromMIME(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "flac"):
		return ".flac"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	default:
		return ".mp3"
	}
}
