package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	logger *zap.Logger
}

// NewGoogleSpeechToText creates the client using application default credentials
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, logger: logger}, nil
}

// TranscribeAudio converts a complete recording to text using synchronous recognition
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("%w: no audio data received", domain.ErrTranscription)
	}

	encodingName := config.Encoding
	if encodingName == "" {
		encodingName = encodingFromMIME(config.MIMEType)
	}
	encoding, err := getAudioEncoding(encodingName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscription, err)
	}

	languageCode := config.SpeechCode
	if languageCode == "" {
		languageCode = config.Language
	}

	// Configure recognition settings
	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(config.SampleRate),
		LanguageCode:               languageCode,
		EnableAutomaticPunctuation: true,
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscription, err)
	}

	// Take the best alternative of every result
	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, strings.TrimSpace(result.Alternatives[0].Transcript))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no speech detected in audio", domain.ErrTranscription)
	}

	transcription := strings.Join(parts, " ")
	g.logger.Info("Google transcription completed",
		zap.String("language", languageCode),
		zap.Int("audioSize", len(audioData)))
	return transcription, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

// encodingFromMIME maps browser recording MIME types to encoding names
func encodingFromMIME(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wav"):
		return "WAV"
	case strings.Contains(mimeType, "flac"):
		return "FLAC"
	case strings.Contains(mimeType, "webm"):
		return "WEBM_OPUS"
	case strings.Contains(mimeType, "ogg"):
		return "OGG_OPUS"
	case strings.Contains(mimeType, "amr"):
		return "AMR"
	default:
		return ""
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %q", encoding)
	}
}
