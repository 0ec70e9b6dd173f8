package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts a complete voice recording to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	MIMEType   string `json:"mime_type"`
	// Language is the short code ("en", "hi"); SpeechCode the BCP-47 tag ("en-US")
	Language   string `json:"language"`
	SpeechCode string `json:"speech_code"`
}
