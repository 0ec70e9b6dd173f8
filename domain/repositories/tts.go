package repositories

import "context"

// TextToSpeech converts reply text to encoded audio
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, language string) ([]byte, error)
}
