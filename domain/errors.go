package domain

import "errors"

// Consultation error taxonomy. Adapters wrap their failures with one of these
// so callers can branch with errors.Is.
var (
	// ErrInputValidation means no modality (image, voice, text) was provided.
	ErrInputValidation = errors.New("provide at least one input: an image, a voice recording or a written description")
	// ErrConfiguration means the prompt catalog or service wiring is incomplete.
	ErrConfiguration = errors.New("configuration error")

	ErrTranscription = errors.New("transcription failed")
	ErrReasoning     = errors.New("reasoning failed")
	ErrSpeech        = errors.New("speech synthesis failed")

	ErrSessionNotFound   = errors.New("consultation session not found")
	ErrInvalidTransition = errors.New("invalid consultation state transition")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrUnsupportedOption = errors.New("unsupported persona or language")
	ErrResultNotReady    = errors.New("consultation has no result yet")
)
