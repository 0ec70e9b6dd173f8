package entities

import (
	"strings"
	"time"
)

// PersonaID identifies a doctor persona prompt family
type PersonaID string

const (
	PersonaModern      PersonaID = "modern"
	PersonaHomeopathic PersonaID = "homeopathic"
	PersonaAyurvedic   PersonaID = "ayurvedic"
)

// LanguageCode is the short language code shared by the UI, transcription and
// speech synthesis (e.g. "en", "hi")
type LanguageCode string

const (
	LanguageEnglish LanguageCode = "en"
	LanguageHindi   LanguageCode = "hi"
)

// Narrative fragment labels. They are part of the prompt sent to the model and
// stay the same in every UI language.
const (
	VoiceLabel   = "[Voice Description]: "
	WrittenLabel = "[Written Description]: "
)

// Image is an uploaded picture of the affected area
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// ConsultationRequest is the composed input of one consultation. AudioText is
// the transcription (or the transcription error text) of the voice recording.
type ConsultationRequest struct {
	Image     *Image
	AudioText string
	HasAudio  bool
	FreeText  string
	Persona   PersonaID
	Language  LanguageCode
}

// HasImage reports whether an image accompanies the request
func (r ConsultationRequest) HasImage() bool {
	return r.Image != nil && len(r.Image.Data) > 0
}

// PromptTemplate is the persona instruction block. The symptom narrative is
// appended to Text.
type PromptTemplate struct {
	Persona  PersonaID    `json:"persona" yaml:"persona"`
	Language LanguageCode `json:"language" yaml:"language"`
	HasImage bool         `json:"has_image" yaml:"image"`
	Text     string       `json:"text" yaml:"text"`
}

// BuildNarrative joins the voice and written fragments, voice first. It
// returns placeholder when neither is present.
func BuildNarrative(audioText string, hasAudio bool, freeText, placeholder string) string {
	var b strings.Builder
	if hasAudio {
		b.WriteString(VoiceLabel)
		b.WriteString(audioText)
		b.WriteString(" ")
	}
	if text := strings.TrimSpace(freeText); text != "" {
		b.WriteString(WrittenLabel)
		b.WriteString(text)
	}
	if b.Len() == 0 {
		return placeholder
	}
	return b.String()
}

// ConsultationResult is the immutable outcome of one consultation
type ConsultationResult struct {
	ID          string       `json:"id" bson:"_id"`
	SessionID   string       `json:"session_id" bson:"session_id"`
	Narrative   string       `json:"narrative" bson:"narrative"`
	ReplyText   string       `json:"reply_text" bson:"reply_text"`
	AudioPath   string       `json:"-" bson:"audio_path"`
	HasAudio    bool         `json:"has_audio" bson:"has_audio"`
	Persona     PersonaID    `json:"persona" bson:"persona"`
	Language    LanguageCode `json:"language" bson:"language"`
	Model       string       `json:"model" bson:"model"`
	SpeechLang  LanguageCode `json:"speech_language,omitempty" bson:"speech_language,omitempty"`
	ReplyError  string       `json:"reply_error,omitempty" bson:"reply_error,omitempty"`
	SpeechError string       `json:"speech_error,omitempty" bson:"speech_error,omitempty"`
	CreatedAt   time.Time    `json:"created_at" bson:"created_at"`
}
