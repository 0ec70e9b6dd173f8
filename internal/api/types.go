package api

import (
	"time"

	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/internal/persona"
)

// CreateConsultationRequest represents the request payload for starting a consultation
type CreateConsultationRequest struct {
	Persona  entities.PersonaID    `json:"persona"`
	Language entities.LanguageCode `json:"language"`
}

// CreateConsultationResponse carries the bearer token bound to the new session
type CreateConsultationResponse struct {
	SessionID string            `json:"session_id"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Session   *entities.Session `json:"session"`
}

type PersonaRequest struct {
	Persona entities.PersonaID `json:"persona"`
}

type LanguageRequest struct {
	Language entities.LanguageCode `json:"language"`
}

type TextRequest struct {
	Text string `json:"text"`
}

// CatalogResponse lists the options and the UI labels of one language
type CatalogResponse struct {
	Language  entities.LanguageCode `json:"language"`
	Personas  []persona.Persona     `json:"personas"`
	Languages []persona.Language    `json:"languages"`
	Labels    map[string]string     `json:"labels"`
}

// ResultResponse is a finished consultation plus links to its downloads
type ResultResponse struct {
	*entities.ConsultationResult
	AudioURL  string `json:"audio_url,omitempty"`
	ReportURL string `json:"report_url"`
}

type HistoryResponse struct {
	Consultations []*entities.ConsultationResult `json:"consultations"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
