package repositories

import (
	"context"

	"github.com/satriahrh/aidoctor/domain/entities"
)

// SessionRepository stores in-flight consultation sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	Delete(ctx context.Context, id string) error
	// ListExpired returns the IDs of sessions past their expiration
	ListExpired(ctx context.Context) ([]string, error)
}

// ConsultationRepository keeps the history of finished consultations
type ConsultationRepository interface {
	Save(ctx context.Context, result *entities.ConsultationResult) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.ConsultationResult, error)
}

// ArtifactKind names one of the per-consultation temp files
type ArtifactKind string

const (
	ArtifactImage        ArtifactKind = "image"
	ArtifactPatientAudio ArtifactKind = "patient_audio"
	ArtifactDoctorAudio  ArtifactKind = "doctor_audio"
)

// ArtifactStore persists the temp artifacts of a consultation at injected paths
type ArtifactStore interface {
	Save(ctx context.Context, sessionID string, kind ArtifactKind, data []byte) (string, error)
	Load(ctx context.Context, sessionID string, kind ArtifactKind) ([]byte, error)
	Remove(ctx context.Context, sessionID string, kind ArtifactKind) error
	Path(sessionID string, kind ArtifactKind) string
	// Clear removes every artifact of the session
	Clear(ctx context.Context, sessionID string) error
}
