// Package artifacts stores the per-consultation temp files (uploaded image,
// patient recording, synthesized reply) on the local filesystem.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

// FileNames maps each artifact kind to its file name inside a session directory
type FileNames struct {
	Image        string
	PatientAudio string
	DoctorAudio  string
}

// DefaultFileNames are the names used when none are configured
var DefaultFileNames = FileNames{
	Image:        "patient_image",
	PatientAudio: "patient_audio",
	DoctorAudio:  "doctor_response.mp3",
}

// FilesystemStore implements repositories.ArtifactStore under a root directory.
// Each session gets its own subdirectory so concurrent consultations never
// share a path.
type FilesystemStore struct {
	root   string
	names  FileNames
	logger *zap.Logger
}

var _ repositories.ArtifactStore = (*FilesystemStore)(nil)

// NewFilesystemStore creates root if needed
func NewFilesystemStore(root string, names FileNames, logger *zap.Logger) (*FilesystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: artifact directory is required", domain.ErrConfiguration)
	}
	if names.Image == "" {
		names.Image = DefaultFileNames.Image
	}
	if names.PatientAudio == "" {
		names.PatientAudio = DefaultFileNames.PatientAudio
	}
	if names.DoctorAudio == "" {
		names.DoctorAudio = DefaultFileNames.DoctorAudio
	}
	for _, n := range []string{names.Image, names.PatientAudio, names.DoctorAudio} {
		if strings.ContainsAny(n, `/\`) {
			return nil, fmt.Errorf("%w: artifact file name %q must not contain a path separator", domain.ErrConfiguration, n)
		}
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create artifact directory: %v", domain.ErrConfiguration, err)
	}
	return &FilesystemStore{root: root, names: names, logger: logger}, nil
}

// Path returns where the artifact of kind lives for sessionID
func (s *FilesystemStore) Path(sessionID string, kind repositories.ArtifactKind) string {
	return filepath.Join(s.sessionDir(sessionID), s.fileName(kind))
}

// Save overwrites the artifact and returns its path
func (s *FilesystemStore) Save(ctx context.Context, sessionID string, kind repositories.ArtifactKind, data []byte) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.sessionDir(sessionID), 0o750); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}

	path := s.Path(sessionID, kind)
	// Write through a temp file so readers never see a partial artifact
	tmp, err := os.CreateTemp(s.sessionDir(sessionID), ".tmp-"+string(kind)+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename artifact: %w", err)
	}

	s.logger.Debug("Artifact saved",
		zap.String("sessionID", sessionID),
		zap.String("kind", string(kind)),
		zap.Int("size", len(data)))
	return path, nil
}

// Load reads an artifact, returning domain.ErrArtifactNotFound when absent
func (s *FilesystemStore) Load(ctx context.Context, sessionID string, kind repositories.ArtifactKind) ([]byte, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(sessionID, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s for session %s", domain.ErrArtifactNotFound, kind, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// Remove deletes one artifact. Removing a missing artifact is not an error.
func (s *FilesystemStore) Remove(ctx context.Context, sessionID string, kind repositories.ArtifactKind) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := os.Remove(s.Path(sessionID, kind)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// Clear removes the whole session directory
func (s *FilesystemStore) Clear(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	s.logger.Debug("Artifacts cleared", zap.String("sessionID", sessionID))
	return nil
}

func (s *FilesystemStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *FilesystemStore) fileName(kind repositories.ArtifactKind) string {
	switch kind {
	case repositories.ArtifactImage:
		return s.names.Image
	case repositories.ArtifactPatientAudio:
		return s.names.PatientAudio
	case repositories.ArtifactDoctorAudio:
		return s.names.DoctorAudio
	default:
		return string(kind)
	}
}

// validateSessionID keeps session ids from escaping the root directory
func validateSessionID(sessionID string) error {
	if sessionID == "" || sessionID == "." || sessionID == ".." || strings.ContainsAny(sessionID, `/\`) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}
	return nil
}
