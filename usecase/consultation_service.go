package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/domain/repositories"
	"github.com/satriahrh/aidoctor/internal/imaging"
	"github.com/satriahrh/aidoctor/internal/metrics"
	"github.com/satriahrh/aidoctor/internal/persona"
)

// TranscriptionErrorPrefix starts the voice text when transcription fails.
// The failure text is kept in the narrative so the other inputs still reach
// the model.
const TranscriptionErrorPrefix = "Error transcribing audio: "

// ProgressPublisher pushes pipeline events to the subscribers of a session
type ProgressPublisher interface {
	Publish(sessionID string, message interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

// ConsultationDeps are the collaborators of ConsultationService
type ConsultationDeps struct {
	Sessions  repositories.SessionRepository
	History   repositories.ConsultationRepository
	Artifacts repositories.ArtifactStore
	STT       repositories.SpeechToText
	Reasoner  repositories.Reasoner
	TTS       repositories.TextToSpeech
	Catalog   *persona.Catalog
	Images    *imaging.Processor
	Publisher ProgressPublisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// ConsultationConfig tunes the pipeline
type ConsultationConfig struct {
	Models     repositories.ReasoningModels
	SampleRate int
	SessionTTL time.Duration
}

// ConsultationService runs the collect, compose, reason and speak pipeline
// for one session at a time
type ConsultationService struct {
	sessions  repositories.SessionRepository
	history   repositories.ConsultationRepository
	artifacts repositories.ArtifactStore
	stt       repositories.SpeechToText
	reasoner  repositories.Reasoner
	tts       repositories.TextToSpeech
	catalog   *persona.Catalog
	images    *imaging.Processor
	publisher ProgressPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       ConsultationConfig

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewConsultationService validates the wiring and creates the service
func NewConsultationService(deps ConsultationDeps, cfg ConsultationConfig) (*ConsultationService, error) {
	switch {
	case deps.Sessions == nil, deps.History == nil, deps.Artifacts == nil:
		return nil, fmt.Errorf("%w: session, history and artifact stores are required", domain.ErrConfiguration)
	case deps.STT == nil, deps.Reasoner == nil, deps.TTS == nil:
		return nil, fmt.Errorf("%w: transcription, reasoning and speech services are required", domain.ErrConfiguration)
	case deps.Catalog == nil:
		return nil, fmt.Errorf("%w: prompt catalog is required", domain.ErrConfiguration)
	case cfg.Models.Vision == "":
		return nil, fmt.Errorf("%w: reasoning model is required", domain.ErrConfiguration)
	}

	s := &ConsultationService{
		sessions:  deps.Sessions,
		history:   deps.History,
		artifacts: deps.Artifacts,
		stt:       deps.STT,
		reasoner:  deps.Reasoner,
		tts:       deps.TTS,
		catalog:   deps.Catalog,
		images:    deps.Images,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}
	if s.images == nil {
		s.images = imaging.NewProcessor(imaging.DefaultConfig())
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// Catalog exposes the prompt and label table used by the service
func (s *ConsultationService) Catalog() *persona.Catalog {
	return s.catalog
}

// lock serializes mutations of one session
func (s *ConsultationService) lock(sessionID string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[sessionID] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (s *ConsultationService) forgetLock(sessionID string) {
	s.locksMu.Lock()
	delete(s.locks, sessionID)
	s.locksMu.Unlock()
}

// mutate loads the session, applies fn and stores the result under the session lock
func (s *ConsultationService) mutate(ctx context.Context, sessionID string, fn func(*entities.Session) error) (*entities.Session, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

func (s *ConsultationService) validateOptions(personaID entities.PersonaID, language entities.LanguageCode) error {
	if _, ok := s.catalog.Persona(personaID); !ok {
		return fmt.Errorf("%w: persona %q", domain.ErrUnsupportedOption, personaID)
	}
	if _, ok := s.catalog.Language(language); !ok {
		return fmt.Errorf("%w: language %q", domain.ErrUnsupportedOption, language)
	}
	return nil
}

// CreateSession starts an idle consultation. Empty persona or language pick
// the catalog defaults.
func (s *ConsultationService) CreateSession(ctx context.Context, personaID entities.PersonaID, language entities.LanguageCode) (*entities.Session, error) {
	if personaID == "" {
		personaID = s.catalog.DefaultPersona().ID
	}
	if language == "" {
		language = s.catalog.DefaultLanguage().Code
	}
	if err := s.validateOptions(personaID, language); err != nil {
		return nil, err
	}

	session := entities.NewSession(personaID, language, s.cfg.SessionTTL)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.metrics.SessionOpened()

	s.logger.Info("Consultation session created",
		zap.String("sessionID", session.ID),
		zap.String("persona", string(personaID)),
		zap.String("language", string(language)))
	return session, nil
}

// GetSession returns a snapshot of the session
func (s *ConsultationService) GetSession(ctx context.Context, sessionID string) (*entities.Session, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

// SetPersona switches the doctor persona, discarding a finished result
func (s *ConsultationService) SetPersona(ctx context.Context, sessionID string, personaID entities.PersonaID) (*entities.Session, error) {
	if _, ok := s.catalog.Persona(personaID); !ok {
		return nil, fmt.Errorf("%w: persona %q", domain.ErrUnsupportedOption, personaID)
	}
	return s.mutate(ctx, sessionID, func(session *entities.Session) error {
		hadResult := session.Result != nil
		if err := session.SetPersona(personaID); err != nil {
			return err
		}
		return s.dropReplyAudio(ctx, session, hadResult)
	})
}

// SetLanguage switches the UI and output language, discarding a finished result
func (s *ConsultationService) SetLanguage(ctx context.Context, sessionID string, language entities.LanguageCode) (*entities.Session, error) {
	if _, ok := s.catalog.Language(language); !ok {
		return nil, fmt.Errorf("%w: language %q", domain.ErrUnsupportedOption, language)
	}
	return s.mutate(ctx, sessionID, func(session *entities.Session) error {
		hadResult := session.Result != nil
		if err := session.SetLanguage(language); err != nil {
			return err
		}
		return s.dropReplyAudio(ctx, session, hadResult)
	})
}

func (s *ConsultationService) dropReplyAudio(ctx context.Context, session *entities.Session, hadResult bool) error {
	if !hadResult || session.Result != nil {
		return nil
	}
	return s.artifacts.Remove(ctx, session.ID, repositories.ArtifactDoctorAudio)
}

// AttachImage validates, downsizes and stores the picture of the affected area
func (s *ConsultationService) AttachImage(ctx context.Context, sessionID string, data []byte) (*entities.Session, error) {
	image, err := s.images.Process(data)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, sessionID, func(session *entities.Session) error {
		if !session.CanCollect() {
			return fmt.Errorf("%w: cannot change inputs while %s", domain.ErrInvalidTransition, session.State)
		}
		if _, err := s.artifacts.Save(ctx, session.ID, repositories.ArtifactImage, image.Data); err != nil {
			return fmt.Errorf("failed to store image: %w", err)
		}
		return session.AttachImage(image.MIMEType)
	})
}

// DetachImage removes the stored picture
func (s *ConsultationService) DetachImage(ctx context.Context, sessionID string) (*entities.Session, error) {
	return s.mutate(ctx, sessionID, func(session *entities.Session) error {
		if err := session.DetachImage(); err != nil {
			return err
		}
		return s.artifacts.Remove(ctx, session.ID, repositories.ArtifactImage)
	})
}

// AttachAudio stores the patient's voice recording
func (s *ConsultationService) AttachAudio(ctx context.Context, sessionID string, data []byte, mimeType string) (*entities.Session, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty recording", domain.ErrUnsupportedMedia)
	}
	if !isAudioMIME(mimeType) {
		return nil, fmt.Errorf("%w: %q is not an audio recording", domain.ErrUnsupportedMedia, mimeType)
	}
	return s.mutate(ctx, sessionID, func(session *entities.Session) error {
		if !session.CanCollect() {
			return fmt.Errorf("%w: cannot change inputs while %s", domain.ErrInvalidTransition, session.State)
		}
		if _, err := s.artifacts.Save(ctx, session.ID, repositories.ArtifactPatientAudio, data); err != nil {
			return fmt.Errorf("failed to store recording: %w", err)
		}
		return session.AttachAudio(mimeType)
	})
}

// browsers record webm/ogg and may label them as video
func isAudioMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/") ||
		strings.HasPrefix(mimeType, "video/webm") ||
		strings.HasPrefix(mimeType, "application/ogg")
}

// DetachAudio removes the stored recording
func (s *ConsultationService) DetachAudio(ctx context.Context, sessionID string) (*entities.Session, error) {
	return s.mutate(ctx, sessionID, func(session *entities.Session) error {
		if err := session.DetachAudio(); err != nil {
			return err
		}
		return s.artifacts.Remove(ctx, session.ID, repositories.ArtifactPatientAudio)
	})
}

// SetText replaces the written description. Whitespace-only text counts as absent.
func (s *ConsultationService) SetText(ctx context.Context, sessionID string, text string) (*entities.Session, error) {
	return s.mutate(ctx, sessionID, func(session *entities.Session) error {
		return session.SetText(strings.TrimSpace(text))
	})
}

// Compose builds the final prompt and the narrative shown to the user. The
// template must match the presence of the image.
func Compose(request entities.ConsultationRequest, template entities.PromptTemplate, placeholder string) (string, string, error) {
	if template.HasImage != request.HasImage() {
		return "", "", fmt.Errorf("%w: template %s/%s/image=%t used for a request with image=%t",
			domain.ErrConfiguration, template.Persona, template.Language, template.HasImage, request.HasImage())
	}
	narrative := entities.BuildNarrative(request.AudioText, request.HasAudio, request.FreeText, placeholder)
	return template.Text + narrative, narrative, nil
}

// Consult runs the pipeline for a ready session and returns its result.
// Input validation and configuration errors are returned before any external
// call. Failures of the external services degrade the result instead. When
// the run itself fails the session goes back to Ready.
func (s *ConsultationService) Consult(ctx context.Context, sessionID string) (*entities.ConsultationResult, error) {
	// A dispatched consultation runs to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	session, request, audio, template, err := s.prepare(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := s.run(ctx, session, request, audio, template)
	if err != nil {
		s.abort(ctx, session.ID, err)
		s.publishStage(session, domain.StageFailed, err.Error())
		s.metrics.Consultation(string(session.Persona), string(session.Language), "failed")
		return nil, err
	}
	return result, nil
}

// abort returns the stored session to Ready after a run failed midway, so it
// can be analyzed again or reset. The stored copy is reloaded because the
// in-memory one may hold a transition that never reached the store.
func (s *ConsultationService) abort(ctx context.Context, sessionID string, cause error) {
	logger := s.logger.With(zap.String("sessionID", sessionID), zap.NamedError("cause", cause))

	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		logger.Error("Failed to load session after a failed run", zap.Error(err))
		return
	}
	if err := session.Abort(); err != nil {
		logger.Warn("Session left as is after a failed run", zap.Error(err))
		return
	}
	if err := s.artifacts.Remove(ctx, sessionID, repositories.ArtifactDoctorAudio); err != nil {
		logger.Warn("Failed to remove reply audio", zap.Error(err))
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		logger.Error("Failed to restore session after a failed run", zap.Error(err))
		return
	}
	logger.Warn("Consultation aborted, session is ready again")
}

// prepare checks readiness, resolves the template, loads the artifacts and
// moves the session to Composing
func (s *ConsultationService) prepare(ctx context.Context, sessionID string) (*entities.Session, entities.ConsultationRequest, []byte, entities.PromptTemplate, error) {
	var (
		request  entities.ConsultationRequest
		audio    []byte
		template entities.PromptTemplate
	)

	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, request, nil, template, err
	}
	if !session.IsReady() {
		return nil, request, nil, template, domain.ErrInputValidation
	}
	if session.State != entities.StateReady {
		return nil, request, nil, template, fmt.Errorf("%w: cannot analyze while %s", domain.ErrInvalidTransition, session.State)
	}

	template, err = s.catalog.Resolve(session.Persona, session.Language, session.HasImage)
	if err != nil {
		return nil, request, nil, template, err
	}

	request = entities.ConsultationRequest{
		HasAudio: session.HasAudio,
		FreeText: session.Text,
		Persona:  session.Persona,
		Language: session.Language,
	}
	if session.HasImage {
		data, err := s.artifacts.Load(ctx, session.ID, repositories.ArtifactImage)
		if err != nil {
			return nil, request, nil, template, fmt.Errorf("failed to load image: %w", err)
		}
		request.Image = &entities.Image{Data: data, MIMEType: session.ImageMIME}
	}
	if session.HasAudio {
		audio, err = s.artifacts.Load(ctx, session.ID, repositories.ArtifactPatientAudio)
		if err != nil {
			return nil, request, nil, template, fmt.Errorf("failed to load recording: %w", err)
		}
	}

	if err := session.Transition(entities.StateComposing); err != nil {
		return nil, request, nil, template, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, request, nil, template, fmt.Errorf("failed to update session: %w", err)
	}
	return session, request, audio, template, nil
}

func (s *ConsultationService) run(ctx context.Context, session *entities.Session, request entities.ConsultationRequest, audio []byte, template entities.PromptTemplate) (*entities.ConsultationResult, error) {
	logger := s.logger.With(zap.String("sessionID", session.ID))
	start := time.Now()

	if request.HasAudio {
		s.publishStage(session, domain.StageTranscribing, "")
		request.AudioText = s.transcribe(ctx, session, audio, logger)
	}

	prompt, narrative, err := Compose(request, template, s.catalog.Label(session.Language, "placeholder.no_symptoms"))
	if err != nil {
		return nil, err
	}

	if err := s.advance(ctx, session, entities.StateAwaitingReasoning); err != nil {
		return nil, err
	}
	s.publishStage(session, domain.StageAnalyzing, "")

	result := &entities.ConsultationResult{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Narrative: narrative,
		Persona:   session.Persona,
		Language:  session.Language,
	}

	reply, model, err := s.reason(ctx, prompt, request.Image)
	if err != nil {
		logger.Error("Reasoning failed", zap.Error(err))
		s.metrics.Degraded("reasoning")
		result.ReplyText = s.catalog.Label(session.Language, "reply.error") + " " + err.Error()
		result.ReplyError = err.Error()
	} else {
		result.ReplyText = reply
		result.Model = model

		if err := s.advance(ctx, session, entities.StateAwaitingSpeech); err != nil {
			return nil, err
		}
		s.publishStage(session, domain.StageSpeaking, "")
		s.speak(ctx, session, result, logger)
	}

	result.CreatedAt = time.Now()
	if err := s.finish(ctx, session, result); err != nil {
		return nil, err
	}

	outcome := "complete"
	if result.ReplyError != "" || result.SpeechError != "" || strings.HasPrefix(request.AudioText, TranscriptionErrorPrefix) {
		outcome = "degraded"
	}
	s.metrics.Consultation(string(session.Persona), string(session.Language), outcome)

	logger.Info("Consultation completed",
		zap.String("outcome", outcome),
		zap.String("model", result.Model),
		zap.Bool("hasAudio", result.HasAudio),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// transcribe never fails: an error becomes the voice text
func (s *ConsultationService) transcribe(ctx context.Context, session *entities.Session, audio []byte, logger *zap.Logger) string {
	config := repositories.AudioConfig{
		SampleRate: s.cfg.SampleRate,
		MIMEType:   session.AudioMIME,
		Language:   string(session.Language),
	}
	if language, ok := s.catalog.Language(session.Language); ok {
		config.SpeechCode = language.SpeechCode
	}

	start := time.Now()
	text, err := s.stt.TranscribeAudio(ctx, audio, config)
	s.metrics.ObserveStage("transcribing", start, err)
	if err != nil {
		logger.Warn("Transcription failed, continuing with the error text", zap.Error(err))
		s.metrics.Degraded("transcription")
		return TranscriptionErrorPrefix + err.Error()
	}

	logger.Info("Transcription completed", zap.Int("length", len(text)))
	return text
}

// reason asks the vision model first. Text-only requests get exactly one
// retry on the text-only fallback model.
func (s *ConsultationService) reason(ctx context.Context, prompt string, image *entities.Image) (string, string, error) {
	models := s.cfg.Models
	attempts := []attempt[string]{{
		name: models.Vision,
		run: func(ctx context.Context) (string, error) {
			return s.reasoner.Complete(ctx, prompt, image, models.Vision)
		},
	}}
	if image == nil && models.Fallback != "" {
		attempts = append(attempts, attempt[string]{
			name: models.Fallback,
			run: func(ctx context.Context) (string, error) {
				s.metrics.Fallback("reasoning")
				s.logger.Warn("Retrying with text-only model", zap.String("model", models.Fallback))
				return s.reasoner.Complete(ctx, prompt, nil, models.Fallback)
			},
		})
	}

	start := time.Now()
	reply, idx, err := runAttempts(ctx, attempts)
	s.metrics.ObserveStage("analyzing", start, err)
	if err != nil {
		if !errors.Is(err, domain.ErrReasoning) {
			err = fmt.Errorf("%w: %v", domain.ErrReasoning, err)
		}
		return "", "", err
	}
	return reply, attempts[idx].name, nil
}

// speak synthesizes the reply in the session language, retrying once in the
// default language. Failures leave the result without audio.
func (s *ConsultationService) speak(ctx context.Context, session *entities.Session, result *entities.ConsultationResult, logger *zap.Logger) {
	languages := []entities.LanguageCode{session.Language}
	if def := s.catalog.DefaultLanguage().Code; def != session.Language {
		languages = append(languages, def)
	}

	attempts := make([]attempt[[]byte], 0, len(languages))
	for i, language := range languages {
		language, fallback := language, i > 0
		attempts = append(attempts, attempt[[]byte]{
			name: string(language),
			run: func(ctx context.Context) ([]byte, error) {
				if fallback {
					s.metrics.Fallback("speech")
					logger.Warn("Retrying speech synthesis in the default language", zap.String("language", string(language)))
				}
				return s.tts.Synthesize(ctx, result.ReplyText, string(language))
			},
		})
	}

	start := time.Now()
	audio, idx, err := runAttempts(ctx, attempts)
	s.metrics.ObserveStage("speaking", start, err)
	if err != nil {
		logger.Error("Speech synthesis failed", zap.Error(err))
		s.metrics.Degraded("speech")
		result.SpeechError = err.Error()
		return
	}

	path, err := s.artifacts.Save(ctx, session.ID, repositories.ArtifactDoctorAudio, audio)
	if err != nil {
		logger.Error("Failed to store reply audio", zap.Error(err))
		s.metrics.Degraded("speech")
		result.SpeechError = err.Error()
		return
	}
	result.AudioPath = path
	result.HasAudio = true
	result.SpeechLang = languages[idx]
}

func (s *ConsultationService) advance(ctx context.Context, session *entities.Session, next entities.SessionState) error {
	unlock := s.lock(session.ID)
	defer unlock()

	if err := session.Transition(next); err != nil {
		return err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *ConsultationService) finish(ctx context.Context, session *entities.Session, result *entities.ConsultationResult) error {
	unlock := s.lock(session.ID)
	if err := session.Complete(result); err != nil {
		unlock()
		return err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		unlock()
		return fmt.Errorf("failed to update session: %w", err)
	}
	unlock()

	if err := s.history.Save(ctx, result); err != nil {
		s.logger.Warn("Failed to save consultation history",
			zap.String("sessionID", session.ID),
			zap.Error(err))
	}

	s.publishStage(session, domain.StageComplete, "")
	s.publisher.Publish(session.ID, domain.ResultMessage{
		Type:      domain.MessageTypeResult,
		SessionID: session.ID,
		Narrative: result.Narrative,
		ReplyText: result.ReplyText,
		HasAudio:  result.HasAudio,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return nil
}

func (s *ConsultationService) publishStage(session *entities.Session, stage domain.Stage, errText string) {
	s.publisher.Publish(session.ID, domain.ProgressMessage{
		Type:      domain.MessageTypeProgress,
		SessionID: session.ID,
		Stage:     stage,
		Label:     s.catalog.Label(session.Language, "stage."+string(stage)),
		Error:     errText,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Result returns the finished consultation of the session
func (s *ConsultationService) Result(ctx context.Context, sessionID string) (*entities.ConsultationResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Result == nil {
		return nil, domain.ErrResultNotReady
	}
	return session.Result, nil
}

// ResultAudio returns the synthesized reply
func (s *ConsultationService) ResultAudio(ctx context.Context, sessionID string) ([]byte, error) {
	result, err := s.Result(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !result.HasAudio {
		return nil, fmt.Errorf("%w: consultation has no voice response", domain.ErrArtifactNotFound)
	}
	return s.artifacts.Load(ctx, sessionID, repositories.ArtifactDoctorAudio)
}

// Report renders the downloadable plain-text report of the finished consultation
func (s *ConsultationService) Report(ctx context.Context, sessionID string) (Report, error) {
	result, err := s.Result(ctx, sessionID)
	if err != nil {
		return Report{}, err
	}
	return BuildReport(s.catalog, result, time.Now())
}

// History lists earlier consultations of the session, newest first
func (s *ConsultationService) History(ctx context.Context, sessionID string, limit int) ([]*entities.ConsultationResult, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.history.ListBySession(ctx, sessionID, limit)
}

// Reset starts a new consultation under the same session: artifacts are
// cleared and the session returns to Idle
func (s *ConsultationService) Reset(ctx context.Context, sessionID string) (*entities.Session, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fresh, err := session.Reset()
	if err != nil {
		return nil, err
	}
	if err := s.artifacts.Clear(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to clear artifacts: %w", err)
	}
	if err := s.sessions.Update(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	s.logger.Info("Consultation reset", zap.String("sessionID", sessionID))
	return fresh, nil
}

// CleanupExpired deletes idle sessions past their TTL together with their artifacts
func (s *ConsultationService) CleanupExpired(ctx context.Context) (int, error) {
	ids, err := s.sessions.ListExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		if err := s.artifacts.Clear(ctx, id); err != nil {
			s.logger.Error("Failed to clear artifacts", zap.String("sessionID", id), zap.Error(err))
			continue
		}
		if err := s.sessions.Delete(ctx, id); err != nil {
			if !errors.Is(err, domain.ErrSessionNotFound) {
				s.logger.Error("Failed to delete expired session", zap.String("sessionID", id), zap.Error(err))
			}
			continue
		}
		s.forgetLock(id)
		s.metrics.SessionClosed()
		removed++
	}
	return removed, nil
}
