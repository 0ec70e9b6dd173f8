// Package app assembles the consultation service from configuration. The
// server and the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/adapters"
	"github.com/satriahrh/aidoctor/adapters/artifacts"
	"github.com/satriahrh/aidoctor/adapters/breaker"
	"github.com/satriahrh/aidoctor/adapters/llm"
	"github.com/satriahrh/aidoctor/adapters/mongo"
	"github.com/satriahrh/aidoctor/adapters/redis"
	"github.com/satriahrh/aidoctor/adapters/stt"
	"github.com/satriahrh/aidoctor/adapters/tts"
	"github.com/satriahrh/aidoctor/domain/repositories"
	"github.com/satriahrh/aidoctor/internal/config"
	"github.com/satriahrh/aidoctor/internal/imaging"
	"github.com/satriahrh/aidoctor/internal/metrics"
	"github.com/satriahrh/aidoctor/internal/persona"
	"github.com/satriahrh/aidoctor/usecase"
)

// App holds the wired service and the resources that need closing
type App struct {
	Service  *usecase.ConsultationService
	Catalog  *persona.Catalog
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	closers []func(ctx context.Context) error
	logger  *zap.Logger
}

// Option customizes New
type Option func(*App)

// WithMetrics shares a registry and collectors created by the caller, for
// components built before the app such as the websocket hub
func WithMetrics(registry *prometheus.Registry, m *metrics.Metrics) Option {
	return func(a *App) {
		a.Registry = registry
		a.Metrics = m
	}
}

// New builds every adapter named by cfg. publisher may be nil.
func New(ctx context.Context, cfg *config.Config, publisher usecase.ProgressPublisher, logger *zap.Logger, opts ...Option) (*App, error) {
	a := &App{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.Registry == nil {
		a.Registry = prometheus.NewRegistry()
		a.Metrics = metrics.New(a.Registry)
	}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	catalog, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	a.Catalog = catalog

	store, err := artifacts.NewFilesystemStore(cfg.Artifacts.Dir, artifacts.FileNames{
		Image:        cfg.Artifacts.ImageName,
		PatientAudio: cfg.Artifacts.AudioName,
		DoctorAudio:  cfg.Artifacts.ResponseName,
	}, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := a.sessions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	history, err := a.history(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reasoner, err := newReasoner(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	speechToText, err := a.speechToText(ctx, cfg)
	if err != nil {
		return nil, err
	}
	textToSpeech, err := newTextToSpeech(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Breaker.Enabled {
		settings := breaker.Settings{
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
		}
		reasoner = breaker.NewReasoner(reasoner, settings, logger)
		speechToText = breaker.NewSpeechToText(speechToText, settings, logger)
		textToSpeech = breaker.NewTextToSpeech(textToSpeech, settings, logger)
	}

	service, err := usecase.NewConsultationService(usecase.ConsultationDeps{
		Sessions:  sessions,
		History:   history,
		Artifacts: store,
		STT:       speechToText,
		Reasoner:  reasoner,
		TTS:       textToSpeech,
		Catalog:   catalog,
		Images: imaging.NewProcessor(imaging.Config{
			MaxWidth:  cfg.Image.MaxWidth,
			MaxHeight: cfg.Image.MaxHeight,
			Quality:   cfg.Image.Quality,
		}),
		Publisher: publisher,
		Metrics:   a.Metrics,
		Logger:    logger,
	}, usecase.ConsultationConfig{
		Models: repositories.ReasoningModels{
			Vision:   cfg.Reasoning.VisionModel,
			Fallback: cfg.Reasoning.FallbackModel,
		},
		SampleRate: cfg.STT.SampleRate,
		SessionTTL: cfg.Session.TTL,
	})
	if err != nil {
		return nil, err
	}
	a.Service = service

	logger.Info("Consultation service ready",
		zap.String("reasoning", cfg.Reasoning.Provider),
		zap.String("visionModel", cfg.Reasoning.VisionModel),
		zap.String("fallbackModel", cfg.Reasoning.FallbackModel),
		zap.String("stt", cfg.STT.Provider),
		zap.String("tts", cfg.TTS.Provider),
		zap.Bool("mongo", cfg.Mongo.URI != ""))

	ok = true
	return a, nil
}

// Close releases external connections in reverse order
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

func loadCatalog(path string) (*persona.Catalog, error) {
	if path == "" {
		return persona.LoadDefault()
	}
	return persona.LoadFile(path)
}

// sessions are shared through Redis when configured. The per-session lock
// stays in process, so one instance must own a session at a time.
func (a *App) sessions(ctx context.Context, cfg *config.Config) (repositories.SessionRepository, error) {
	if cfg.Redis.URL == "" {
		return adapters.NewMemorySessionRepository(), nil
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.URL, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	return redis.NewSessionRepository(rdb, cfg.Redis.KeyPrefix, a.logger), nil
}

func (a *App) history(ctx context.Context, cfg *config.Config) (repositories.ConsultationRepository, error) {
	if cfg.Mongo.URI == "" {
		return adapters.NewMemoryConsultationRepository(), nil
	}

	client, err := mongo.NewClient(ctx, cfg.Mongo.URI, cfg.Mongo.Database, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	return mongo.NewConsultationRepository(ctx, client.Database, cfg.Mongo.Retention, a.logger)
}

func newReasoner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Reasoner, error) {
	switch cfg.Reasoning.Provider {
	case config.ProviderGemini:
		return llm.NewGeminiReasoner(ctx, llm.GeminiConfig{
			APIKey:          cfg.Reasoning.GeminiAPIKey,
			Temperature:     cfg.Reasoning.Temperature,
			MaxOutputTokens: cfg.Reasoning.MaxTokens,
			TimeoutSeconds:  cfg.Reasoning.Timeout,
		}, logger)
	case config.ProviderGroq:
		return llm.NewOpenAIReasoner(cfg.Reasoning.GroqAPIKey, cfg.Reasoning.GroqBaseURL, logger)
	case config.ProviderMock:
		return llm.NewMockReasoner(logger), nil
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Reasoning.Provider)
	}
}

func (a *App) speechToText(ctx context.Context, cfg *config.Config) (repositories.SpeechToText, error) {
	switch cfg.STT.Provider {
	case config.STTGoogle:
		google, err := stt.NewGoogleSpeechToText(ctx, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return google.Close() })
		return google, nil
	case config.STTWhisper:
		return stt.NewWhisperSpeechToText(cfg.Reasoning.GroqAPIKey, cfg.Reasoning.GroqBaseURL, cfg.STT.WhisperModel, a.logger)
	case config.STTMock:
		return stt.NewMockSpeechToText(a.logger), nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
	}
}

func newTextToSpeech(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.TTS.Provider {
	case config.TTSElevenLabs:
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.TTS.APIKey,
			APIBaseURL:   cfg.TTS.BaseURL,
			VoiceID:      cfg.TTS.VoiceID,
			ModelID:      cfg.TTS.ModelID,
			OutputFormat: cfg.TTS.OutputFormat,
			Stability:    cfg.TTS.Stability,
			Clarity:      cfg.TTS.Clarity,
			Timeout:      cfg.TTS.Timeout,
		}, logger)
	case config.TTSMock:
		return tts.NewMockTTS(logger), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTS.Provider)
	}
}
