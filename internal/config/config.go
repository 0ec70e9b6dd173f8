// Package config loads the server and CLI settings from .env, an optional
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/satriahrh/aidoctor/domain"
)

// Reasoning providers
const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
	ProviderMock   = "mock"
)

// Transcription providers
const (
	STTGoogle  = "google"
	STTWhisper = "whisper"
	STTMock    = "mock"
)

// Speech providers
const (
	TTSElevenLabs = "elevenlabs"
	TTSMock       = "mock"
)

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Session   SessionConfig   `mapstructure:"session"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Image     ImageConfig     `mapstructure:"image"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	STT       STTConfig       `mapstructure:"stt"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type ArtifactsConfig struct {
	Dir          string `mapstructure:"dir"`
	ImageName    string `mapstructure:"image_name"`
	AudioName    string `mapstructure:"audio_name"`
	ResponseName string `mapstructure:"response_name"`
}

type ImageConfig struct {
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
	Quality   int `mapstructure:"quality"`
}

type ReasoningConfig struct {
	Provider      string  `mapstructure:"provider"`
	VisionModel   string  `mapstructure:"vision_model"`
	FallbackModel string  `mapstructure:"fallback_model"`
	GeminiAPIKey  string  `mapstructure:"gemini_api_key"`
	GroqAPIKey    string  `mapstructure:"groq_api_key"`
	GroqBaseURL   string  `mapstructure:"groq_base_url"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Timeout       int     `mapstructure:"timeout_seconds"`
}

type STTConfig struct {
	Provider     string `mapstructure:"provider"`
	WhisperModel string `mapstructure:"whisper_model"`
	SampleRate   int    `mapstructure:"sample_rate"`
}

type TTSConfig struct {
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	VoiceID      string        `mapstructure:"voice_id"`
	ModelID      string        `mapstructure:"model_id"`
	OutputFormat string        `mapstructure:"output_format"`
	Stability    float64       `mapstructure:"stability"`
	Clarity      float64       `mapstructure:"clarity"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type MongoConfig struct {
	URI       string        `mapstructure:"uri"`
	Database  string        `mapstructure:"database"`
	Retention time.Duration `mapstructure:"retention"`
}

// RedisConfig enables shared session storage when URL is set
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.max_upload_bytes", 20<<20)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.cleanup_interval", 5*time.Minute)

	v.SetDefault("artifacts.dir", "tmp/consultations")
	v.SetDefault("artifacts.image_name", "patient_image")
	v.SetDefault("artifacts.audio_name", "patient_audio")
	v.SetDefault("artifacts.response_name", "doctor_response.mp3")

	v.SetDefault("image.max_width", 2048)
	v.SetDefault("image.max_height", 2048)
	v.SetDefault("image.quality", 85)

	v.SetDefault("reasoning.provider", ProviderGroq)
	v.SetDefault("reasoning.groq_base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("reasoning.temperature", 0.4)
	v.SetDefault("reasoning.max_tokens", 1024)
	v.SetDefault("reasoning.timeout_seconds", 60)
	v.SetDefault("reasoning.vision_model", "")
	v.SetDefault("reasoning.fallback_model", "")

	v.SetDefault("stt.provider", STTWhisper)
	v.SetDefault("stt.sample_rate", 16000)
	v.SetDefault("stt.whisper_model", "")

	v.SetDefault("tts.provider", TTSElevenLabs)
	v.SetDefault("tts.timeout", 60*time.Second)
	v.SetDefault("tts.base_url", "")
	v.SetDefault("tts.stability", 0.0)
	v.SetDefault("tts.clarity", 0.0)

	v.SetDefault("mongo.database", "aidoctor")
	v.SetDefault("mongo.retention", time.Duration(0))

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "aidoctor:")

	v.SetDefault("catalog.path", "")

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_requests", 3)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.min_requests", 3)
	v.SetDefault("breaker.failure_ratio", 0.6)
}

// well-known variable names accepted without the AIDOCTOR_ prefix
func bindEnv(v *viper.Viper) {
	v.BindEnv("http.port", "PORT", "AIDOCTOR_HTTP_PORT")
	v.BindEnv("jwt.secret", "JWT_SECRET", "AIDOCTOR_JWT_SECRET")
	v.BindEnv("reasoning.gemini_api_key", "GEMINI_API_KEY", "AIDOCTOR_REASONING_GEMINI_API_KEY")
	v.BindEnv("reasoning.groq_api_key", "GROQ_API_KEY", "AIDOCTOR_REASONING_GROQ_API_KEY")
	v.BindEnv("tts.api_key", "ELEVEN_LABS_API_KEY", "AIDOCTOR_TTS_API_KEY")
	v.BindEnv("tts.voice_id", "ELEVEN_LABS_VOICE_ID", "AIDOCTOR_TTS_VOICE_ID")
	v.BindEnv("tts.model_id", "ELEVEN_LABS_MODEL_ID", "AIDOCTOR_TTS_MODEL_ID")
	v.BindEnv("tts.output_format", "ELEVEN_LABS_OUTPUT_FORMAT", "AIDOCTOR_TTS_OUTPUT_FORMAT")
	v.BindEnv("mongo.uri", "MONGODB_URI", "AIDOCTOR_MONGO_URI")
	v.BindEnv("mongo.database", "MONGODB_DATABASE", "AIDOCTOR_MONGO_DATABASE")
	v.BindEnv("redis.url", "REDIS_URL", "AIDOCTOR_REDIS_URL")
}

// Load reads .env (if present), an optional aidoctor.yaml and the environment.
// An explicit configFile must exist.
func Load(configFile string) (*Config, error) {
	// Missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AIDOCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("aidoctor")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyModelDefaults()

	return &cfg, nil
}

func (c *Config) applyModelDefaults() {
	switch c.Reasoning.Provider {
	case ProviderGemini:
		if c.Reasoning.VisionModel == "" {
			c.Reasoning.VisionModel = "gemini-2.0-flash"
		}
		if c.Reasoning.FallbackModel == "" {
			c.Reasoning.FallbackModel = "gemini-2.0-flash-lite"
		}
	case ProviderGroq:
		if c.Reasoning.VisionModel == "" {
			c.Reasoning.VisionModel = "meta-llama/llama-4-scout-17b-16e-instruct"
		}
		if c.Reasoning.FallbackModel == "" {
			c.Reasoning.FallbackModel = "llama-3.3-70b-versatile"
		}
	case ProviderMock:
		if c.Reasoning.VisionModel == "" {
			c.Reasoning.VisionModel = "mock-vision"
		}
		if c.Reasoning.FallbackModel == "" {
			c.Reasoning.FallbackModel = "mock-text"
		}
	}
	if c.STT.WhisperModel == "" {
		c.STT.WhisperModel = "whisper-large-v3"
	}
}

// Validate checks the settings the server needs. Missing provider
// credentials are configuration errors.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	errs = append(errs, c.pipelineErrors()...)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return nil
}

// ValidatePipeline checks only what a consultation needs, for the CLI
func (c *Config) ValidatePipeline() error {
	if err := errors.Join(c.pipelineErrors()...); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) pipelineErrors() []error {
	var errs []error

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir is required"))
	}

	switch c.Reasoning.Provider {
	case ProviderGemini:
		if c.Reasoning.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	case ProviderGroq:
		if c.Reasoning.GroqAPIKey == "" {
			errs = append(errs, errors.New("GROQ_API_KEY is required for the groq provider"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown reasoning provider %q", c.Reasoning.Provider))
	}

	switch c.STT.Provider {
	case STTWhisper:
		if c.Reasoning.GroqAPIKey == "" {
			errs = append(errs, errors.New("GROQ_API_KEY is required for whisper transcription"))
		}
	case STTGoogle, STTMock:
	default:
		errs = append(errs, fmt.Errorf("unknown stt provider %q", c.STT.Provider))
	}

	switch c.TTS.Provider {
	case TTSElevenLabs:
		if c.TTS.APIKey == "" {
			errs = append(errs, errors.New("ELEVEN_LABS_API_KEY is required for elevenlabs speech"))
		}
	case TTSMock:
	default:
		errs = append(errs, fmt.Errorf("unknown tts provider %q", c.TTS.Provider))
	}

	return errs
}
