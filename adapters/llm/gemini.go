package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

const (
	DefaultGeminiVisionModel   = "gemini-2.0-flash"
	DefaultGeminiFallbackModel = "gemini-2.0-flash-lite"

	defaultTemperature    = 0.4
	defaultTopP           = 0.95
	defaultTopK           = 40
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 60
)

// GeminiConfig holds generation settings for the Gemini reasoner
type GeminiConfig struct {
	APIKey          string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// GeminiReasoner implements repositories.Reasoner using Google's Gemini API
type GeminiReasoner struct {
	client          *genai.Client
	logger          *zap.Logger
	temperature     float32
	topP            float32
	topK            float32
	maxOutputTokens int
	timeout         time.Duration
	safetySettings  []*genai.SafetySetting
}

var _ repositories.Reasoner = (*GeminiReasoner)(nil)

// Medical questions trip the default thresholds; only block high-probability harm
var medicalSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("%w: Google AI API key is required", domain.ErrConfiguration)
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2, got %f", domain.ErrConfiguration, config.Temperature)
	}

	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("%w: topP must be between 0 and 1, got %f", domain.ErrConfiguration, config.TopP)
	}

	if config.TopK < 0 {
		return fmt.Errorf("%w: topK must be positive, got %f", domain.ErrConfiguration, config.TopK)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeout must be positive, got %d", domain.ErrConfiguration, config.TimeoutSeconds)
	}

	return nil
}

// NewGeminiReasoner creates a new Gemini reasoner
func NewGeminiReasoner(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiReasoner, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	r := &GeminiReasoner{
		client:          client,
		logger:          logger,
		temperature:     config.Temperature,
		topP:            config.TopP,
		topK:            config.TopK,
		maxOutputTokens: config.MaxOutputTokens,
		timeout:         time.Duration(config.TimeoutSeconds) * time.Second,
		safetySettings:  medicalSafetySettings,
	}
	if r.temperature == 0 {
		r.temperature = defaultTemperature
	}
	if r.topP == 0 {
		r.topP = defaultTopP
	}
	if r.topK == 0 {
		r.topK = defaultTopK
	}
	if r.maxOutputTokens == 0 {
		r.maxOutputTokens = defaultMaxTokens
	}
	if r.timeout == 0 {
		r.timeout = defaultTimeoutSeconds * time.Second
	}
	return r, nil
}

// Complete implements repositories.Reasoner
func (g *GeminiReasoner) Complete(ctx context.Context, prompt string, image *entities.Image, model string) (string, error) {
	contents := buildGeminiContents(prompt, image)

	config := &genai.GenerateContentConfig{
		SafetySettings:  g.safetySettings,
		Temperature:     genai.Ptr(g.temperature),
		TopP:            genai.Ptr(g.topP),
		TopK:            genai.Ptr(g.topK),
		MaxOutputTokens: int32(g.maxOutputTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	response, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrReasoning, err)
	}

	replyText := extractGeminiText(response)
	if replyText == "" {
		return "", fmt.Errorf("%w: model %s returned no content", domain.ErrReasoning, model)
	}

	g.logger.Info("Reasoning completed",
		zap.String("model", model),
		zap.Bool("withImage", image != nil),
		zap.Int("replyLength", len(replyText)))
	return replyText, nil
}

// buildGeminiContents places the prompt before the image in a single user turn
func buildGeminiContents(prompt string, image *entities.Image) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MIMEType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func extractGeminiText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
