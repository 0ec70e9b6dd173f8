package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

const (
	GroqBaseURL              = "https://api.groq.com/openai/v1"
	DefaultGroqVisionModel   = "meta-llama/llama-4-scout-17b-16e-instruct"
	DefaultGroqFallbackModel = "llama-3.3-70b-versatile"
	defaultOpenAITemperature = 0.2
	defaultOpenAIMaxTokens   = 1024
)

// OpenAIReasoner calls any OpenAI-compatible chat completion endpoint.
// Groq is the default deployment.
type OpenAIReasoner struct {
	client *openai.Client
	logger *zap.Logger
}

var _ repositories.Reasoner = (*OpenAIReasoner)(nil)

// NewOpenAIReasoner constructs a reasoner against baseURL. An empty baseURL
// keeps the go-openai default endpoint.
func NewOpenAIReasoner(apiKey, baseURL string, logger *zap.Logger) (*OpenAIReasoner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: reasoning API key is required", domain.ErrConfiguration)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIReasoner{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}, nil
}

// Complete implements repositories.Reasoner
func (o *OpenAIReasoner) Complete(ctx context.Context, prompt string, image *entities.Image, model string) (string, error) {
	if o.client == nil {
		return "", errors.New("openai client not initialized")
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    []openai.ChatCompletionMessage{buildUserMessage(prompt, image)},
		Temperature: defaultOpenAITemperature,
		MaxTokens:   defaultOpenAIMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrReasoning, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: model %s returned no choices", domain.ErrReasoning, model)
	}

	replyText := strings.TrimSpace(resp.Choices[0].Message.Content)
	if replyText == "" {
		return "", fmt.Errorf("%w: model %s returned an empty reply", domain.ErrReasoning, model)
	}

	o.logger.Info("Reasoning completed",
		zap.String("model", model),
		zap.Bool("withImage", image != nil),
		zap.Int("replyLength", len(replyText)))
	return replyText, nil
}

// buildUserMessage sends plain content for text-only prompts and a
// text + data URL pair when an image is attached
func buildUserMessage(prompt string, image *entities.Image) openai.ChatCompletionMessage {
	if image == nil || len(image.Data) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt}
	}

	mimeType := image.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)

	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
		},
	}
}
