package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/domain/repositories"
)

// MockReasoner returns a canned assessment for local runs without credentials
type MockReasoner struct {
	logger *zap.Logger
}

// NewMockReasoner creates a new mock reasoner
func NewMockReasoner(logger *zap.Logger) repositories.Reasoner {
	return &MockReasoner{logger: logger}
}

// Complete implements repositories.Reasoner
func (m *MockReasoner) Complete(ctx context.Context, prompt string, image *entities.Image, model string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", domain.ErrReasoning)
	}
	m.logger.Info("Mock reasoning",
		zap.String("model", model),
		zap.Bool("withImage", image != nil))

	if image != nil {
		return "With what I see, it looks like mild skin irritation. Keep the area clean and dry, and see a doctor if it spreads.", nil
	}
	return "With what I see, it sounds like a common viral infection. Rest, drink plenty of fluids and see a doctor if the fever persists.", nil
}
