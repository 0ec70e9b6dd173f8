package repositories

import (
	"context"

	"github.com/satriahrh/aidoctor/domain/entities"
)

// Reasoner abstracts a hosted multimodal chat model
type Reasoner interface {
	// Complete sends prompt, and image when non-nil, to model and returns the reply text
	Complete(ctx context.Context, prompt string, image *entities.Image, model string) (string, error)
}

// ReasoningModels names the model used with images and the text-only fallback
type ReasoningModels struct {
	Vision   string `json:"vision"`
	Fallback string `json:"fallback"`
}
