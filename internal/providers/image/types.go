package image

import (
	"context"
	"fmt"
	"strings"

	"frameart/internal/domain"
)

// Provider names accepted by IMAGE_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderSynthetic = "synthetic"
)

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt      string
	AspectRatio string
	Quality     string
}

// Generator is the contract implemented by all image providers. Errors wrap
// domain.ErrGenerationFailed.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (domain.RawImage, error)
}

func failure(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrGenerationFailed, provider, err)
}

func normalizeFormat(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/webp":
		return "image/webp"
	case "":
		return "image/png"
	default:
		return strings.ToLower(strings.TrimSpace(mime))
	}
}
