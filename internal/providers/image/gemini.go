package image

import (
	"context"
	"fmt"
	"strings"

	"frameart/internal/domain"
	"frameart/internal/providers/genai"
)

type geminiImageClient interface {
	GenerateImage(context.Context, genai.ImageRequest) (*genai.ImageAsset, error)
	Model() string
}

// GeminiGenerator renders stills through a Gemini image model.
type GeminiGenerator struct {
	client geminiImageClient
}

func NewGeminiGenerator(client geminiImageClient) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (domain.RawImage, error) {
	if g == nil || g.client == nil {
		return domain.RawImage{}, failure(ProviderGemini, fmt.Errorf("generator not configured"))
	}
	aspect := strings.TrimSpace(req.AspectRatio)
	if aspect == "" {
		aspect = domain.TargetAspect
	}
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      req.Prompt,
		AspectRatio: aspect,
	})
	if err != nil {
		return domain.RawImage{}, failure(ProviderGemini, err)
	}
	if asset == nil || len(asset.Data) == 0 {
		return domain.RawImage{}, failure(ProviderGemini, genai.ErrNoImage)
	}
	return domain.RawImage{
		Data:     asset.Data,
		MIME:     normalizeFormat(asset.Format),
		Width:    asset.Width,
		Height:   asset.Height,
		Provider: ProviderGemini,
		Model:    g.client.Model(),
	}, nil
}

func (g *GeminiGenerator) String() string {
	if g == nil || g.client == nil {
		return ProviderGemini
	}
	return g.client.Model()
}

var _ Generator = (*GeminiGenerator)(nil)
