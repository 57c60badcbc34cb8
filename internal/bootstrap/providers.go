// Package bootstrap builds the provider clients the binaries share from
// infra.Config.
package bootstrap

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"frameart/internal/infra"
	"frameart/internal/providers/genai"
	"frameart/internal/providers/image"
	"frameart/internal/providers/prompt"
)

// HTTPClient is the client used for every provider call.
func HTTPClient(cfg *infra.Config) *http.Client {
	return &http.Client{Timeout: cfg.ProviderTimeout}
}

// PromptWriter returns the language model selected by PROMPT_PROVIDER.
func PromptWriter(cfg *infra.Config, client *http.Client, logger *infra.Logger) (prompt.Writer, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	switch cfg.PromptProvider {
	case "gemini":
		return prompt.NewGeminiWriter(prompt.GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiBaseURL,
			HTTPClient: client,
		})
	case "openai", "":
		return prompt.NewOpenAIWriter(prompt.OpenAIOptions{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			VisionModel:  cfg.OpenAIVisionModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   client,
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("reason", reason).Str("detail", detail).Msg("openai model adjusted")
			},
		})
	default:
		return nil, fmt.Errorf("unsupported prompt provider %q", cfg.PromptProvider)
	}
}

// ProviderForModel maps an image model name onto its provider.
func ProviderForModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case m == image.ProviderSynthetic:
		return image.ProviderSynthetic
	case strings.HasPrefix(m, "gemini"), strings.HasPrefix(m, "imagen"):
		return image.ProviderGemini
	default:
		return image.ProviderOpenAI
	}
}

// ImageGenerator returns the generator for provider. An empty model keeps
// the configured default of that provider.
func ImageGenerator(cfg *infra.Config, provider, model string, client *http.Client, logger *infra.Logger) (image.Generator, error) {
	switch provider {
	case image.ProviderSynthetic:
		return image.NewSyntheticGenerator(), nil
	case image.ProviderGemini:
		gc, err := genai.NewClient(genai.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			Model:      firstNonEmpty(model, cfg.GeminiImageModel),
			HTTPClient: client,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return image.NewGeminiGenerator(gc), nil
	case image.ProviderOpenAI:
		return image.NewOpenAIGenerator(image.OpenAIOptions{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        firstNonEmpty(model, cfg.OpenAIImageModel),
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			HTTPClient:   client,
		})
	default:
		return nil, fmt.Errorf("unsupported image provider %q", provider)
	}
}

// ImageGenerators builds one generator per model name.
func ImageGenerators(cfg *infra.Config, models []string, client *http.Client, logger *infra.Logger) (map[string]image.Generator, error) {
	out := make(map[string]image.Generator, len(models))
	for _, model := range models {
		provider := ProviderForModel(model)
		name := model
		if provider == image.ProviderSynthetic {
			name = ""
		}
		gen, err := ImageGenerator(cfg, provider, name, client, logger)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", model, err)
		}
		out[model] = gen
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
