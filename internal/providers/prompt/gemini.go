package prompt

import (
	"context"
	"net/http"
	"strings"

	"frameart/internal/providers/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiWriter writes prompts through a Gemini text model. The same model
// reads inspiration images.
type GeminiWriter struct {
	client *genai.Client
}

func NewGeminiWriter(opts GeminiOptions) (*GeminiWriter, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(genai.Options{
		APIKey:     opts.APIKey,
		BaseURL:    opts.BaseURL,
		Model:      model,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiWriter{client: client}, nil
}

func (g *GeminiWriter) Creative(ctx context.Context, req CreativeRequest) (Result, error) {
	text, err := g.ask(ctx, creativeSystemPrompt, 1.0, 2000, genai.TextPart(buildCreativeInstruction(req)))
	if err != nil {
		return Result{}, err
	}
	text, subjects := splitSubjects(text)
	if text == "" {
		return Result{}, failure(geminiProviderName, "empty_prompt", nil)
	}
	return Result{Text: text, Subjects: subjects, Provider: geminiProviderName, Model: g.client.Model()}, nil
}

func (g *GeminiWriter) Describe(ctx context.Context, ref Reference) (Result, error) {
	if len(ref.Data) == 0 {
		return Result{}, failure(geminiProviderName, "empty_reference", nil)
	}
	text, err := g.ask(ctx, visionSystemPrompt, 0.4, 400,
		genai.TextPart(visionUserPrompt),
		genai.InlinePart(referenceMIME(ref), ref.Data),
	)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: trimCodeFence(text), Provider: geminiProviderName, Model: g.client.Model()}, nil
}

func (g *GeminiWriter) ask(ctx context.Context, system string, temperature float64, maxTokens int, parts ...genai.Part) (string, error) {
	resp, err := g.client.GenerateContent(ctx, genai.Request{
		SystemInstruction: &genai.Content{Parts: []genai.Part{genai.TextPart(system)}},
		Contents:          []genai.Content{{Role: "user", Parts: parts}},
		GenerationConfig: &genai.GenerationConfig{
			Temperature:     temperature,
			CandidateCount:  1,
			MaxOutputTokens: maxTokens,
		},
	})
	if err != nil {
		return "", failure(geminiProviderName, "request", err)
	}
	text := resp.Text()
	if text == "" {
		return "", failure(geminiProviderName, "empty_response", nil)
	}
	return text, nil
}

var _ Writer = (*GeminiWriter)(nil)
