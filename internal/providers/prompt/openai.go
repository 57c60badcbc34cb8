package prompt

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"frameart/internal/providers/openaiapi"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	VisionModel  string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	OnWarning    func(reason, detail string)
}

// OpenAIWriter writes prompts with the chat completions API. Inspiration
// images go to a separate vision model.
type OpenAIWriter struct {
	api         *openaiapi.Client
	model       string
	visionModel string
}

const (
	defaultOpenAIModel       = "gpt-4.1"
	defaultOpenAIVisionModel = "gpt-4o"
)

// Supported chat models, plus spellings people type into .env files.
var openAIModels = map[string]string{
	"gpt-4.1":                "gpt-4.1",
	"gpt-4.1-mini":           "gpt-4.1-mini",
	"gpt-4o":                 "gpt-4o",
	"gpt-4o-mini":            "gpt-4o-mini",
	"gpt4.1":                 "gpt-4.1",
	"gpt-41":                 "gpt-4.1",
	"gpt4.1-mini":            "gpt-4.1-mini",
	"gpt4o":                  "gpt-4o",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-2024-08-06":      "gpt-4o",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a string, or []chatPart when an image is attached.
	Content any `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIWriter(opts OpenAIOptions) (*OpenAIWriter, error) {
	api, err := openaiapi.New(openaiapi.Options{
		APIKey:       opts.APIKey,
		BaseURL:      opts.BaseURL,
		Organization: opts.Organization,
		HTTPClient:   opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &OpenAIWriter{
		api:         api,
		model:       resolveOpenAIModel(opts.Model, defaultOpenAIModel, opts.OnWarning),
		visionModel: resolveOpenAIModel(opts.VisionModel, defaultOpenAIVisionModel, opts.OnWarning),
	}, nil
}

func (o *OpenAIWriter) Creative(ctx context.Context, req CreativeRequest) (Result, error) {
	raw, err := o.chat(ctx, chatRequest{
		Model:               o.model,
		MaxCompletionTokens: 2000,
		Messages: []chatMessage{
			{Role: "system", Content: creativeSystemPrompt},
			{Role: "user", Content: buildCreativeInstruction(req)},
		},
	})
	if err != nil {
		return Result{}, err
	}
	text, subjects := splitSubjects(raw)
	if text == "" {
		return Result{}, failure(openAIProviderName, "empty_prompt", nil)
	}
	return Result{Text: text, Subjects: subjects, Provider: openAIProviderName, Model: o.model}, nil
}

func (o *OpenAIWriter) Describe(ctx context.Context, ref Reference) (Result, error) {
	if len(ref.Data) == 0 {
		return Result{}, failure(openAIProviderName, "empty_reference", nil)
	}
	dataURL := "data:" + referenceMIME(ref) + ";base64," + base64.StdEncoding.EncodeToString(ref.Data)
	raw, err := o.chat(ctx, chatRequest{
		Model:               o.visionModel,
		MaxCompletionTokens: 300,
		Messages: []chatMessage{
			{Role: "system", Content: visionSystemPrompt},
			{Role: "user", Content: []chatPart{
				{Type: "text", Text: visionUserPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
			}},
		},
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Text: trimCodeFence(raw), Provider: openAIProviderName, Model: o.visionModel}, nil
}

func (o *OpenAIWriter) chat(ctx context.Context, req chatRequest) (string, error) {
	var out chatResponse
	if err := o.api.PostJSON(ctx, "/chat/completions", req, &out); err != nil {
		return "", failure(openAIProviderName, "request", err)
	}
	if len(out.Choices) == 0 {
		return "", failure(openAIProviderName, "empty_choices", nil)
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", failure(openAIProviderName, "empty_response", nil)
	}
	return text, nil
}

var _ Writer = (*OpenAIWriter)(nil)

// resolveOpenAIModel maps name onto a supported model and reports aliasing
// or a fallback through onWarning.
func resolveOpenAIModel(name, fallback string, onWarning func(reason, detail string)) string {
	model, reason := normalizeOpenAIModel(name, fallback)
	if reason != "" && onWarning != nil {
		onWarning("model_"+reason, fmt.Sprintf("requested=%s resolved=%s", coalesce(name, fallback), model))
	}
	return model
}

func normalizeOpenAIModel(name, fallback string) (model, reason string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fallback, ""
	}
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	canonical, ok := openAIModels[key]
	switch {
	case !ok:
		return fallback, "defaulted"
	case canonical != key:
		return canonical, "alias"
	default:
		return canonical, ""
	}
}
