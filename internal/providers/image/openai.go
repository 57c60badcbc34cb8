package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"frameart/internal/domain"
	"frameart/internal/providers/openaiapi"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	Size         string
	Quality      string
	HTTPClient   *http.Client
}

// OpenAIGenerator renders stills with the images/generations endpoint.
type OpenAIGenerator struct {
	api     *openaiapi.Client
	model   string
	size    string
	quality string
}

const (
	defaultOpenAIImageModel = "gpt-image-1"
	// Widest landscape size gpt-image-1 offers.
	defaultOpenAIImageSize    = "1536x1024"
	defaultOpenAIImageQuality = "high"
)

type imagesRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	api, err := openaiapi.New(openaiapi.Options{
		APIKey:       opts.APIKey,
		BaseURL:      opts.BaseURL,
		Organization: opts.Organization,
		HTTPClient:   opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &OpenAIGenerator{
		api:     api,
		model:   firstNonEmpty(opts.Model, defaultOpenAIImageModel),
		size:    firstNonEmpty(opts.Size, defaultOpenAIImageSize),
		quality: firstNonEmpty(opts.Quality, defaultOpenAIImageQuality),
	}, nil
}

func (o *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (domain.RawImage, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return domain.RawImage{}, failure(ProviderOpenAI, errors.New("prompt is required"))
	}
	var out imagesResponse
	err := o.api.PostJSON(ctx, "/images/generations", imagesRequest{
		Model:   o.model,
		Prompt:  prompt,
		N:       1,
		Size:    o.size,
		Quality: firstNonEmpty(req.Quality, o.quality),
	}, &out)
	if err != nil {
		return domain.RawImage{}, failure(ProviderOpenAI, err)
	}
	if len(out.Data) == 0 {
		return domain.RawImage{}, failure(ProviderOpenAI, errors.New("empty data"))
	}

	raw := domain.RawImage{Provider: ProviderOpenAI, Model: o.model}
	switch item := out.Data[0]; {
	case item.B64JSON != "":
		raw.Data, err = base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return domain.RawImage{}, failure(ProviderOpenAI, fmt.Errorf("decode b64_json: %w", err))
		}
	case item.URL != "":
		raw.Data, raw.MIME, err = o.api.Download(ctx, item.URL)
		if err != nil {
			return domain.RawImage{}, failure(ProviderOpenAI, err)
		}
	default:
		return domain.RawImage{}, failure(ProviderOpenAI, errors.New("response carried no image"))
	}

	// Trust the bytes over the declared type.
	raw.MIME = normalizeFormat(raw.MIME)
	if cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(raw.Data)); err == nil {
		raw.Width, raw.Height = cfg.Width, cfg.Height
		raw.MIME = normalizeFormat("image/" + format)
	}
	return raw, nil
}

func (o *OpenAIGenerator) String() string {
	return o.model
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ Generator = (*OpenAIGenerator)(nil)
