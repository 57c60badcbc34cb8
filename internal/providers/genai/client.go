// Package genai talks to the Gemini generateContent endpoint. Prompt writing
// and image generation share the transport; each caller picks the model.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"frameart/internal/infra"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	DefaultImageModel = "gemini-2.5-flash-image"

	defaultTimeout = 180 * time.Second
	errorBodyLimit = 8 << 10
)

// ErrNoImage is returned when a response carries no image part.
var ErrNoImage = errors.New("gemini returned no image content")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.Status)
	}
	return fmt.Sprintf("gemini status %d: %s", e.Status, e.Message)
}

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is bound to one model.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  *infra.Logger
}

func NewClient(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("gemini api key is required")
	}
	c := &Client{
		apiKey:  key,
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		model:   strings.TrimSpace(opts.Model),
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultImageModel
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		nop := zerolog.Nop()
		c.logger = &nop
	}
	return c, nil
}

func (c *Client) Model() string { return c.model }

// Wire types of the generateContent API.
type (
	Request struct {
		SystemInstruction *Content          `json:"systemInstruction,omitempty"`
		Contents          []Content         `json:"contents"`
		GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	}

	Content struct {
		Role  string `json:"role,omitempty"`
		Parts []Part `json:"parts"`
	}

	Part struct {
		Text       string   `json:"text,omitempty"`
		InlineData *Blob    `json:"inlineData,omitempty"`
		FileData   *FileRef `json:"fileData,omitempty"`
	}

	Blob struct {
		MimeType string `json:"mimeType,omitempty"`
		Data     string `json:"data,omitempty"`
	}

	FileRef struct {
		MimeType string `json:"mimeType,omitempty"`
		FileURI  string `json:"fileUri,omitempty"`
	}

	GenerationConfig struct {
		Temperature        float64      `json:"temperature,omitempty"`
		CandidateCount     int          `json:"candidateCount,omitempty"`
		MaxOutputTokens    int          `json:"maxOutputTokens,omitempty"`
		ResponseModalities []string     `json:"responseModalities,omitempty"`
		ImageConfig        *ImageConfig `json:"imageConfig,omitempty"`
	}

	ImageConfig struct {
		AspectRatio string `json:"aspectRatio,omitempty"`
	}

	Response struct {
		Candidates []Candidate `json:"candidates"`
	}

	Candidate struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	}
)

// TextPart and InlinePart build request parts.
func TextPart(s string) Part { return Part{Text: s} }

func InlinePart(mime string, data []byte) Part {
	return Part{InlineData: &Blob{MimeType: mime, Data: base64.StdEncoding.EncodeToString(data)}}
}

// Text joins the text parts of the first candidate that has any.
func (r *Response) Text() string {
	for _, cand := range r.Candidates {
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s
		}
	}
	return ""
}

// GenerateContent posts req to the client's model.
func (c *Client) GenerateContent(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	endpoint := c.baseURL + "/models/" + url.PathEscape(c.model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// do sends the request with the api key header and turns error statuses
// into *APIError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
	}
	return nil, apiErr
}

// ImageRequest asks an image model for one picture.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
}

// ImageAsset is the first image found in a response.
type ImageAsset struct {
	URL    string
	Format string
	Width  int
	Height int
	Data   []byte
}

// GenerateImage renders req.Prompt and returns the first image part. A
// candidate that stops for any reason but STOP without an image yields
// ErrNoImage carrying that reason.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}
	cfg := &GenerationConfig{ResponseModalities: []string{"IMAGE"}}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		cfg.ImageConfig = &ImageConfig{AspectRatio: aspect}
	}
	resp, err := c.GenerateContent(ctx, Request{
		Contents:         []Content{{Role: "user", Parts: []Part{TextPart(prompt)}}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			asset, err := c.imageFrom(ctx, part)
			if err != nil {
				return nil, err
			}
			if asset == nil {
				continue
			}
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(asset.Data)); err == nil {
				asset.Width, asset.Height = cfg.Width, cfg.Height
			}
			if asset.Format == "" {
				asset.Format = "image/png"
			}
			c.logger.Debug().
				Str("model", c.model).
				Int("width", asset.Width).
				Int("height", asset.Height).
				Msg("genai: image received")
			return asset, nil
		}
		if cand.FinishReason != "" && cand.FinishReason != "STOP" {
			return nil, fmt.Errorf("%w: finish reason %s", ErrNoImage, cand.FinishReason)
		}
	}
	return nil, ErrNoImage
}

// imageFrom returns nil for parts that carry no image.
func (c *Client) imageFrom(ctx context.Context, part Part) (*ImageAsset, error) {
	switch {
	case part.InlineData != nil && part.InlineData.Data != "":
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline data: %w", err)
		}
		return &ImageAsset{Data: data, Format: part.InlineData.MimeType}, nil
	case part.FileData != nil && part.FileData.FileURI != "":
		data, mime, err := c.fetch(ctx, part.FileData.FileURI)
		if err != nil {
			return nil, err
		}
		format := part.FileData.MimeType
		if format == "" {
			format = mime
		}
		return &ImageAsset{Data: data, Format: format, URL: part.FileData.FileURI}, nil
	}
	return nil, nil
}

// fetch downloads a file part. Relative URIs resolve against the base URL.
func (c *Client) fetch(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if u, err := url.Parse(uri); err != nil || !u.IsAbs() {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", uri, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", uri, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
