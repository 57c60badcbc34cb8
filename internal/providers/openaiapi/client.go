// Package openaiapi is the JSON transport shared by the OpenAI prompt writer
// and image generator.
package openaiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultTimeout = 120 * time.Second
	errorBodyLimit = 4 << 10
)

// APIError is a non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai status %d", e.Status)
	}
	return fmt.Sprintf("openai status %d: %s", e.Status, e.Message)
}

type Options struct {
	APIKey       string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
}

type Client struct {
	apiKey       string
	baseURL      string
	organization string
	http         *http.Client
}

func New(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("openai api key is required")
	}
	c := &Client{
		apiKey:       key,
		baseURL:      strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		organization: strings.TrimSpace(opts.Organization),
		http:         opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	return c, nil
}

// PostJSON sends in to baseURL+path and decodes the answer into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Download fetches a hosted result such as an image URL. No credentials are
// sent; those URLs are pre-signed.
func (c *Client) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("download: %w", readAPIError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// readAPIError accepts both {"error":{"message":...}} and {"error":"..."}.
func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) != nil || len(envelope.Error) == 0 {
		return apiErr
	}
	var detail struct {
		Message string `json:"message"`
	}
	var plain string
	switch {
	case json.Unmarshal(envelope.Error, &detail) == nil && detail.Message != "":
		apiErr.Message = detail.Message
	case json.Unmarshal(envelope.Error, &plain) == nil && plain != "":
		apiErr.Message = plain
	}
	return apiErr
}
