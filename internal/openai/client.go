// Package openai implements the chat-completion and image-generation
// collaborators against any OpenAI-compatible endpoint.
package openai

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

	"github.com/rs/zerolog"

	"github.com/kkkcccliang/wecom-chatgpt-app/internal/metrics"
	"github.com/kkkcccliang/wecom-chatgpt-app/internal/session"
)

// ErrUpstream wraps failures reported by the completion endpoint.
var ErrUpstream = errors.New("openai upstream error")

const defaultBaseURL = "https://api.openai.com/v1"

// Client is a typed HTTP client for the OpenAI-compatible API.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewClient creates a client. baseURL falls back to the public OpenAI
// endpoint when empty.
func NewClient(baseURL, apiKey, model string, temperature float64, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "openai").Logger(),
	}
}

type chatRequest struct {
	Model       string            `json:"model"`
	Messages    []session.Message `json:"messages"`
	Temperature float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type imageRequest struct {
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ChatCompletion sends the message list and returns the assistant reply
// with surrounding newlines trimmed.
func (c *Client) ChatCompletion(ctx context.Context, messages []session.Message) (string, error) {
	start := time.Now()
	var resp chatResponse
	err := c.post(ctx, "/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}, &resp)
	metrics.UpstreamLatency.WithLabelValues("chat").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstream, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUpstream)
	}
	return strings.Trim(resp.Choices[0].Message.Content, "\n"), nil
}

// ImageGeneration generates one 256x256 image and returns its URL.
func (c *Client) ImageGeneration(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	var resp imageResponse
	err := c.post(ctx, "/images/generations", imageRequest{
		Prompt:         prompt,
		N:              1,
		Size:           "256x256",
		ResponseFormat: "url",
	}, &resp)
	metrics.UpstreamLatency.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstream, resp.Error.Message)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("%w: no image returned", ErrUpstream)
	}
	return resp.Data[0].URL, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: status %d: %v", ErrUpstream, resp.StatusCode, err)
	}
	return nil
}
