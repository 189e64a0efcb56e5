// Package openai is a small client for the OpenAI transcription and chat
// completion endpoints used by Hamori.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hamori-app/hamori/internal/metrics"
	"github.com/hamori-app/hamori/internal/resilience"
)

var (
	// ErrMissingAPIKey is returned by every call when no API key is configured.
	ErrMissingAPIKey = errors.New("openai: api key not configured")

	// ErrEmptyResponse is returned when a completion has no choices.
	ErrEmptyResponse = errors.New("openai: empty completion")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	Language           string
	Timeout            time.Duration
}

// Client talks to the OpenAI HTTP API.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.Breaker[[]byte]
}

// New creates a Client. A nil httpClient uses a client with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: resilience.NewBreaker[[]byte]("openai", 30*time.Second, nil),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Transcribe sends an audio clip to the transcription endpoint and returns the text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !c.Configured() {
		metrics.ExternalCalls.WithLabelValues("openai", "transcribe", "skipped").Inc()
		return "", ErrMissingAPIKey
	}
	if filename == "" {
		filename = "audio.m4a"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	_ = w.WriteField("model", c.cfg.TranscriptionModel)
	if c.cfg.Language != "" {
		_ = w.WriteField("language", c.cfg.Language)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	respBody, err := c.do(ctx, "transcribe", "/audio/transcriptions", w.FormDataContentType(), body.Bytes())
	if err != nil {
		return "", err
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode transcription: %w", err)
	}
	return out.Text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete runs one chat completion and returns the first choice's content.
// With jsonMode the model is constrained to emit a JSON object.
func (c *Client) Complete(ctx context.Context, model, system, user string, jsonMode bool) (string, error) {
	if !c.Configured() {
		metrics.ExternalCalls.WithLabelValues("openai", "complete", "skipped").Inc()
		return "", ErrMissingAPIKey
	}

	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	respBody, err := c.do(ctx, "complete", "/chat/completions", "application/json", payload)
	if err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// do POSTs body to path through the circuit breaker and returns the response body.
func (c *Client) do(ctx context.Context, op, path, contentType string, body []byte) ([]byte, error) {
	start := time.Now()
	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", contentType)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("openai request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})

	outcome := "ok"
	switch {
	case resilience.IsRejected(err):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	metrics.ExternalCalls.WithLabelValues("openai", op, outcome).Inc()

	if err != nil {
		slog.Warn("OpenAI call failed", "operation", op, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	slog.Debug("OpenAI call ok", "operation", op, "duration_ms", time.Since(start).Milliseconds())
	return respBody, nil
}

// Completer binds a Client to one chat model.
type Completer struct {
	client   *Client
	model    string
	jsonMode bool
}

// Completer returns a Completer for model.
func (c *Client) Completer(model string, jsonMode bool) *Completer {
	return &Completer{client: c, model: model, jsonMode: jsonMode}
}

// Configured reports whether the underlying client has an API key.
func (c *Completer) Configured() bool {
	return c.client.Configured()
}

// Complete runs a chat completion with the bound model.
func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	return c.client.Complete(ctx, c.model, system, user, c.jsonMode)
}
