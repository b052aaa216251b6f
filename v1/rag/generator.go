package rag

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

const systemPrompt = "You answer questions about a legal document. Use only the numbered excerpts " +
	"below. If they do not contain the answer, say so."

// HTTPGenerator calls the /chat/completions endpoint of an OpenAI-compatible
// API.
type HTTPGenerator struct {
	cfg        GeneratorConfig
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGenerator returns a generator for cfg.
func NewHTTPGenerator(cfg GeneratorConfig) (*HTTPGenerator, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("generator: endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("generator: model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGenerator{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Messages builds the chat transcript sent for req: the system prompt with
// the excerpts, the history and the question.
func Messages(req GenerationRequest) []Message {
	var b strings.Builder
	b.WriteString(systemPrompt)
	for i, passage := range req.Context {
		fmt.Fprintf(&b, "\n\n[%d] %s", i+1, passage)
	}
	msgs := make([]Message, 0, len(req.History)+2)
	msgs = append(msgs, Message{Role: "system", Content: b.String()})
	msgs = append(msgs, req.History...)
	msgs = append(msgs, Message{Role: "user", Content: req.Question})
	return msgs
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Generate sends req and returns the first choice.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.cfg.Model,
		Messages:    Messages(req),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := g.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("http %d for %s: %s", resp.StatusCode, url, bytes.TrimSpace(snippet))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("generator: response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
