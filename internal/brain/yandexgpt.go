package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// YandexGPTConfig configures the foundation-models completion endpoint.
type YandexGPTConfig struct {
	URL         string
	APIKey      string
	ModelURI    string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// YandexGPT calls the foundation-models completion API.
type YandexGPT struct {
	cfg    YandexGPTConfig
	client *http.Client
}

func NewYandexGPT(cfg YandexGPTConfig) *YandexGPT {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.6
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &YandexGPT{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type completionOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	// The vendor expects the token limit as a decimal string.
	MaxTokens string `json:"maxTokens"`
}

type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []Message         `json:"messages"`
}

type completionResponse struct {
	Result struct {
		Alternatives []struct {
			Message struct {
				Role string `json:"role"`
				Text string `json:"text"`
			} `json:"message"`
			Status string `json:"status"`
		} `json:"alternatives"`
	} `json:"result"`
}

func (c *YandexGPT) Complete(ctx context.Context, _ int64, msgs []Message) (string, error) {
	payload, err := json.Marshal(completionRequest{
		ModelURI: c.cfg.ModelURI,
		CompletionOptions: completionOptions{
			Stream:      false,
			Temperature: c.cfg.Temperature,
			MaxTokens:   fmt.Sprintf("%d", c.cfg.MaxTokens),
		},
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Api-Key "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(out.Result.Alternatives) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(out.Result.Alternatives[0].Message.Text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
