package narrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/config"
)

// Client calls an OpenAI-compatible chat completions endpoint to turn
// buffered activity into one short spoken narration.
type Client struct {
	cfg        config.GeneratorConfig
	httpClient *http.Client
}

// NewClient builds a generator client. The API key is read from the
// configured environment variable at call time.
func NewClient(cfg config.GeneratorConfig) *Client {
	return &Client{cfg: cfg, httpClient: http.DefaultClient}
}

// HasAPIKey reports whether the configured key variable is set. The daemon
// uses this to decide whether narration can run at all.
func (c *Client) HasAPIKey() bool {
	return os.Getenv(c.cfg.APIKeyEnv) != ""
}

// Generate performs one chat completion call and returns the narration text.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	apiKey := os.Getenv(c.cfg.APIKeyEnv)
	if apiKey == "" {
		return "", fmt.Errorf("API key not set (%s)", c.cfg.APIKeyEnv)
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.6,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return parseResponse(respBody)
}

func parseResponse(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty narration in response")
	}
	return text, nil
}
