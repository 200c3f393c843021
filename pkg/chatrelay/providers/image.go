package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ImageConfig configures the image generation provider (OpenAI images API).
type ImageConfig struct {
	// BaseURL is the API root. Defaults to the chat provider's endpoint
	// family so one key can serve both.
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token.
	APIKey string `yaml:"api_key"`

	// Model is the image model (e.g. "dall-e-3").
	Model string `yaml:"model"`

	// Size is the output resolution.
	Size string `yaml:"size"`
}

// ImageClient generates images from text prompts.
type ImageClient struct {
	cfg        ImageConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewImageClient creates an image generation client from config.
func NewImageClient(cfg ImageConfig, logger *slog.Logger) *ImageClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	return &ImageClient{
		cfg:        cfg,
		httpClient: newHTTPClient(),
		logger:     logger.With("component", "image"),
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate creates one image for the prompt and returns its URL.
func (c *ImageClient) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(imageRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		N:      1,
		Size:   c.cfg.Size,
	})
	if err != nil {
		return "", fmt.Errorf("encoding image request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/images/generations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading image response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("image API error",
			"status", resp.StatusCode,
			"body", truncate(string(body), 500),
		)
		return "", fmt.Errorf("image API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed imageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding image response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("image API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return "", fmt.Errorf("image API returned no image")
	}
	return parsed.Data[0].URL, nil
}
