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

// TranslateConfig configures the translation provider (LibreTranslate API).
type TranslateConfig struct {
	// BaseURL is the LibreTranslate instance root.
	BaseURL string `yaml:"base_url"`

	// APIKey is optional; public instances may require one.
	APIKey string `yaml:"api_key"`
}

// TranslateClient translates text via a LibreTranslate-compatible endpoint
// with automatic source-language detection.
type TranslateClient struct {
	cfg        TranslateConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTranslateClient creates a translation client from config.
func NewTranslateClient(cfg TranslateConfig, logger *slog.Logger) *TranslateClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://libretranslate.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &TranslateClient{
		cfg:        cfg,
		httpClient: newHTTPClient(),
		logger:     logger.With("component", "translate"),
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate returns text translated into targetLang (ISO 639-1 code).
func (c *TranslateClient) Translate(ctx context.Context, text, targetLang string) (string, error) {
	payload, err := json.Marshal(translateRequest{
		Q:      text,
		Source: "auto",
		Target: targetLang,
		APIKey: c.cfg.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("encoding translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading translate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed translateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding translate response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("translate API error: %s", parsed.Error)
	}
	if parsed.TranslatedText == "" {
		return "", fmt.Errorf("translate API returned empty text")
	}
	return parsed.TranslatedText, nil
}
