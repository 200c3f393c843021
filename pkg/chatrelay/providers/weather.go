package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// WeatherConfig configures the weather provider. wttr.in needs no API key.
type WeatherConfig struct {
	// BaseURL is the wttr.in-compatible endpoint root.
	BaseURL string `yaml:"base_url"`

	// Lang is the language code passed to wttr.in (e.g. "zh-tw").
	Lang string `yaml:"lang"`
}

// WeatherReport is the condensed current-conditions report.
type WeatherReport struct {
	Location    string
	Description string
	TempC       string
	FeelsLikeC  string
	Humidity    string
	WindKmph    string
}

// String formats the report as a chat reply.
func (r *WeatherReport) String() string {
	return fmt.Sprintf("%s:%s 氣溫 %s°C(體感 %s°C),濕度 %s%%,風速 %s km/h",
		r.Location, r.Description, r.TempC, r.FeelsLikeC, r.Humidity, r.WindKmph)
}

// WeatherClient fetches current conditions from wttr.in's JSON format.
type WeatherClient struct {
	cfg        WeatherConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWeatherClient creates a weather client from config.
func NewWeatherClient(cfg WeatherConfig, logger *slog.Logger) *WeatherClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://wttr.in"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Lang == "" {
		cfg.Lang = "zh-tw"
	}
	return &WeatherClient{
		cfg:        cfg,
		httpClient: newHTTPClient(),
		logger:     logger.With("component", "weather"),
	}
}

// wttrResponse mirrors the parts of wttr.in's ?format=j1 payload we use.
type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		FeelsLikeC  string `json:"FeelsLikeC"`
		Humidity    string `json:"humidity"`
		WindKmph    string `json:"windspeedKmph"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
		LangDesc []struct {
			Value string `json:"value"`
		} `json:"lang_zh-tw"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []struct {
			Value string `json:"value"`
		} `json:"areaName"`
	} `json:"nearest_area"`
}

// Current fetches the current conditions for a location.
func (c *WeatherClient) Current(ctx context.Context, location string) (*WeatherReport, error) {
	endpoint := fmt.Sprintf("%s/%s?format=j1&lang=%s",
		c.cfg.BaseURL, url.PathEscape(location), url.QueryEscape(c.cfg.Lang))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed wttrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding weather response: %w", err)
	}
	if len(parsed.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather response has no current conditions")
	}

	cond := parsed.CurrentCondition[0]
	report := &WeatherReport{
		Location:   location,
		TempC:      cond.TempC,
		FeelsLikeC: cond.FeelsLikeC,
		Humidity:   cond.Humidity,
		WindKmph:   cond.WindKmph,
	}
	if len(parsed.NearestArea) > 0 && len(parsed.NearestArea[0].AreaName) > 0 {
		report.Location = parsed.NearestArea[0].AreaName[0].Value
	}
	// Prefer the localized description when wttr.in provides one.
	switch {
	case len(cond.LangDesc) > 0:
		report.Description = cond.LangDesc[0].Value
	case len(cond.WeatherDesc) > 0:
		report.Description = cond.WeatherDesc[0].Value
	}
	return report, nil
}
