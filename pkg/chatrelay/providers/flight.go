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

// FlightConfig configures the flight status provider (aviationstack API).
type FlightConfig struct {
	// BaseURL is the aviationstack-compatible API root.
	BaseURL string `yaml:"base_url"`

	// APIKey is the aviationstack access key.
	APIKey string `yaml:"api_key"`
}

// FlightStatus is the condensed status of one flight.
type FlightStatus struct {
	Flight           string
	Airline          string
	Status           string
	DepartureAirport string
	DepartureTime    string
	ArrivalAirport   string
	ArrivalTime      string
}

// String formats the status as a chat reply.
func (f *FlightStatus) String() string {
	return fmt.Sprintf("%s(%s)狀態:%s\n出發:%s %s\n抵達:%s %s",
		f.Flight, f.Airline, f.Status,
		f.DepartureAirport, f.DepartureTime,
		f.ArrivalAirport, f.ArrivalTime)
}

// FlightClient looks up flight status by IATA flight number.
type FlightClient struct {
	cfg        FlightConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFlightClient creates a flight status client from config.
func NewFlightClient(cfg FlightConfig, logger *slog.Logger) *FlightClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.aviationstack.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &FlightClient{
		cfg:        cfg,
		httpClient: newHTTPClient(),
		logger:     logger.With("component", "flight"),
	}
}

// flightsResponse mirrors the parts of the aviationstack /flights payload
// we use.
type flightsResponse struct {
	Data []struct {
		FlightStatus string `json:"flight_status"`
		Airline      struct {
			Name string `json:"name"`
		} `json:"airline"`
		Flight struct {
			IATA string `json:"iata"`
		} `json:"flight"`
		Departure struct {
			Airport   string `json:"airport"`
			Scheduled string `json:"scheduled"`
		} `json:"departure"`
		Arrival struct {
			Airport   string `json:"airport"`
			Scheduled string `json:"scheduled"`
		} `json:"arrival"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Status fetches the status of a flight by its IATA number (e.g. "BR857").
func (c *FlightClient) Status(ctx context.Context, flightNumber string) (*FlightStatus, error) {
	flightNumber = strings.ToUpper(strings.TrimSpace(flightNumber))

	endpoint := fmt.Sprintf("%s/flights?access_key=%s&flight_iata=%s",
		c.cfg.BaseURL, url.QueryEscape(c.cfg.APIKey), url.QueryEscape(flightNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating flight request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flight request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading flight response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flight API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed flightsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding flight response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("flight API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("no flight found for %s", flightNumber)
	}

	d := parsed.Data[0]
	return &FlightStatus{
		Flight:           flightNumber,
		Airline:          d.Airline.Name,
		Status:           d.FlightStatus,
		DepartureAirport: d.Departure.Airport,
		DepartureTime:    d.Departure.Scheduled,
		ArrivalAirport:   d.Arrival.Airport,
		ArrivalTime:      d.Arrival.Scheduled,
	}, nil
}
