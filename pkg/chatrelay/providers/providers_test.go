package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLLMComplete(t *testing.T) {
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  你好!  "}},
			},
		})
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		Model:        "gpt-4o-mini",
		SystemPrompt: "請使用繁體中文回答",
	}, nil)

	answer, err := c.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if answer != "你好!" {
		t.Errorf("expected trimmed reply, got %q", answer)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("expected system prompt prepended, got %+v", gotReq.Messages)
	}
	if gotReq.MaxTokens != 500 {
		t.Errorf("expected default max_tokens 500, got %d", gotReq.MaxTokens)
	}
}

func TestLLMCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{BaseURL: srv.URL}, nil)
	if _, err := c.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatal("expected error on 429 response")
	}
}

func TestLLMCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{BaseURL: srv.URL}, nil)
	if _, err := c.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestWeatherCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/Taipei") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"current_condition": [{
				"temp_C": "28", "FeelsLikeC": "31", "humidity": "78",
				"windspeedKmph": "12",
				"weatherDesc": [{"value": "Partly cloudy"}],
				"lang_zh-tw": [{"value": "局部多雲"}]
			}],
			"nearest_area": [{"areaName": [{"value": "Taipei"}]}]
		}`))
	}))
	defer srv.Close()

	c := NewWeatherClient(WeatherConfig{BaseURL: srv.URL}, nil)
	report, err := c.Current(context.Background(), "Taipei")
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if report.Location != "Taipei" || report.TempC != "28" {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Description != "局部多雲" {
		t.Errorf("expected localized description, got %q", report.Description)
	}
	if s := report.String(); !strings.Contains(s, "28") {
		t.Errorf("formatted report missing temperature: %q", s)
	}
}

func TestWeatherCurrentMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current_condition": []}`))
	}))
	defer srv.Close()

	c := NewWeatherClient(WeatherConfig{BaseURL: srv.URL}, nil)
	if _, err := c.Current(context.Background(), "Nowhere"); err == nil {
		t.Fatal("expected error on empty conditions")
	}
}

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req translateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Source != "auto" || req.Target != "fr" {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{"translatedText": "Bonjour"})
	}))
	defer srv.Close()

	c := NewTranslateClient(TranslateConfig{BaseURL: srv.URL}, nil)
	got, err := c.Translate(context.Background(), "Hello", "fr")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "Bonjour" {
		t.Errorf("expected Bonjour, got %q", got)
	}
}

func TestTranslateAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported language"})
	}))
	defer srv.Close()

	c := NewTranslateClient(TranslateConfig{BaseURL: srv.URL}, nil)
	if _, err := c.Translate(context.Background(), "Hello", "xx"); err == nil {
		t.Fatal("expected error from API error body")
	}
}

func TestFlightStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("flight_iata"); got != "BR857" {
			t.Errorf("expected flight_iata BR857, got %q", got)
		}
		w.Write([]byte(`{"data": [{
			"flight_status": "active",
			"airline": {"name": "EVA Air"},
			"flight": {"iata": "BR857"},
			"departure": {"airport": "Taoyuan", "scheduled": "2026-08-28T10:00:00+08:00"},
			"arrival": {"airport": "Hong Kong Intl", "scheduled": "2026-08-28T12:05:00+08:00"}
		}]}`))
	}))
	defer srv.Close()

	c := NewFlightClient(FlightConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	status, err := c.Status(context.Background(), "br857")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Airline != "EVA Air" || status.Status != "active" {
		t.Errorf("unexpected status: %+v", status)
	}
	if s := status.String(); !strings.Contains(s, "BR857") {
		t.Errorf("formatted status missing flight number: %q", s)
	}
}

func TestFlightStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	c := NewFlightClient(FlightConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	if _, err := c.Status(context.Background(), "XX000"); err == nil {
		t.Fatal("expected error for unknown flight")
	}
}

func TestImageGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req imageRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.N != 1 || req.Prompt != "a cat in space" {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": "https://img.example/cat.png"}},
		})
	}))
	defer srv.Close()

	c := NewImageClient(ImageConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	url, err := c.Generate(context.Background(), "a cat in space")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if url != "https://img.example/cat.png" {
		t.Errorf("unexpected url %q", url)
	}
}

func TestImageGenerateEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	c := NewImageClient(ImageConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	if _, err := c.Generate(context.Background(), "nothing"); err == nil {
		t.Fatal("expected error on empty data")
	}
}
