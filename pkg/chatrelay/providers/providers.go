// Package providers implements the capability adapters the relay calls on
// behalf of users: chat completion, weather, translation, flight status,
// and image generation. Each adapter is a thin request/response client
// over net/http; the engine only interprets success or failure.
package providers

import (
	"net/http"
	"time"
)

// newHTTPClient builds the shared transport used by all adapters. No
// global timeout: each call carries a context deadline set by the caller,
// and chat completions can legitimately run long.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       120 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		},
	}
}

// truncate shortens s for log and error messages.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
