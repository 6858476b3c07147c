// Package httpx holds the HTTP client shared by every outbound call.
package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 60 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// ExternalHTTPClient returns the shared client for LLM and page fetch calls
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

// ConfigureExternalHTTPClient sets the shared timeout; seconds <= 0 restores the default.
func ConfigureExternalHTTPClient(seconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}
