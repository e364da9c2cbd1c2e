package webfm

import (
	"fmt"
	"os"
	"strings"

	"github.com/webfm/webfm_sdk_go/internal/httpx"
)

const (
	envAPIURL = "WEBFM_API_URL"
)

// NewFromEnv initialises an HTTP client from WEBFM_API_URL.
func NewFromEnv(opts ...httpx.Option) (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv(envAPIURL))
	if baseURL == "" {
		return nil, fmt.Errorf("webfm: HTTP mode requires %s", envAPIURL)
	}
	client, err := New(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("webfm: init HTTP client: %w", err)
	}
	return client, nil
}
