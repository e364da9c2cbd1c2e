package webfm_sdk

import (
	"fmt"
	"os"
	"strings"

	"github.com/webfm/webfm_sdk_go/internal/devseed"
	"github.com/webfm/webfm_sdk_go/internal/httpx"
	"github.com/webfm/webfm_sdk_go/pkg/webfm"
	"github.com/webfm/webfm_sdk_go/pkg/webfm/mock"
)

const (
	envMode         = "WEBFM_RUNTIME_MODE"
	envAPIURL       = "WEBFM_API_URL"
	envMockSeed     = "WEBFM_MOCK_SEED"
	envMockHostname = "WEBFM_MOCK_HOSTNAME"

	ModeAuto = "auto"
	ModeHTTP = "http"
	ModeMock = "mock"
)

// Settings selects and configures the backend. An empty Mode means auto.
type Settings struct {
	Mode         string
	URL          string
	MockSeed     string
	MockHostname string
	HTTPOptions  []httpx.Option
}

// Runtime is a bootstrapped client. Mock is set only in mock mode.
type Runtime struct {
	Client *webfm.Client
	Mode   string
	Mock   *mock.Mock
}

// NewFromEnv reads WEBFM_RUNTIME_MODE, WEBFM_API_URL, WEBFM_MOCK_SEED and
// WEBFM_MOCK_HOSTNAME and returns the client with the resolved mode
// ("http" or "mock").
func NewFromEnv(opts ...httpx.Option) (*webfm.Client, string, error) {
	rt, err := New(Settings{
		Mode:         os.Getenv(envMode),
		URL:          os.Getenv(envAPIURL),
		MockSeed:     os.Getenv(envMockSeed),
		MockHostname: os.Getenv(envMockHostname),
		HTTPOptions:  opts,
	})
	if err != nil {
		return nil, "", err
	}
	return rt.Client, rt.Mode, nil
}

// New resolves s into a runtime. Auto picks HTTP when a URL is present.
func New(s Settings) (*Runtime, error) {
	mode := strings.ToLower(strings.TrimSpace(s.Mode))
	baseURL := strings.TrimSpace(s.URL)

	switch mode {
	case ModeAuto, "":
		if baseURL != "" {
			return newHTTPRuntime(baseURL, s.HTTPOptions)
		}
		return newMockRuntime(s)
	case ModeHTTP:
		if baseURL == "" {
			return nil, fmt.Errorf("webfm_sdk: HTTP mode requires %s", envAPIURL)
		}
		return newHTTPRuntime(baseURL, s.HTTPOptions)
	case ModeMock:
		return newMockRuntime(s)
	default:
		return nil, fmt.Errorf("webfm_sdk: unsupported %s value %q", envMode, mode)
	}
}

func newHTTPRuntime(baseURL string, opts []httpx.Option) (*Runtime, error) {
	client, err := webfm.New(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("webfm_sdk: init HTTP client: %w", err)
	}
	return &Runtime{Client: client, Mode: ModeHTTP}, nil
}

func newMockRuntime(s Settings) (*Runtime, error) {
	var opts []mock.Option
	if name := strings.TrimSpace(s.MockHostname); name != "" {
		opts = append(opts, mock.WithHostname(name))
	}
	m := mock.New(opts...)
	if path := strings.TrimSpace(s.MockSeed); path != "" {
		entries, err := devseed.Load(path)
		if err != nil {
			return nil, fmt.Errorf("webfm_sdk: load mock seed: %w", err)
		}
		if err := m.Seed(entries); err != nil {
			return nil, fmt.Errorf("webfm_sdk: apply mock seed: %w", err)
		}
	}
	return &Runtime{Client: webfm.NewWithBackend(m), Mode: ModeMock, Mock: m}, nil
}
