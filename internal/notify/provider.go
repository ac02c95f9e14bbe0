package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var errMissingEndpoint = errors.New("notify: push endpoint required")

// HTTPProviderConfig configures the HTTP push provider.
type HTTPProviderConfig struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTPProvider posts notifications to the push gateway fronting the device
// delivery service. The gateway resolves a user id to its registered device
// tokens; the relay never sees device-level detail.
type HTTPProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPProvider constructs a provider with validated configuration.
func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errMissingEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProvider{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: client,
		logger:     logger,
	}, nil
}

type pushRequestPayload struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Send posts one notification for the user. The caller bounds ctx.
func (p *HTTPProvider) Send(ctx context.Context, targetUserID, title, body string, data map[string]string) error {
	encoded, err := json.Marshal(pushRequestPayload{
		UserID: targetUserID,
		Title:  title,
		Body:   body,
		Data:   data,
	})
	if err != nil {
		return fmt.Errorf("notify: encode push request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("notify: build push request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		request.Header.Set("Authorization", "key="+p.apiKey)
	}

	response, err := p.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("notify: push request failed: %w", err)
	}
	defer response.Body.Close() //nolint:errcheck

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notify: push gateway returned %d", response.StatusCode)
	}
	return nil
}

// NopProvider discards notifications. Used when no push endpoint is configured.
type NopProvider struct{}

// Send implements Provider.
func (NopProvider) Send(context.Context, string, string, string, map[string]string) error {
	return nil
}
