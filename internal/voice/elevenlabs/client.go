// Package elevenlabs talks to the ElevenLabs Conversational AI API from
// the server. It signs conversation URLs for private agents and can hold
// a text-only conversation directly over the platform websocket.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultBaseURL is the REST API root.
	DefaultBaseURL = "https://api.elevenlabs.io"
	// DefaultSocketURL is the public conversation websocket.
	DefaultSocketURL = "wss://api.elevenlabs.io/v1/convai/conversation"

	signedURLPath = "/v1/convai/conversation/get_signed_url"
	apiKeyHeader  = "xi-api-key"
)

// ErrNoAPIKey is returned when signing is requested without credentials.
var ErrNoAPIKey = errors.New("elevenlabs api key not configured")

// Config configures a Client. Empty URLs fall back to the public API.
type Config struct {
	APIKey     string
	BaseURL    string
	SocketURL  string
	HTTPClient *http.Client
}

// Client is a thin ElevenLabs API client.
type Client struct {
	apiKey    string
	baseURL   string
	socketURL string
	http      *http.Client
}

// NewClient creates a client. Outgoing requests are traced.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.SocketURL == "" {
		cfg.SocketURL = DefaultSocketURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		socketURL: cfg.SocketURL,
		http:      cfg.HTTPClient,
	}
}

// HasAPIKey reports whether private agents can be reached.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// SignedURL requests a short-lived authenticated websocket URL for a
// private agent.
func (c *Client) SignedURL(ctx context.Context, agentID string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	q := url.Values{"agent_id": {agentID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+signedURLPath+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build signed url request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request signed url: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("request signed url: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out signedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode signed url: %w", err)
	}
	if out.SignedURL == "" {
		return "", errors.New("signed url missing from response")
	}
	return out.SignedURL, nil
}

// conversationURL returns the websocket URL for agentID, signing it when
// an API key is configured.
func (c *Client) conversationURL(ctx context.Context, agentID string) (string, error) {
	if c.apiKey != "" {
		return c.SignedURL(ctx, agentID)
	}
	return c.socketURL + "?" + url.Values{"agent_id": {agentID}}.Encode(), nil
}

// NewConversation returns an unopened direct conversation.
func (c *Client) NewConversation() *Conversation {
	return &Conversation{client: c}
}
