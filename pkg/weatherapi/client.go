// Package weatherapi is a small client for the weatherapi.com current conditions endpoint.
package weatherapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-weather/logger"
	"github.com/NomadCrew/nomad-weather/types"
)

const (
	DefaultBaseURL  = "https://api.weatherapi.com"
	currentEndpoint = "/v1/current.json"
	defaultTimeout  = 10 * time.Second
	maxBodyBytes    = 1 << 20
)

// ErrDecode marks a 2xx response whose body is not a weather document.
var ErrDecode = errors.New("weatherapi: malformed response body")

// ClientInterface defines the interface for weather API client operations
type ClientInterface interface {
	GetCurrent(ctx context.Context, query string) (*Response, error)
}

// Response is the outcome of a call that reached the API. Body is nil when a
// successful response carried no document.
type Response struct {
	StatusCode int
	Body       *types.WeatherPayload
	APIError   *types.WeatherAPIError
}

// IsSuccessful reports whether the status code is 2xx.
func (r *Response) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// GetCurrent issues GET /v1/current.json?key=<key>&q=<query>. Non-2xx responses
// are returned without error; transport failures and undecodable 2xx bodies are errors.
func (c *Client) GetCurrent(ctx context.Context, query string) (*Response, error) {
	log := logger.GetLogger().Named("weatherapi")

	params := url.Values{}
	params.Add("key", c.apiKey)
	params.Add("q", query)
	finalURL := fmt.Sprintf("%s%s?%s", c.baseURL, currentEndpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log.Debugw("Executing weather API request", "query", query, "key", logger.MaskAPIKey(c.apiKey))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode}
	trimmed := bytes.TrimSpace(raw)

	if !out.IsSuccessful() {
		var apiErr types.WeatherAPIError
		if len(trimmed) > 0 && json.Unmarshal(trimmed, &apiErr) == nil && apiErr.Error.Message != "" {
			out.APIError = &apiErr
		}
		log.Warnw("Weather API returned non-2xx status", "statusCode", resp.StatusCode, "query", query)
		return out, nil
	}

	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		log.Debugw("Weather API returned an empty body", "statusCode", resp.StatusCode, "query", query)
		return out, nil
	}

	var payload types.WeatherPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	out.Body = &payload
	return out, nil
}
