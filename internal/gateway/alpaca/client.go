// Package alpaca is the REST gateway to the Alpaca trading and market data
// APIs.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alphatrade/internal/config"
	"alphatrade/internal/pkg/circuit"
)

// Client wraps the Alpaca REST interactions required by the pipeline. One
// client serves both the trading host and the market data host.
type Client struct {
	tradingURL *url.URL
	dataURL    *url.URL
	httpClient *http.Client
	key        string
	secret     string
	feed       string
	breaker    *circuit.Breaker
}

// NewClient constructs an Alpaca client from configuration.
func NewClient(cfg config.BrokerConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, fmt.Errorf("broker credentials are not set")
	}
	trading, err := parseBase(cfg.APIURL, "broker.api_url")
	if err != nil {
		return nil, err
	}
	data, err := parseBase(cfg.DataURL, "broker.data_url")
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	feed := strings.TrimSpace(cfg.DataFeed)
	if feed == "" {
		feed = "iex"
	}
	return &Client{
		tradingURL: trading,
		dataURL:    data,
		httpClient: &http.Client{Timeout: timeout},
		key:        strings.TrimSpace(cfg.APIKey),
		secret:     strings.TrimSpace(cfg.APISecret),
		feed:       feed,
		breaker:    circuit.NewBreaker("alpaca", 5, 60*time.Second),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func parseBase(raw, key string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s must not be empty", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%s is not an absolute URL", key)
	}
	return parsed, nil
}

func (c *Client) doRequest(ctx context.Context, method string, base *url.URL, path string, query url.Values, payload any, out any) error {
	if c == nil {
		return fmt.Errorf("alpaca client is not initialized")
	}
	if !c.breaker.Allow() {
		return fmt.Errorf("alpaca circuit open, request rejected")
	}

	endpoint := *base
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("APCA-API-KEY-ID", c.key)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("call alpaca: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.breaker.RecordFailure()
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(data) == 0 {
			return &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	c.breaker.RecordSuccess()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode alpaca response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from Alpaca.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an Alpaca 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}
