// Package relay implements the HTTP client for the blind message relay.
//
// The relay stores opaque ciphertext blobs under content-derived addresses
// and answers batched lookups. It authenticates nobody and learns nothing
// beyond the addresses it is asked about, so the client sends no identity:
// an address is both the lookup key and the only credential.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single HTTP attempt, not the whole retried call.
const DefaultTimeout = 30 * time.Second

// Config carries the knobs for NewClient.
type Config struct {
	// BaseURL is the relay's root URL, e.g. "https://relay.example.com".
	BaseURL string

	// AuthToken, when set, is sent as a bearer token. The relay itself is
	// unauthenticated; deployments that front it with a gateway use this.
	AuthToken string

	// HTTPClient overrides the default client (DefaultTimeout per attempt).
	HTTPClient *http.Client

	// Retry overrides DefaultRetryConfig.
	Retry *RetryConfig
}

// Client talks to one relay.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	retry      *RetryConfig
}

// NewClient builds a relay client from cfg. BaseURL is required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("relay: base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryConfig()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		httpClient: httpClient,
		retry:      retry,
	}, nil
}

// Do sends one JSON request and decodes the JSON response into result when
// result is non-nil. Transient failures (network errors and retryable status
// codes) are retried per the client's RetryConfig; everything else surfaces
// as *Error or *NetworkError.
func (c *Client) Do(ctx context.Context, method, path string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = data
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			netErr := &NetworkError{Err: err, URL: c.baseURL + path, Attempt: attempt}
			if attempt < c.retry.MaxRetries {
				if waitErr := c.retry.Wait(ctx, attempt); waitErr != nil {
					return waitErr
				}
				continue
			}
			return netErr
		}

		if resp.StatusCode >= 400 {
			relayErr := parseErrorResponse(resp)
			_ = resp.Body.Close()
			if c.retry.ShouldRetry(attempt, resp.StatusCode) {
				if waitErr := c.retry.Wait(ctx, attempt); waitErr != nil {
					return waitErr
				}
				continue
			}
			return relayErr
		}

		var decodeErr error
		if result != nil {
			decodeErr = json.NewDecoder(resp.Body).Decode(result)
		}
		_ = resp.Body.Close()
		if decodeErr != nil {
			return fmt.Errorf("decode response: %w", decodeErr)
		}
		return nil
	}
}

// parseErrorResponse turns an HTTP error status into *Error. The relay
// answers plain-text bodies; a JSON {error} or {message} shape is also
// accepted for gateways that rewrite responses.
func parseErrorResponse(resp *http.Response) *Error {
	body, _ := io.ReadAll(resp.Body)

	message := strings.TrimSpace(string(body))
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			message = errResp.Error
		} else if errResp.Message != "" {
			message = errResp.Message
		}
	}

	return &Error{StatusCode: resp.StatusCode, Message: message}
}
