package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
		RetryableOn: func(statusCode int) bool {
			return statusCode == 408 || statusCode == 429 || statusCode >= 500
		},
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: serverURL, Retry: fastRetry()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("NewClient() with empty base URL succeeded")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "https://relay.example.com"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if client.httpClient == nil {
		t.Fatal("httpClient is nil")
	}
	if client.httpClient.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", client.httpClient.Timeout, DefaultTimeout)
	}
	if client.retry == nil {
		t.Fatal("retry config is nil")
	}
	if client.retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", client.retry.MaxRetries)
	}
}

func TestNewClientCustomValues(t *testing.T) {
	customHTTPClient := &http.Client{Timeout: time.Minute}
	retry := fastRetry()

	client, err := NewClient(Config{
		BaseURL:    "https://relay.example.com/",
		HTTPClient: customHTTPClient,
		Retry:      retry,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if client.httpClient != customHTTPClient {
		t.Error("httpClient not set from config")
	}
	if client.retry != retry {
		t.Error("retry config not set from config")
	}
	if client.baseURL != "https://relay.example.com" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
	}
}

func TestDoSendsJSONHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want unset", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var result struct {
		OK bool `json:"ok"`
	}
	if err := client.Do(context.Background(), http.MethodPost, "/test", map[string]string{"a": "b"}, &result); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !result.OK {
		t.Error("response not decoded")
	}
}

func TestDoSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer gateway-token" {
			t.Errorf("Authorization = %q, want Bearer gateway-token", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, AuthToken: "gateway-token"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := client.Do(context.Background(), http.MethodPost, "/test", nil, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	if err := client.Do(context.Background(), http.MethodPost, "/flaky", nil, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	err := client.Do(context.Background(), http.MethodPost, "/down", nil, nil)
	var relayErr *Error
	if !errors.As(err, &relayErr) {
		t.Fatalf("Do() error = %v, want *Error", err)
	}
	if relayErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", relayErr.StatusCode)
	}
	// First try plus MaxRetries.
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "Invalid message ID format", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	err := client.Do(context.Background(), http.MethodPost, "/bad", nil, nil)
	var relayErr *Error
	if !errors.As(err, &relayErr) {
		t.Fatalf("Do() error = %v, want *Error", err)
	}
	if relayErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", relayErr.StatusCode)
	}
	if relayErr.Message != "Invalid message ID format" {
		t.Errorf("Message = %q, want plain-text body", relayErr.Message)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestDoParsesJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"malformed address"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	err := client.Do(context.Background(), http.MethodPost, "/bad", nil, nil)
	var relayErr *Error
	if !errors.As(err, &relayErr) {
		t.Fatalf("Do() error = %v, want *Error", err)
	}
	if relayErr.Message != "malformed address" {
		t.Errorf("Message = %q, want %q", relayErr.Message, "malformed address")
	}
}

func TestDoNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := newTestClient(t, serverURL)

	err := client.Do(context.Background(), http.MethodPost, "/gone", nil, nil)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Do() error = %v, want *NetworkError", err)
	}
	if netErr.Unwrap() == nil {
		t.Error("NetworkError does not wrap the underlying error")
	}
}

func TestDoContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL: server.URL,
		Retry: &RetryConfig{
			MaxRetries:  5,
			BaseDelay:   time.Hour,
			MaxDelay:    time.Hour,
			Multiplier:  1.0,
			RetryableOn: func(int) bool { return true },
		},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := client.Do(ctx, http.MethodPost, "/slow", nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}
