package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deaddrop/client-go/internal/crypto"
)

func TestPutMessage(t *testing.T) {
	ciphertext := []byte{0x01, 0x02, 0xfe, 0xff}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/put-message" {
			t.Errorf("path = %s, want /put-message", r.URL.Path)
		}

		var req struct {
			MessageID string `json:"message_id"`
			Message   string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.MessageID != "some-put-address" {
			t.Errorf("message_id = %q, want %q", req.MessageID, "some-put-address")
		}
		decoded, err := crypto.FromBase64(req.Message)
		if err != nil {
			t.Fatalf("message is not standard base64: %v", err)
		}
		if !bytes.Equal(decoded, ciphertext) {
			t.Error("message does not round-trip to the ciphertext")
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	if err := client.PutMessage(context.Background(), "some-put-address", ciphertext); err != nil {
		t.Fatalf("PutMessage() error = %v", err)
	}
}

func TestPutMessageRelayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "message_id must be a 32-byte SHA256 hash (64 hex characters)", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	err := client.PutMessage(context.Background(), "bad", []byte("x"))
	var relayErr *Error
	if !errors.As(err, &relayErr) {
		t.Fatalf("PutMessage() error = %v, want *Error", err)
	}
	if relayErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", relayErr.StatusCode)
	}
}

func TestGetMessages(t *testing.T) {
	stored := time.Date(2025, 11, 3, 12, 30, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get-messages" {
			t.Errorf("path = %s, want /get-messages", r.URL.Path)
		}

		var req struct {
			MessageIDs []string `json:"message_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.MessageIDs) != 3 {
			t.Errorf("message_ids count = %d, want 3", len(req.MessageIDs))
		}

		// addr-2 has nothing stored; addr-3's relay predates timestamps.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"message_id": "addr-1",
					"message":    crypto.ToBase64([]byte("first")),
					"timestamp":  stored.Format(time.RFC3339),
				},
				{
					"message_id": "addr-3",
					"message":    crypto.ToBase64([]byte("third")),
				},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	messages, err := client.GetMessages(context.Background(), []string{"addr-1", "addr-2", "addr-3"})
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}

	if messages[0].Address != "addr-1" {
		t.Errorf("Address = %q, want addr-1", messages[0].Address)
	}
	if !bytes.Equal(messages[0].Ciphertext, []byte("first")) {
		t.Errorf("Ciphertext = %q, want %q", messages[0].Ciphertext, "first")
	}
	if !messages[0].Timestamp.Equal(stored) {
		t.Errorf("Timestamp = %v, want %v", messages[0].Timestamp, stored)
	}

	if !messages[1].Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero for a result without one", messages[1].Timestamp)
	}
}

func TestGetMessagesEmptyInput(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	messages, err := client.GetMessages(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetMessages(nil) error = %v", err)
	}
	if messages != nil {
		t.Errorf("GetMessages(nil) = %v, want nil", messages)
	}
	if calls.Load() != 0 {
		t.Error("GetMessages(nil) hit the network")
	}
}

func TestGetMessagesBadBase64(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"message_id":"addr-1","message":"!!not base64!!"}]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	if _, err := client.GetMessages(context.Background(), []string{"addr-1"}); err == nil {
		t.Error("GetMessages() with invalid base64 succeeded")
	}
}
