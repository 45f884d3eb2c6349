package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deaddrop/client-go/internal/crypto"
)

// Message is one ciphertext blob fetched from the relay. Timestamp is when
// the relay stored the blob; relays predating the field leave it zero.
type Message struct {
	Address    string
	Ciphertext []byte
	Timestamp  time.Time
}

type putMessageRequest struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

type getMessagesRequest struct {
	MessageIDs []string `json:"message_ids"`
}

type getMessagesResponse struct {
	Results []foundMessage `json:"results"`
}

type foundMessage struct {
	MessageID string    `json:"message_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// PutMessage stores ciphertext under address. Re-putting the same address
// overwrites the stored blob, which makes delivery retries idempotent.
func (c *Client) PutMessage(ctx context.Context, address string, ciphertext []byte) error {
	req := putMessageRequest{
		MessageID: address,
		Message:   crypto.ToBase64(ciphertext),
	}
	return c.Do(ctx, http.MethodPost, "/put-message", req, nil)
}

// GetMessages looks up every address in one round trip. Addresses with
// nothing stored are simply absent from the result; order follows the
// relay's response, not the request.
func (c *Client) GetMessages(ctx context.Context, addresses []string) ([]Message, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	var resp getMessagesResponse
	if err := c.Do(ctx, http.MethodPost, "/get-messages", getMessagesRequest{MessageIDs: addresses}, &resp); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(resp.Results))
	for _, found := range resp.Results {
		ciphertext, err := crypto.FromBase64(found.Message)
		if err != nil {
			return nil, fmt.Errorf("decode message for %s: %w", found.MessageID, err)
		}
		messages = append(messages, Message{
			Address:    found.MessageID,
			Ciphertext: ciphertext,
			Timestamp:  found.Timestamp,
		})
	}
	return messages, nil
}
