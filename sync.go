package deaddrop

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/deaddrop/client-go/internal/crypto"
)

// wirePayload is the plaintext sealed into every relay blob. Group fields are
// present only on group fan-out so the receiver can classify the message even
// when it does not know the group.
type wirePayload struct {
	Message    string      `json:"message"`
	Group      string      `json:"group,omitempty"`
	GroupID    string      `json:"groupId,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// RelayResult is one decoded relay GET result: the address it was fetched
// from, the raw ciphertext and the relay's storage timestamp (zero when the
// relay did not report one).
type RelayResult struct {
	Address    string
	Ciphertext []byte
	Timestamp  time.Time
}

// SendMessage encrypts text under the contact's key and appends it to the
// local log before any network traffic, so the send is visible immediately.
// One delivery attempt follows; on failure the message simply stays pending
// for the retry scheduler. Transport problems are therefore never returned
// here.
func (c *Client) SendMessage(ctx context.Context, contactID, text string) (Message, error) {
	if text == "" {
		return nil, newValidationError("message text must not be empty")
	}
	return c.sendDirect(ctx, contactID, &wirePayload{Message: text}, nil)
}

// sendDirect runs the 1:1 send path for an arbitrary payload: seal, append
// pending, attempt one put, flip pending on success.
func (c *Client) sendDirect(ctx context.Context, contactID string, payload *wirePayload, forwardedPath []string) (Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	unlock := c.lockContact(contactID)
	defer unlock()

	contact, err := c.loadContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	entry, err := c.contactKeyEntry(ctx, contact)
	if err != nil {
		return nil, err
	}
	blob, err := c.sealPayload(entry, payload)
	if err != nil {
		return nil, err
	}

	msg := &DirectSent{
		MessageCore: MessageCore{
			ID:            uuid.NewString(),
			Ciphertext:    encodeCiphertext(blob),
			Timestamp:     time.Now().UTC(),
			Pending:       true,
			ForwardedPath: forwardedPath,
			Attachment:    payload.Attachment,
		},
		RecipientID: contactID,
	}
	if err := c.persistMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := c.relay.PutMessage(ctx, entry.putAddress, blob); err != nil {
		c.logger.Debug("delivery failed, message stays pending", "message", msg.ID, "error", err)
	} else {
		msg.Pending = false
		if err := c.persistMessage(ctx, msg); err != nil {
			c.logger.Warn("persist delivered flag failed", "message", msg.ID, "error", err)
		}
	}

	c.touchContact(ctx, contactID)
	return msg, nil
}

// SendGroupMessage encrypts text independently under every member's key and
// puts one blob per member. The local copy is sealed under the first member's
// key; that member's id is pinned on the message so later membership changes
// cannot orphan it. The message counts as delivered only when every member's
// put succeeds; any partial failure leaves the whole message pending and the
// next retry pass re-runs the full fan-out.
func (c *Client) SendGroupMessage(ctx context.Context, groupID, text string) (Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, newValidationError("message text must not be empty")
	}

	group, err := c.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(group.MemberIDs) == 0 {
		return nil, newValidationError("group has no members")
	}

	payload := &wirePayload{Message: text, Group: group.Name, GroupID: group.ID}

	// The sender's own copy. Failing to seal it is a validation-stage
	// failure: nothing has been appended or sent yet.
	first := group.MemberIDs[0]
	msg, err := c.appendGroupCopy(ctx, group, first, payload)
	if err != nil {
		return nil, err
	}

	if c.fanOut(ctx, group, payload) {
		msg.Pending = false
		if err := c.persistMessage(ctx, msg); err != nil {
			c.logger.Warn("persist delivered flag failed", "message", msg.ID, "error", err)
		}
	}
	return msg, nil
}

func (c *Client) appendGroupCopy(ctx context.Context, group *Group, memberID string, payload *wirePayload) (*GroupSent, error) {
	unlock := c.lockContact(memberID)
	defer unlock()

	contact, err := c.loadContact(ctx, memberID)
	if err != nil {
		return nil, err
	}
	entry, err := c.contactKeyEntry(ctx, contact)
	if err != nil {
		return nil, err
	}
	blob, err := c.sealPayload(entry, payload)
	if err != nil {
		return nil, err
	}

	msg := &GroupSent{
		MessageCore: MessageCore{
			ID:         uuid.NewString(),
			Ciphertext: encodeCiphertext(blob),
			Timestamp:  time.Now().UTC(),
			Pending:    true,
			Attachment: payload.Attachment,
		},
		GroupID:        group.ID,
		EncryptedForID: memberID,
	}
	if err := c.persistMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// fanOut seals and puts the payload for every group member, reporting whether
// every delivery succeeded. Per-member failures are logged and absorbed.
func (c *Client) fanOut(ctx context.Context, group *Group, payload *wirePayload) bool {
	delivered := true
	for _, memberID := range group.MemberIDs {
		if err := c.sendToMember(ctx, memberID, payload); err != nil {
			c.logger.Debug("group delivery failed",
				"group", group.ID, "member", memberID, "error", err)
			delivered = false
		}
	}
	return delivered
}

func (c *Client) sendToMember(ctx context.Context, memberID string, payload *wirePayload) error {
	unlock := c.lockContact(memberID)
	defer unlock()

	contact, err := c.loadContact(ctx, memberID)
	if err != nil {
		return err
	}
	entry, err := c.contactKeyEntry(ctx, contact)
	if err != nil {
		return err
	}
	blob, err := c.sealPayload(entry, payload)
	if err != nil {
		return err
	}
	return c.relay.PutMessage(ctx, entry.putAddress, blob)
}

// FetchIncoming polls every contact's get address in one relay round trip
// and ingests whatever is new. It returns only the messages appended by this
// call; blobs already seen in an earlier poll are skipped. Polling cadence is
// the caller's business.
func (c *Client) FetchIncoming(ctx context.Context) ([]Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	contacts, err := c.Contacts(ctx)
	if err != nil {
		return nil, err
	}

	addresses := make([]string, 0, len(contacts))
	byAddress := make(map[string]string, len(contacts))
	for _, contact := range contacts {
		entry, err := c.contactKeyEntry(ctx, contact)
		if err != nil {
			c.logger.Warn("contact key unavailable, skipping poll",
				"contact", contact.ID, "error", err)
			continue
		}
		addresses = append(addresses, entry.getAddress)
		byAddress[entry.getAddress] = contact.ID
	}
	if len(addresses) == 0 {
		return nil, nil
	}

	results, err := c.relay.GetMessages(ctx, addresses)
	if err != nil {
		return nil, wrapTransportError(err)
	}

	var fresh []Message
	for _, result := range results {
		contactID, ok := byAddress[result.Address]
		if !ok {
			c.logger.Warn("relay returned unrequested address", "address", result.Address)
			continue
		}
		msg, err := c.ingestOne(ctx, contactID, RelayResult{
			Address:    result.Address,
			Ciphertext: result.Ciphertext,
			Timestamp:  result.Timestamp,
		})
		if err != nil {
			c.logger.Warn("ingest failed", "contact", contactID, "error", err)
			continue
		}
		if msg != nil {
			fresh = append(fresh, msg)
		}
	}
	sortMessages(fresh)
	return fresh, nil
}

// IngestRelayResults consumes decoded relay GET results fetched from one
// contact's get address, appending whatever decrypts and is not a duplicate.
// A result that fails to decrypt is logged and skipped; it never halts the
// rest of the batch.
func (c *Client) IngestRelayResults(ctx context.Context, contactID string, results []RelayResult) ([]Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if _, err := c.loadContact(ctx, contactID); err != nil {
		return nil, err
	}

	var fresh []Message
	for _, result := range results {
		msg, err := c.ingestOne(ctx, contactID, result)
		if err != nil {
			c.logger.Warn("ingest failed", "contact", contactID, "error", err)
			continue
		}
		if msg != nil {
			fresh = append(fresh, msg)
		}
	}
	sortMessages(fresh)
	return fresh, nil
}

// ingestOne appends one relay blob as a received message. It returns
// (nil, nil) for duplicates. The variant is classified from the decrypted
// payload: group id present and known locally makes a GroupReceived, group id
// present but unknown makes a ContextualReceived, otherwise DirectReceived.
func (c *Client) ingestOne(ctx context.Context, contactID string, result RelayResult) (Message, error) {
	seenID := seenKey(result.Address, result.Ciphertext)
	seen, err := c.alreadySeen(ctx, seenID)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, nil
	}

	contact, err := c.loadContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	entry, err := c.contactKeyEntry(ctx, contact)
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.Decrypt(entry.raw, result.Ciphertext)
	if err != nil {
		// Corrupt or tampered; it will never decrypt on a later poll either.
		c.markSeen(ctx, seenID)
		return nil, &DecryptionError{Stage: "incoming message", Err: err}
	}
	var payload wirePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		c.markSeen(ctx, seenID)
		return nil, &DecryptionError{Stage: "incoming message", Err: err}
	}

	timestamp := result.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	core := MessageCore{
		ID:         uuid.NewString(),
		Ciphertext: encodeCiphertext(result.Ciphertext),
		Timestamp:  timestamp,
	}
	if payload.Attachment != nil {
		// The grant's TTL runs from local receipt, not the sender's clock.
		att := *payload.Attachment
		att.GrantedAt = time.Now().UTC()
		core.Attachment = &att
	}

	var msg Message
	switch {
	case payload.GroupID == "":
		msg = &DirectReceived{MessageCore: core, SenderID: contactID}
	default:
		if _, err := c.loadGroup(ctx, payload.GroupID); err == nil {
			msg = &GroupReceived{MessageCore: core, GroupID: payload.GroupID, SenderID: contactID}
		} else {
			msg = &ContextualReceived{
				MessageCore:      core,
				SenderID:         contactID,
				GroupContextID:   payload.GroupID,
				GroupContextName: payload.Group,
			}
		}
	}

	if err := c.persistMessage(ctx, msg); err != nil {
		return nil, err
	}
	c.markSeen(ctx, seenID)

	unlock := c.lockContact(contactID)
	c.touchContact(ctx, contactID)
	unlock()

	return msg, nil
}

// DecryptMessage returns the message's plaintext text. Every failure along
// the way (missing contact, missing key, tampered ciphertext) surfaces as
// ErrDecryptionFailed: an explicit error state, never partial plaintext.
func (c *Client) DecryptMessage(ctx context.Context, msg Message) (string, error) {
	payload, err := c.decryptPayload(ctx, msg)
	if err != nil {
		return "", err
	}
	return payload.Message, nil
}

// decryptPayload resolves the message's key per the variant's addressing
// convention and opens the sealed payload.
func (c *Client) decryptPayload(ctx context.Context, msg Message) (*wirePayload, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	contact, err := c.loadContact(ctx, msg.keyContactID())
	if err != nil {
		return nil, &DecryptionError{Stage: "message", Err: err}
	}
	entry, err := c.contactKeyEntry(ctx, contact)
	if err != nil {
		return nil, &DecryptionError{Stage: "message", Err: err}
	}
	return c.openPayload(entry, msg.Core().Ciphertext)
}

// openPayload decrypts a stored ciphertext with an already-resolved key.
func (c *Client) openPayload(entry *cachedKey, ciphertext string) (*wirePayload, error) {
	blob, err := decodeCiphertext(ciphertext)
	if err != nil {
		return nil, &DecryptionError{Stage: "message", Err: err}
	}
	plaintext, err := crypto.Decrypt(entry.raw, blob)
	if err != nil {
		return nil, &DecryptionError{Stage: "message", Err: err}
	}
	var payload wirePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, &DecryptionError{Stage: "message", Err: err}
	}
	return &payload, nil
}

// sealPayload encrypts the payload under the entry's key with a fresh nonce.
func (c *Client) sealPayload(entry *cachedKey, payload *wirePayload) ([]byte, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	blob, err := crypto.Encrypt(entry.raw, plaintext)
	if err != nil {
		return nil, &CryptoError{Op: "seal message", Err: err}
	}
	return blob, nil
}

// ForwardMessage re-encrypts an existing message's plaintext under the
// target contact's key and sends it as a new direct message, extending the
// forwarding path for provenance. An introduction-key grant on the original
// is single-use: it moves to the forwarded copy and is stripped from the
// original once the forward exists.
func (c *Client) ForwardMessage(ctx context.Context, messageID, targetContactID string) (Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	source, err := c.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	payload, err := c.decryptPayload(ctx, source)
	if err != nil {
		return nil, err
	}

	forward := &wirePayload{Message: payload.Message}
	if payload.Attachment != nil {
		att := *payload.Attachment
		att.GrantedAt = time.Now().UTC()
		forward.Attachment = &att
	}

	path := append(slices.Clone(source.Core().ForwardedPath), targetContactID)
	fwd, err := c.sendDirect(ctx, targetContactID, forward, path)
	if err != nil {
		return nil, err
	}

	if att := source.Core().Attachment; att != nil && att.IntroductionKey != nil {
		if err := c.stripAttachment(ctx, source); err != nil {
			c.logger.Warn("strip forwarded grant failed", "message", source.Core().ID, "error", err)
		}
	}
	return fwd, nil
}

// MarkRead marks a message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	msg, err := c.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Core().Read {
		return nil
	}
	msg.Core().Read = true
	return c.persistMessage(ctx, msg)
}

// Messages returns the whole message log ordered by timestamp.
func (c *Client) Messages(ctx context.Context) ([]Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.listMessages(ctx)
}

// GetMessage returns the message with the given id.
func (c *Client) GetMessage(ctx context.Context, id string) (Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.loadMessage(ctx, id)
}

func (c *Client) loadMessage(ctx context.Context, id string) (Message, error) {
	value, err := c.store.Get(ctx, bucketMessages, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("load message %s: %w", id, err)
	}
	plaintext, err := c.vault.DecryptRecord(value)
	if err != nil {
		return nil, wrapVaultError("decrypt message record", err)
	}
	return decodeMessage(plaintext)
}

func (c *Client) listMessages(ctx context.Context) ([]Message, error) {
	values, err := c.store.List(ctx, bucketMessages)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]Message, 0, len(values))
	for id, value := range values {
		plaintext, err := c.vault.DecryptRecord(value)
		if err != nil {
			return nil, wrapVaultError("decrypt message record", err)
		}
		msg, err := decodeMessage(plaintext)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", id, err)
		}
		messages = append(messages, msg)
	}
	sortMessages(messages)
	return messages, nil
}

func (c *Client) persistMessage(ctx context.Context, msg Message) error {
	plaintext, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	value, err := c.vault.EncryptRecord(plaintext)
	if err != nil {
		return wrapVaultError("encrypt message record", err)
	}
	if err := c.store.Set(ctx, bucketMessages, msg.Core().ID, value); err != nil {
		return fmt.Errorf("persist message %s: %w", msg.Core().ID, err)
	}
	return nil
}

// seenKey is the de-duplication identity of a relay blob. The relay returns
// a stored blob on every poll until it is overwritten, so the hash has to
// cover the payload as well as the address.
func seenKey(address string, ciphertext []byte) string {
	h := sha256.New()
	h.Write([]byte(address))
	h.Write([]byte{0})
	h.Write(ciphertext)
	return crypto.ToBase64URL(h.Sum(nil))
}

func (c *Client) alreadySeen(ctx context.Context, id string) (bool, error) {
	_, err := c.store.Get(ctx, bucketSeen, id)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("check seen record: %w", err)
}

// markSeen is best effort: if the write fails the blob is re-ingested on the
// next poll, which is preferable to failing the ingest that already stored
// the message.
func (c *Client) markSeen(ctx context.Context, id string) {
	value := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := c.store.Set(ctx, bucketSeen, id, value); err != nil {
		c.logger.Warn("persist seen record failed", "error", err)
	}
}

func encodeCiphertext(blob []byte) string {
	return crypto.ToBase64URL(blob)
}

func decodeCiphertext(s string) ([]byte, error) {
	blob, err := crypto.FromBase64URL(s)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	return blob, nil
}

func sortMessages(messages []Message) {
	sort.Slice(messages, func(i, j int) bool {
		a, b := messages[i].Core(), messages[j].Core()
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
}
