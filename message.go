package deaddrop

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageKind identifies a message's addressing convention.
type MessageKind string

// Message kinds. Exactly one applies per message and determines which
// contact's key decrypts the ciphertext.
const (
	KindDirectSent         MessageKind = "direct-sent"
	KindDirectReceived     MessageKind = "direct-received"
	KindGroupSent          MessageKind = "group-sent"
	KindGroupReceived      MessageKind = "group-received"
	KindContextualReceived MessageKind = "contextual-received"
)

// MessageCore holds the fields shared by every message variant. The ID is
// local and never visible to the relay; Ciphertext is the base64url AES-GCM
// blob (nonce, ciphertext, tag) this message's plaintext sealed into.
type MessageCore struct {
	ID            string
	Ciphertext    string
	Timestamp     time.Time
	Read          bool
	Pending       bool
	ForwardedPath []string
	Attachment    *Attachment
}

// Forwarded reports whether this message is a forwarded copy.
func (c *MessageCore) Forwarded() bool {
	return len(c.ForwardedPath) > 0
}

// Message is one entry in the local message log. The five variants encode
// the possible addressing conventions; fields that do not apply to a variant
// do not exist on it.
type Message interface {
	// Core returns the fields shared by all variants.
	Core() *MessageCore

	// Kind identifies the variant.
	Kind() MessageKind

	// keyContactID names the contact whose shared key encrypts Ciphertext.
	keyContactID() string
}

// DirectSent is a 1:1 message this device sent, encrypted under the
// recipient's key.
type DirectSent struct {
	MessageCore
	RecipientID string
}

// Core returns the shared message fields.
func (m *DirectSent) Core() *MessageCore { return &m.MessageCore }

// Kind returns KindDirectSent.
func (m *DirectSent) Kind() MessageKind { return KindDirectSent }

func (m *DirectSent) keyContactID() string { return m.RecipientID }

// DirectReceived is a 1:1 message received from a contact, encrypted under
// that contact's key.
type DirectReceived struct {
	MessageCore
	SenderID string
}

// Core returns the shared message fields.
func (m *DirectReceived) Core() *MessageCore { return &m.MessageCore }

// Kind returns KindDirectReceived.
func (m *DirectReceived) Kind() MessageKind { return KindDirectReceived }

func (m *DirectReceived) keyContactID() string { return m.SenderID }

// GroupSent is this device's own copy of a group message. EncryptedForID
// pins the member whose key sealed the copy at creation time, so removing
// that member from the group later cannot orphan the ciphertext mapping.
type GroupSent struct {
	MessageCore
	GroupID        string
	EncryptedForID string
}

// Core returns the shared message fields.
func (m *GroupSent) Core() *MessageCore { return &m.MessageCore }

// Kind returns KindGroupSent.
func (m *GroupSent) Kind() MessageKind { return KindGroupSent }

func (m *GroupSent) keyContactID() string { return m.EncryptedForID }

// GroupReceived is a group message received from a member of a group this
// device knows, encrypted under the sender's key.
type GroupReceived struct {
	MessageCore
	GroupID  string
	SenderID string
}

// Core returns the shared message fields.
func (m *GroupReceived) Core() *MessageCore { return &m.MessageCore }

// Kind returns KindGroupReceived.
func (m *GroupReceived) Kind() MessageKind { return KindGroupReceived }

func (m *GroupReceived) keyContactID() string { return m.SenderID }

// ContextualReceived is a group message whose group this device does not
// know. The sender's announced group id and name are kept for display so the
// user can decide to create the group locally under the same id.
type ContextualReceived struct {
	MessageCore
	SenderID         string
	GroupContextID   string
	GroupContextName string
}

// Core returns the shared message fields.
func (m *ContextualReceived) Core() *MessageCore { return &m.MessageCore }

// Kind returns KindContextualReceived.
func (m *ContextualReceived) Kind() MessageKind { return KindContextualReceived }

func (m *ContextualReceived) keyContactID() string { return m.SenderID }

// Attachment is a time-boxed grant riding on a message: either third-party
// key material (an introduction) or the key and metadata for an encrypted
// file container. Grants are stripped from storage on consumption or after
// the client's attachment TTL.
type Attachment struct {
	IntroductionKey *IntroductionKey   `json:"introductionKey,omitempty"`
	FileTransfer    *FileTransferGrant `json:"fileTransfer,omitempty"`
	GrantedAt       time.Time          `json:"grantedAt"`
}

// IntroductionKey carries key material for a third party. Accepting it adds
// that party as a contact; the grant is single-use. UserGenerated is the end
// of the key the introducer holds; the acceptor takes the same end, which is
// what keeps its addresses complementary with the introduced contact's.
type IntroductionKey struct {
	Name          string `json:"name"`
	Key           string `json:"key"`
	UserGenerated bool   `json:"userGenerated"`
}

// FileTransferGrant pairs a container's metadata with the key that decrypts
// it. The key travels only here, never inside the container.
type FileTransferGrant struct {
	Metadata FileTransferMetadata `json:"metadata"`
	Key      string               `json:"key"`
}

// messageEnvelope is the persisted JSON shape of a message. The kind tag
// selects which variant the remaining fields belong to.
type messageEnvelope struct {
	Kind             string      `json:"kind"`
	ID               string      `json:"id"`
	Ciphertext       string      `json:"ciphertext"`
	Timestamp        time.Time   `json:"timestamp"`
	Read             bool        `json:"read,omitempty"`
	Pending          bool        `json:"pending,omitempty"`
	ForwardedPath    []string    `json:"forwardedPath,omitempty"`
	Attachment       *Attachment `json:"attachment,omitempty"`
	RecipientID      string      `json:"recipientId,omitempty"`
	SenderID         string      `json:"senderId,omitempty"`
	GroupID          string      `json:"groupId,omitempty"`
	EncryptedForID   string      `json:"encryptedForId,omitempty"`
	GroupContextID   string      `json:"groupContextId,omitempty"`
	GroupContextName string      `json:"groupContextName,omitempty"`
}

func encodeMessage(m Message) ([]byte, error) {
	core := m.Core()
	env := messageEnvelope{
		Kind:          string(m.Kind()),
		ID:            core.ID,
		Ciphertext:    core.Ciphertext,
		Timestamp:     core.Timestamp,
		Read:          core.Read,
		Pending:       core.Pending,
		ForwardedPath: core.ForwardedPath,
		Attachment:    core.Attachment,
	}

	switch v := m.(type) {
	case *DirectSent:
		env.RecipientID = v.RecipientID
	case *DirectReceived:
		env.SenderID = v.SenderID
	case *GroupSent:
		env.GroupID = v.GroupID
		env.EncryptedForID = v.EncryptedForID
	case *GroupReceived:
		env.GroupID = v.GroupID
		env.SenderID = v.SenderID
	case *ContextualReceived:
		env.SenderID = v.SenderID
		env.GroupContextID = v.GroupContextID
		env.GroupContextName = v.GroupContextName
	default:
		return nil, fmt.Errorf("unknown message type %T", m)
	}

	return json.Marshal(env)
}

func decodeMessage(data []byte) (Message, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}

	core := MessageCore{
		ID:            env.ID,
		Ciphertext:    env.Ciphertext,
		Timestamp:     env.Timestamp,
		Read:          env.Read,
		Pending:       env.Pending,
		ForwardedPath: env.ForwardedPath,
		Attachment:    env.Attachment,
	}

	switch MessageKind(env.Kind) {
	case KindDirectSent:
		return &DirectSent{MessageCore: core, RecipientID: env.RecipientID}, nil
	case KindDirectReceived:
		return &DirectReceived{MessageCore: core, SenderID: env.SenderID}, nil
	case KindGroupSent:
		return &GroupSent{MessageCore: core, GroupID: env.GroupID, EncryptedForID: env.EncryptedForID}, nil
	case KindGroupReceived:
		return &GroupReceived{MessageCore: core, GroupID: env.GroupID, SenderID: env.SenderID}, nil
	case KindContextualReceived:
		return &ContextualReceived{
			MessageCore:      core,
			SenderID:         env.SenderID,
			GroupContextID:   env.GroupContextID,
			GroupContextName: env.GroupContextName,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", env.Kind)
	}
}
