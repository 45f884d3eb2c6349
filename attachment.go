package deaddrop

import (
	"context"
	"time"
)

// SendIntroduction sends the introduced contact's key material to recipientID
// as an attachment, letting the recipient add the third party without another
// out-of-band exchange. The grant is time-boxed on both ends and single-use
// on forwarding paths.
func (c *Client) SendIntroduction(ctx context.Context, recipientID, introducedID, text string) (Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if recipientID == introducedID {
		return nil, newValidationError("cannot introduce a contact to itself")
	}

	introduced, err := c.GetContact(ctx, introducedID)
	if err != nil {
		return nil, err
	}
	keyMaterial, err := c.ExportContactKey(ctx, introducedID)
	if err != nil {
		return nil, err
	}

	payload := &wirePayload{
		Message: text,
		Attachment: &Attachment{
			IntroductionKey: &IntroductionKey{
				Name:          introduced.Name,
				Key:           keyMaterial,
				UserGenerated: introduced.UserGeneratedKey,
			},
			GrantedAt: time.Now().UTC(),
		},
	}
	return c.sendDirect(ctx, recipientID, payload, nil)
}

// AcceptIntroduction imports the introduction key attached to a received
// message as a new contact. The supplied name overrides the one the sender
// attached; pass "" to keep it. A successful import consumes the grant and
// strips it from the message; on failure the grant stays so the accept can
// be retried.
func (c *Client) AcceptIntroduction(ctx context.Context, messageID, name string) (*Contact, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	msg, err := c.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	att := msg.Core().Attachment
	if att == nil || att.IntroductionKey == nil {
		return nil, ErrNoAttachment
	}
	if c.attachmentExpired(att) {
		if err := c.stripAttachment(ctx, msg); err != nil {
			c.logger.Warn("strip expired grant failed", "message", messageID, "error", err)
		}
		return nil, ErrAttachmentExpired
	}

	if name == "" {
		name = att.IntroductionKey.Name
	}
	contact, err := c.AddContact(ctx, name, "", att.IntroductionKey.Key, att.IntroductionKey.UserGenerated)
	if err != nil {
		return nil, err
	}

	if err := c.stripAttachment(ctx, msg); err != nil {
		c.logger.Warn("strip consumed grant failed", "message", messageID, "error", err)
	}
	return contact, nil
}

// SendFileAnnouncement tells a contact about an encrypted file: where-less,
// it carries only the decryption grant (metadata plus key). The container
// itself travels out of band, typically via a public file host, since only
// the grant holder can do anything with it.
func (c *Client) SendFileAnnouncement(ctx context.Context, contactID string, file *EncryptedFile, text string) (Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if file == nil {
		return nil, newValidationError("encrypted file must not be nil")
	}

	payload := &wirePayload{
		Message: text,
		Attachment: &Attachment{
			FileTransfer: &FileTransferGrant{
				Metadata: file.Metadata,
				Key:      EncodeFileKey(file.Key),
			},
			GrantedAt: time.Now().UTC(),
		},
	}
	return c.sendDirect(ctx, contactID, payload, nil)
}

// DecryptAttachedFile decrypts a fetched container using the file-transfer
// grant attached to a message. A successful decrypt consumes the grant.
func (c *Client) DecryptAttachedFile(ctx context.Context, messageID string, container []byte) (*DecryptedFile, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	msg, err := c.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	att := msg.Core().Attachment
	if att == nil || att.FileTransfer == nil {
		return nil, ErrNoAttachment
	}
	if c.attachmentExpired(att) {
		if err := c.stripAttachment(ctx, msg); err != nil {
			c.logger.Warn("strip expired grant failed", "message", messageID, "error", err)
		}
		return nil, ErrAttachmentExpired
	}

	key, err := DecodeFileKey(att.FileTransfer.Key)
	if err != nil {
		return nil, &DecryptionError{Stage: "file key", Err: err}
	}
	file, err := DecryptFile(container, att.FileTransfer.Metadata, key)
	if err != nil {
		return nil, err
	}

	if err := c.stripAttachment(ctx, msg); err != nil {
		c.logger.Warn("strip consumed grant failed", "message", messageID, "error", err)
	}
	return file, nil
}

// ExpireAttachments strips every attachment grant older than the configured
// TTL and reports how many were removed. The retry scheduler calls this on
// every pass; it is exported for callers that disable the scheduler.
func (c *Client) ExpireAttachments(ctx context.Context) (int, error) {
	if err := c.checkClosed(); err != nil {
		return 0, err
	}

	messages, err := c.listMessages(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, msg := range messages {
		att := msg.Core().Attachment
		if att == nil || !c.attachmentExpired(att) {
			continue
		}
		if err := c.stripAttachment(ctx, msg); err != nil {
			c.logger.Warn("strip expired grant failed", "message", msg.Core().ID, "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		c.logger.Debug("expired attachment grants", "count", expired)
	}
	return expired, nil
}

func (c *Client) attachmentExpired(att *Attachment) bool {
	return time.Since(att.GrantedAt) > c.attachmentTTL
}

// stripAttachment removes a grant from storage irreversibly: the plaintext
// copy on the record is cleared and, when the contact key still resolves,
// the sealed payload is rewritten without it so the grant cannot be recovered
// from the stored ciphertext later. If the key is gone the ciphertext is
// already unreadable and clearing the record copy is enough.
func (c *Client) stripAttachment(ctx context.Context, msg Message) error {
	core := msg.Core()
	if core.Attachment == nil {
		return nil
	}

	if contact, err := c.loadContact(ctx, msg.keyContactID()); err == nil {
		if entry, err := c.contactKeyEntry(ctx, contact); err == nil {
			if payload, err := c.openPayload(entry, core.Ciphertext); err == nil && payload.Attachment != nil {
				payload.Attachment = nil
				if blob, err := c.sealPayload(entry, payload); err == nil {
					core.Ciphertext = encodeCiphertext(blob)
				}
			}
		}
	}

	core.Attachment = nil
	return c.persistMessage(ctx, msg)
}
