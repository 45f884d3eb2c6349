package deaddrop

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/deaddrop/client-go/internal/addressing"
)

// Contact is one peer this device shares a key with. KeyID names the wrapped
// key record in the vault; UserGeneratedKey records whether this device
// created the key or imported it, which fixes the addressing convention for
// the lifetime of the contact.
type Contact struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Avatar           string    `json:"avatar,omitempty"`
	KeyID            string    `json:"keyId"`
	UserGeneratedKey bool      `json:"userGeneratedKey"`
	LastActive       time.Time `json:"lastActive"`
}

// Group is a purely local structure naming a set of contacts. Group messages
// use each member's own pairwise key; there is no group key.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Avatar    string   `json:"avatar,omitempty"`
	MemberIDs []string `json:"memberIds"`
}

// AddContact imports key material for a new contact, derives the contact's
// relay addresses and persists everything encrypted under the device key.
// userGenerated reports whether this device created the key; the peer
// importing the same key passes the opposite value, which is what makes the
// two sides' addresses line up.
func (c *Client) AddContact(ctx context.Context, name, avatar, keyMaterial string, userGenerated bool) (*Contact, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, newValidationError("contact name must not be empty")
	}
	raw, err := ParseKeyMaterial(keyMaterial)
	if err != nil {
		return nil, err
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()

	contact := &Contact{
		ID:               uuid.NewString(),
		Name:             name,
		Avatar:           avatar,
		KeyID:            uuid.NewString(),
		UserGeneratedKey: userGenerated,
		LastActive:       time.Now().UTC(),
	}

	if err := c.vault.WrapKey(ctx, contact.KeyID, raw); err != nil {
		return nil, wrapVaultError("wrap contact key", err)
	}
	if err := c.persistContact(ctx, contact); err != nil {
		_ = c.vault.DeleteKey(ctx, contact.KeyID)
		return nil, err
	}

	record := addressing.DeriveRecord(userGenerated, raw)
	c.keys.put(contact.KeyID, &cachedKey{
		raw:        raw,
		putAddress: record.PutAddress,
		getAddress: record.GetAddress,
	})

	return contact, nil
}

// GetContact returns the contact with the given id.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.loadContact(ctx, id)
}

// Contacts returns all contacts, sorted by name.
func (c *Client) Contacts(ctx context.Context) ([]*Contact, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	values, err := c.store.List(ctx, bucketContacts)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	contacts := make([]*Contact, 0, len(values))
	for id, value := range values {
		contact, err := c.decodeContact(value)
		if err != nil {
			return nil, fmt.Errorf("contact %s: %w", id, err)
		}
		contacts = append(contacts, contact)
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].Name < contacts[j].Name })
	return contacts, nil
}

// DeleteContact removes a contact, destroys its key record and removes the
// contact from every group's member list. A group emptied this way is kept
// rather than silently deleted. Messages referencing the contact stay in the
// log; they simply can no longer be decrypted.
func (c *Client) DeleteContact(ctx context.Context, id string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()
	unlock := c.lockContact(id)
	defer unlock()

	contact, err := c.loadContact(ctx, id)
	if err != nil {
		return err
	}

	if err := c.vault.DeleteKey(ctx, contact.KeyID); err != nil {
		return wrapVaultError("delete contact key", err)
	}
	c.keys.evict(contact.KeyID)

	if err := c.store.Delete(ctx, bucketContacts, id); err != nil {
		return fmt.Errorf("delete contact %s: %w", id, err)
	}

	groups, err := c.listGroups(ctx)
	if err != nil {
		return err
	}
	for _, group := range groups {
		if !slices.Contains(group.MemberIDs, id) {
			continue
		}
		group.MemberIDs = slices.DeleteFunc(group.MemberIDs, func(m string) bool { return m == id })
		if err := c.persistGroup(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

// AddGroup creates a local group over existing contacts. Every member must
// already be a contact and the member list must not be empty.
func (c *Client) AddGroup(ctx context.Context, name string, memberIDs []string, opts ...GroupOption) (*Group, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	cfg := &groupConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var failures []string
	if name == "" {
		failures = append(failures, "group name must not be empty")
	}
	if len(memberIDs) == 0 {
		failures = append(failures, "group must have at least one member")
	}
	if len(failures) > 0 {
		return nil, newValidationError(failures...)
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()

	for _, memberID := range memberIDs {
		if _, err := c.loadContact(ctx, memberID); err != nil {
			failures = append(failures, fmt.Sprintf("member %s is not a contact", memberID))
		}
	}
	if cfg.id != "" {
		if _, err := c.loadGroup(ctx, cfg.id); err == nil {
			failures = append(failures, fmt.Sprintf("group id %s already in use", cfg.id))
		}
	}
	if len(failures) > 0 {
		return nil, newValidationError(failures...)
	}

	id := cfg.id
	if id == "" {
		id = uuid.NewString()
	}
	group := &Group{
		ID:        id,
		Name:      name,
		Avatar:    cfg.avatar,
		MemberIDs: slices.Clone(memberIDs),
	}
	if err := c.persistGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// GetGroup returns the group with the given id.
func (c *Client) GetGroup(ctx context.Context, id string) (*Group, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.loadGroup(ctx, id)
}

// Groups returns all groups, sorted by name.
func (c *Client) Groups(ctx context.Context) ([]*Group, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	groups, err := c.listGroups(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// DeleteGroup removes a group. Member contacts and message history are
// untouched.
func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()

	if _, err := c.loadGroup(ctx, id); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, bucketGroups, id); err != nil {
		return fmt.Errorf("delete group %s: %w", id, err)
	}
	return nil
}

// PutAddress returns the relay address this device sends the contact's
// messages to.
func (c *Client) PutAddress(ctx context.Context, contactID string) (string, error) {
	entry, err := c.addressEntry(ctx, contactID)
	if err != nil {
		return "", err
	}
	return entry.putAddress, nil
}

// GetAddress returns the relay address this device polls for messages from
// the contact.
func (c *Client) GetAddress(ctx context.Context, contactID string) (string, error) {
	entry, err := c.addressEntry(ctx, contactID)
	if err != nil {
		return "", err
	}
	return entry.getAddress, nil
}

func (c *Client) addressEntry(ctx context.Context, contactID string) (*cachedKey, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	contact, err := c.loadContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return c.contactKeyEntry(ctx, contact)
}

// contactKeyEntry resolves a contact's key record through the cache. A miss
// unwraps the key from the vault (upgrading legacy records as a side effect)
// and derives both relay addresses.
func (c *Client) contactKeyEntry(ctx context.Context, contact *Contact) (*cachedKey, error) {
	if entry, ok := c.keys.get(contact.KeyID); ok {
		return entry, nil
	}

	raw, err := c.vault.UnwrapKey(ctx, contact.KeyID)
	if err != nil {
		return nil, wrapVaultError("unwrap contact key", err)
	}

	record := addressing.DeriveRecord(contact.UserGeneratedKey, raw)
	entry := &cachedKey{
		raw:        raw,
		putAddress: record.PutAddress,
		getAddress: record.GetAddress,
	}
	c.keys.put(contact.KeyID, entry)
	return entry, nil
}

// touchContact bumps the contact's last-active timestamp. Failures are not
// worth failing a send or ingest over, so they are only logged.
func (c *Client) touchContact(ctx context.Context, id string) {
	contact, err := c.loadContact(ctx, id)
	if err != nil {
		return
	}
	contact.LastActive = time.Now().UTC()
	if err := c.persistContact(ctx, contact); err != nil {
		c.logger.Debug("touch contact failed", "contact", id, "error", err)
	}
}

func (c *Client) loadContact(ctx context.Context, id string) (*Contact, error) {
	value, err := c.store.Get(ctx, bucketContacts, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("load contact %s: %w", id, err)
	}
	return c.decodeContact(value)
}

func (c *Client) decodeContact(value []byte) (*Contact, error) {
	plaintext, err := c.vault.DecryptRecord(value)
	if err != nil {
		return nil, wrapVaultError("decrypt contact record", err)
	}
	var contact Contact
	if err := json.Unmarshal(plaintext, &contact); err != nil {
		return nil, fmt.Errorf("decode contact record: %w", err)
	}
	return &contact, nil
}

func (c *Client) persistContact(ctx context.Context, contact *Contact) error {
	plaintext, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("encode contact record: %w", err)
	}
	value, err := c.vault.EncryptRecord(plaintext)
	if err != nil {
		return wrapVaultError("encrypt contact record", err)
	}
	if err := c.store.Set(ctx, bucketContacts, contact.ID, value); err != nil {
		return fmt.Errorf("persist contact %s: %w", contact.ID, err)
	}
	return nil
}

func (c *Client) loadGroup(ctx context.Context, id string) (*Group, error) {
	value, err := c.store.Get(ctx, bucketGroups, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("load group %s: %w", id, err)
	}
	return c.decodeGroup(value)
}

func (c *Client) decodeGroup(value []byte) (*Group, error) {
	plaintext, err := c.vault.DecryptRecord(value)
	if err != nil {
		return nil, wrapVaultError("decrypt group record", err)
	}
	var group Group
	if err := json.Unmarshal(plaintext, &group); err != nil {
		return nil, fmt.Errorf("decode group record: %w", err)
	}
	return &group, nil
}

func (c *Client) listGroups(ctx context.Context) ([]*Group, error) {
	values, err := c.store.List(ctx, bucketGroups)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	groups := make([]*Group, 0, len(values))
	for id, value := range values {
		group, err := c.decodeGroup(value)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", id, err)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (c *Client) persistGroup(ctx context.Context, group *Group) error {
	plaintext, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("encode group record: %w", err)
	}
	value, err := c.vault.EncryptRecord(plaintext)
	if err != nil {
		return wrapVaultError("encrypt group record", err)
	}
	if err := c.store.Set(ctx, bucketGroups, group.ID, value); err != nil {
		return fmt.Errorf("persist group %s: %w", group.ID, err)
	}
	return nil
}
