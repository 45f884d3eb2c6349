package deaddrop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/deaddrop/client-go/internal/keyvault"
	"github.com/deaddrop/client-go/internal/relay"
	"github.com/deaddrop/client-go/kvstore"
)

// Store buckets. The vault and keys buckets belong to the key vault; the
// seen bucket holds de-duplication hashes of relay blobs, which are already
// public to the relay and therefore stored unencrypted.
const (
	bucketContacts = "contacts"
	bucketGroups   = "groups"
	bucketMessages = "messages"
	bucketSeen     = "seen"
)

// Client is the main deaddrop client: the contact and group registry, the
// encrypted message log and the delivery engine, all backed by one store.
type Client struct {
	store  kvstore.Store
	vault  *keyvault.Vault
	relay  *relay.Client
	logger *slog.Logger

	attachmentTTL time.Duration
	onSyncError   func(error)

	keys *keyCache

	// regMu serializes registry mutations so group membership can never be
	// validated against a half-deleted contact set.
	regMu sync.Mutex

	locksMu      sync.Mutex
	contactLocks map[string]*sync.Mutex

	// passSlot is the single-slot guard shared by the scheduler tick and
	// manual RetryPending calls. A pass that finds it occupied is a no-op.
	passSlot chan struct{}

	scheduler *retryScheduler

	mu     sync.RWMutex
	closed bool
}

// New creates a client talking to the relay at relayURL, persisting all
// state in store. The store stays owned by the caller and is not closed by
// Client.Close.
//
// New initializes the device key (generating one on first use) and starts
// the background delivery scheduler unless WithRetryInterval disabled it.
func New(relayURL string, store kvstore.Store, opts ...Option) (*Client, error) {
	var failures []string
	if relayURL == "" {
		failures = append(failures, "relay URL must not be empty")
	}
	if store == nil {
		failures = append(failures, "store must not be nil")
	}
	if len(failures) > 0 {
		return nil, newValidationError(failures...)
	}

	cfg := &clientConfig{
		retryInterval: defaultRetryInterval,
		attachmentTTL: defaultAttachmentTTL,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	relayClient, err := relay.NewClient(relay.Config{
		BaseURL:    relayURL,
		AuthToken:  cfg.authToken,
		HTTPClient: cfg.httpClient,
	})
	if err != nil {
		return nil, err
	}

	vault := keyvault.New(store, bucketContacts, bucketGroups, bucketMessages)
	if err := vault.Initialize(context.Background()); err != nil {
		return nil, wrapVaultError("initialize device key", err)
	}

	c := &Client{
		store:         store,
		vault:         vault,
		relay:         relayClient,
		logger:        cfg.logger,
		attachmentTTL: cfg.attachmentTTL,
		onSyncError:   cfg.onSyncError,
		keys:          newKeyCache(),
		contactLocks:  make(map[string]*sync.Mutex),
		passSlot:      make(chan struct{}, 1),
	}

	if !cfg.disableRetries && cfg.retryInterval > 0 {
		c.scheduler = newRetryScheduler(cfg.retryInterval, realClock{}, func(ctx context.Context) {
			if err := c.RetryPending(ctx); err != nil && !errors.Is(err, ErrClientClosed) {
				c.reportSyncError(err)
			}
		})
		c.scheduler.start()
	}

	return c, nil
}

// checkClosed returns ErrClientClosed if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// DeviceKeyDerived reports whether the device key has been upgraded to one
// derived from authenticator entropy.
func (c *Client) DeviceKeyDerived() bool {
	return c.vault.Derived()
}

// lockContact enters the contact's exclusive section. Sends, rotation and
// deletion hold it so a rotation can never swap keys under an in-flight
// send; display reads do not take it. The returned func releases the lock.
func (c *Client) lockContact(id string) func() {
	c.locksMu.Lock()
	l, ok := c.contactLocks[id]
	if !ok {
		l = &sync.Mutex{}
		c.contactLocks[id] = l
	}
	c.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// reportSyncError routes a background failure to the configured handler, or
// the log when none is set.
func (c *Client) reportSyncError(err error) {
	if c.onSyncError != nil {
		c.onSyncError(err)
		return
	}
	c.logger.Warn("background sync error", "error", err)
}

func isNotFound(err error) bool {
	return errors.Is(err, kvstore.ErrNotFound)
}

// Close stops the delivery scheduler and marks the client closed. In-flight
// work is abandoned, not awaited; a pending message stays pending for the
// next client to pick up. Close is idempotent. The store is left open for
// its owner to close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.scheduler != nil {
		c.scheduler.stop()
	}
	return nil
}
