package deaddrop

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultRetryInterval is how often the scheduler re-attempts pending
	// deliveries.
	defaultRetryInterval = 30 * time.Second

	// defaultAttachmentTTL bounds how long attachment grants stay readable
	// before an expiry pass strips them.
	defaultAttachmentTTL = 24 * time.Hour
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	httpClient     *http.Client
	logger         *slog.Logger
	authToken      string
	retryInterval  time.Duration
	attachmentTTL  time.Duration
	onSyncError    func(error)
	disableRetries bool
}

// groupConfig holds configuration for group creation.
type groupConfig struct {
	id     string
	avatar string
}

// fileConfig holds configuration for file encryption.
type fileConfig struct {
	chunkSize int
}

// Option configures the client.
type Option func(*clientConfig)

// GroupOption configures group creation.
type GroupOption func(*groupConfig)

// FileOption configures file encryption.
type FileOption func(*fileConfig)

// WithHTTPClient sets a custom HTTP client for relay calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithLogger sets the logger used for diagnostics. Crypto and transport
// failures inside the sync engine are logged here rather than returned.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithAuthToken sets a bearer token sent with every relay request. The relay
// itself is unauthenticated; deployments that front it with a gateway use this.
func WithAuthToken(token string) Option {
	return func(c *clientConfig) {
		c.authToken = token
	}
}

// WithRetryInterval sets the tick interval of the pending-delivery scheduler.
// A non-positive interval disables the scheduler; RetryPending can still be
// called manually.
// Default: 30 seconds.
func WithRetryInterval(interval time.Duration) Option {
	return func(c *clientConfig) {
		c.retryInterval = interval
		if interval <= 0 {
			c.disableRetries = true
		}
	}
}

// WithAttachmentTTL sets how long introduction-key and file-transfer grants
// remain readable before they are stripped.
// Default: 24 hours.
func WithAttachmentTTL(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.attachmentTTL = ttl
	}
}

// WithSyncErrorHandler sets a callback invoked when a background retry pass
// fails. Without a handler such failures are logged and otherwise absorbed.
func WithSyncErrorHandler(fn func(error)) Option {
	return func(c *clientConfig) {
		c.onSyncError = fn
	}
}

// WithGroupID sets an explicit group id instead of a generated one, so a
// group can be created under the id announced by an incoming group message.
func WithGroupID(id string) GroupOption {
	return func(c *groupConfig) {
		c.id = id
	}
}

// WithGroupAvatar sets the group avatar.
func WithGroupAvatar(avatar string) GroupOption {
	return func(c *groupConfig) {
		c.avatar = avatar
	}
}

// WithChunkSize sets the file codec's chunk size in bytes.
// Default: 1 MiB.
func WithChunkSize(size int) FileOption {
	return func(c *fileConfig) {
		c.chunkSize = size
	}
}
