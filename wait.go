package deaddrop

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	defaultWaitTimeout      = 60 * time.Second
	defaultWaitPollInterval = 2 * time.Second
)

// waitConfig holds the matching criteria for WaitForMessage.
type waitConfig struct {
	timeout      time.Duration
	pollInterval time.Duration
	senderID     string
	contains     string
	predicate    func(msg Message, text string) bool
}

// WaitOption configures WaitForMessage.
type WaitOption func(*waitConfig)

// WithWaitTimeout sets how long to wait before giving up.
// Default: 60 seconds.
func WithWaitTimeout(d time.Duration) WaitOption {
	return func(cfg *waitConfig) {
		cfg.timeout = d
	}
}

// WithPollInterval sets the delay between relay polls while waiting.
// Default: 2 seconds.
func WithPollInterval(d time.Duration) WaitOption {
	return func(cfg *waitConfig) {
		cfg.pollInterval = d
	}
}

// WithSender matches only messages from the given contact.
func WithSender(contactID string) WaitOption {
	return func(cfg *waitConfig) {
		cfg.senderID = contactID
	}
}

// WithTextContains matches only messages whose decrypted text contains s.
func WithTextContains(s string) WaitOption {
	return func(cfg *waitConfig) {
		cfg.contains = s
	}
}

// WithMessagePredicate matches with a custom predicate over the message and
// its decrypted text. It is combined with the other criteria; all must match.
func WithMessagePredicate(fn func(msg Message, text string) bool) WaitOption {
	return func(cfg *waitConfig) {
		cfg.predicate = fn
	}
}

func (cfg *waitConfig) matches(msg Message, text string) bool {
	if cfg.senderID != "" && senderOf(msg) != cfg.senderID {
		return false
	}
	if cfg.contains != "" && !strings.Contains(text, cfg.contains) {
		return false
	}
	if cfg.predicate != nil && !cfg.predicate(msg, text) {
		return false
	}
	return true
}

// WaitForMessage polls the relay until a newly received message matches the
// given criteria, then returns it. Messages that fail to decrypt never match.
// Transport hiccups are absorbed and polling continues; the wait ends only on
// a match, the configured timeout or context cancellation.
func (c *Client) WaitForMessage(ctx context.Context, opts ...WaitOption) (Message, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	cfg := &waitConfig{
		timeout:      defaultWaitTimeout,
		pollInterval: defaultWaitPollInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	ticker := time.NewTicker(cfg.pollInterval)
	defer ticker.Stop()

	for {
		fresh, err := c.FetchIncoming(ctx)
		switch {
		case err == nil:
			for _, msg := range fresh {
				text, decErr := c.DecryptMessage(ctx, msg)
				if decErr != nil {
					continue
				}
				if cfg.matches(msg, text) {
					return msg, nil
				}
			}
		case errors.Is(err, ErrClientClosed):
			return nil, err
		default:
			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				return nil, err
			}
			c.logger.Debug("poll failed, will retry", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func senderOf(msg Message) string {
	switch v := msg.(type) {
	case *DirectReceived:
		return v.SenderID
	case *GroupReceived:
		return v.SenderID
	case *ContextualReceived:
		return v.SenderID
	default:
		return ""
	}
}
