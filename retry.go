package deaddrop

import (
	"context"
	"time"
)

// clock abstracts the timer source so scheduler tests can drive ticks
// manually.
type clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// retryScheduler runs a delivery pass at a fixed interval until stopped.
// Reentrancy is not its concern: the pass function carries its own
// single-slot guard, shared with manual invocations.
type retryScheduler struct {
	interval time.Duration
	clk      clock
	pass     func(context.Context)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newRetryScheduler(interval time.Duration, clk clock, pass func(context.Context)) *retryScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &retryScheduler{
		interval: interval,
		clk:      clk,
		pass:     pass,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (s *retryScheduler) start() {
	go s.loop()
}

func (s *retryScheduler) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.clk.After(s.interval):
			s.pass(s.ctx)
		}
	}
}

// stop cancels the scheduler context and waits for the loop to exit. A pass
// in flight sees its context cancelled and abandons its remaining work.
func (s *retryScheduler) stop() {
	s.cancel()
	<-s.done
}

// RetryPending runs one delivery pass: every pending sent message re-runs
// its original send path, and expired attachment grants are stripped. At
// most one pass runs at a time; a call that finds one already in flight
// returns immediately without doing anything. The background scheduler calls
// this on every tick.
func (c *Client) RetryPending(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	select {
	case c.passSlot <- struct{}{}:
	default:
		return nil
	}
	defer func() { <-c.passSlot }()

	if _, err := c.ExpireAttachments(ctx); err != nil {
		c.logger.Warn("attachment expiry failed", "error", err)
	}

	messages, err := c.listMessages(ctx)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if !msg.Core().Pending {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch v := msg.(type) {
		case *DirectSent:
			c.retryDirect(ctx, v)
		case *GroupSent:
			c.retryGroup(ctx, v)
		}
	}
	return nil
}

// retryDirect re-puts the stored ciphertext to the recipient's put address.
// The bytes on the relay are identical across attempts, so the receiving
// side's de-duplication treats them as one message.
func (c *Client) retryDirect(ctx context.Context, msg *DirectSent) {
	unlock := c.lockContact(msg.RecipientID)
	defer unlock()

	contact, err := c.loadContact(ctx, msg.RecipientID)
	if err != nil {
		c.logger.Warn("retry skipped", "message", msg.ID, "error", err)
		return
	}
	entry, err := c.contactKeyEntry(ctx, contact)
	if err != nil {
		c.logger.Warn("retry skipped", "message", msg.ID, "error", err)
		return
	}

	blob, err := decodeCiphertext(msg.Ciphertext)
	if err != nil {
		c.logger.Warn("retry skipped", "message", msg.ID, "error", err)
		return
	}
	if err := c.relay.PutMessage(ctx, entry.putAddress, blob); err != nil {
		c.logger.Debug("retry delivery failed", "message", msg.ID, "error", err)
		return
	}

	msg.Pending = false
	if err := c.persistMessage(ctx, msg); err != nil {
		c.logger.Warn("persist delivered flag failed", "message", msg.ID, "error", err)
	}
}

// retryGroup re-runs the whole fan-out. The plaintext comes back out of the
// sender's own copy; every member gets a freshly sealed blob. The message
// flips to delivered only if every member's put succeeds in this pass.
func (c *Client) retryGroup(ctx context.Context, msg *GroupSent) {
	group, err := c.loadGroup(ctx, msg.GroupID)
	if err != nil {
		c.logger.Warn("retry skipped", "message", msg.ID, "error", err)
		return
	}
	if len(group.MemberIDs) == 0 {
		c.logger.Warn("retry skipped: group has no members", "message", msg.ID, "group", group.ID)
		return
	}

	payload, err := c.decryptPayload(ctx, msg)
	if err != nil {
		c.logger.Warn("retry skipped", "message", msg.ID, "error", err)
		return
	}

	if !c.fanOut(ctx, group, payload) {
		return
	}

	msg.Pending = false
	if err := c.persistMessage(ctx, msg); err != nil {
		c.logger.Warn("persist delivered flag failed", "message", msg.ID, "error", err)
	}
}
