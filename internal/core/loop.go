package core

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/napmirror/internal/events"
	"github.com/danmuck/napmirror/internal/protocol"
)

// Run is the mirror's event loop. It processes inbound envelopes strictly in
// arrival order and runs the closures submitted through Do between them.
// Run returns when ctx ends or the transport's envelope stream closes.
func (c *Core) Run(ctx context.Context) error {
	defer c.stop()
	envs := c.transport.Envelopes()
	c.logger.Info().Str("identity", c.Identity()).Msg("core: event loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-envs:
			if !ok {
				return c.transportErr()
			}
			c.receive(ctx, env)
		case t := <-c.tasks:
			t.fn(c)
			close(t.done)
		}
	}
}

// Do runs fn on the event loop and waits for it to finish. fn may read and
// query the mirror freely; it must not call Do or a waiting call.
func (c *Core) Do(ctx context.Context, fn func(*Core)) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case c.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (c *Core) Done() <-chan struct{} {
	return c.done
}

// HandleMessage dispatches one envelope synchronously. Protocol and
// capability failures are returned after being published as a
// dispatch-failed event; stale references are logged and dropped.
func (c *Core) HandleMessage(env protocol.Envelope) error {
	err := c.disp.Dispatch(env)
	if err == nil {
		return nil
	}
	c.logger.Error().
		Str("id", env.ID).
		Str("class", protocol.Classify(err)).
		Err(err).
		Msg("core: dispatch failed")
	c.bus.Publish(events.Event{Type: events.DispatchFailed, MessageID: env.ID, Err: err})
	c.received.advance(err)
	return err
}

func (c *Core) receive(ctx context.Context, env protocol.Envelope) {
	if c.journal != nil && env.Err == nil {
		if err := c.journal.Append(ctx, env, time.Now()); err != nil {
			c.logger.Warn().Str("id", env.ID).Err(err).Msg("core: journal append failed")
		}
	}
	_ = c.HandleMessage(env)
}

func (c *Core) onReceived(env protocol.Envelope) {
	c.bus.Publish(events.Event{Type: events.MessageReceived, MessageID: env.ID})
	c.received.advance(nil)
}

func (c *Core) stop() {
	c.stopOnce.Do(func() {
		c.received.stop()
		close(c.done)
		c.logger.Info().Msg("core: event loop stopped")
	})
}

func (c *Core) transportErr() error {
	if e, ok := c.transport.(interface{ Err() error }); ok {
		if err := e.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrTransportClosed, err)
		}
	}
	return ErrTransportClosed
}
