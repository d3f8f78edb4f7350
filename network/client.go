package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/automoto/doomerang-netsync/shared/messages"
	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/automoto/doomerang-netsync/shared/protocol"
	"go.uber.org/zap"
)

// Stats is a point-in-time copy of the client's traffic counters.
type Stats struct {
	Received      uint64 // datagrams queued for the consumer
	QueueDropped  uint64 // datagrams dropped because the consumer fell behind
	ReceiveErrors uint64
	Malformed     uint64 // datagrams the consumer failed to decode
	Sent          uint64
	SendErrors    uint64
}

// Dropped is the total of datagrams lost on the client side.
func (s Stats) Dropped() uint64 {
	return s.QueueDropped + s.Malformed
}

type counters struct {
	received      atomic.Uint64
	queueDropped  atomic.Uint64
	receiveErrors atomic.Uint64
	malformed     atomic.Uint64
	sent          atomic.Uint64
	sendErrors    atomic.Uint64
}

// Client owns the datagram transport to the game server. The receive loop
// (Run) only ever pushes raw byte slices into the inbound queue; decoding and
// all sync state belong to the single consumer that calls Inbound.
type Client struct {
	transport Transport
	log       *zap.Logger

	inbound chan []byte
	stats   counters

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewClient wraps an established transport.
func NewClient(t Transport, logger *zap.Logger) *Client {
	return &Client{
		transport: t,
		log:       logger.Named("client"),
		inbound:   make(chan []byte, netconfig.InboundQueueSize),
	}
}

// Run receives datagrams until ctx is done or the transport closes. Receive
// failures are counted and never reach the consumer.
func (c *Client) Run(ctx context.Context) error {
	c.log.Debug("receive loop started")
	defer c.log.Debug("receive loop stopped")

	for {
		data, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return nil
			}
			if errors.Is(err, ErrClosed) {
				return err
			}
			c.stats.receiveErrors.Add(1)
			c.log.Debug("receive error", zap.Error(err))
			continue
		}

		select {
		case c.inbound <- data:
			c.stats.received.Add(1)
		default:
			// Consumer is behind: treat as packet loss.
			c.stats.queueDropped.Add(1)
		}
	}
}

// Inbound drains every queued datagram without blocking.
func (c *Client) Inbound() [][]byte {
	return drainChan(c.inbound)
}

// Send encodes and transmits m. There is no acknowledgement or retry.
func (c *Client) Send(m messages.Message) error {
	payload, err := protocol.Encode(m)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return c.SendRaw(payload)
}

// SendRaw transmits an already encoded datagram.
func (c *Client) SendRaw(payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.transport.Send(payload); err != nil {
		c.stats.sendErrors.Add(1)
		return fmt.Errorf("send: %w", err)
	}
	c.stats.sent.Add(1)
	return nil
}

// ReportMalformed records a datagram the consumer could not decode.
func (c *Client) ReportMalformed(err error) {
	c.stats.malformed.Add(1)
	c.log.Debug("dropped malformed datagram", zap.Error(err))
}

// Close sends a best-effort Disconnect and closes the transport. It is safe
// to call more than once and while the transport is being torn down.
func (c *Client) Close(reason messages.DisconnectReason) {
	c.closeOnce.Do(func() {
		if payload, err := protocol.Encode(messages.Disconnect{Reason: reason}); err == nil {
			// Last write is best-effort.
			_ = c.transport.Send(payload)
		}
		c.closed.Store(true)
		if err := c.transport.Close(); err != nil {
			c.log.Debug("transport close", zap.Error(err))
		}
	})
}

// Stats returns a copy of the traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		Received:      c.stats.received.Load(),
		QueueDropped:  c.stats.queueDropped.Load(),
		ReceiveErrors: c.stats.receiveErrors.Load(),
		Malformed:     c.stats.malformed.Load(),
		Sent:          c.stats.sent.Load(),
		SendErrors:    c.stats.sendErrors.Load(),
	}
}

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
