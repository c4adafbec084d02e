package link

import (
	"context"
	"fmt"
	"sync"
)

// connectionOptions holds the defaultable settings of a radio
// Connection. Zero values mean "use the default", the same rule the
// teacher's RadioConfig applies to AutoRetransmitDelay and PayloadSize.
type connectionOptions struct {
	useSafelink    bool
	sendQueueLimit int
	manager        *DeviceManager
}

// ConnectionOption configures a Connection at construction time.
type ConnectionOption func(*connectionOptions)

// WithSafelink enables the safelink reliable-delivery protocol on a
// radio connection. Defaults to false, per spec.md §6.
func WithSafelink(enabled bool) ConnectionOption {
	return func(o *connectionOptions) { o.useSafelink = enabled }
}

// WithSendQueueLimit bounds the connection's outbound queue. A limit of
// 0 (the default) leaves the queue unbounded; Send returns ErrQueueFull
// once a positive limit is reached.
func WithSendQueueLimit(limit int) ConnectionOption {
	return func(o *connectionOptions) { o.sendQueueLimit = limit }
}

// withManager overrides the DeviceManager a radio connection attaches
// to, used by tests to substitute a fake Enumerator.
func withManager(m *DeviceManager) ConnectionOption {
	return func(o *connectionOptions) { o.manager = m }
}

// Connection is the application-facing handle to a logical link to one
// Crazyflie, either direct over USB or multiplexed over a radio dongle.
// It implements io.Closer.
type Connection struct {
	uri string

	direct *directUSBTarget

	state       *connectionState
	manager     *DeviceManager
	dongleIndex int

	mu     sync.Mutex
	closed bool
}

// NewConnection parses uri and opens the connection it names: a direct
// USB handle for usb://i, or a radio connection attached to (and
// multiplexed by) a DongleWorker for radio://..., per spec.md §4.4.
func NewConnection(uri string, opts ...ConnectionOption) (*Connection, error) {
	parsed, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	options := connectionOptions{manager: DefaultManager()}
	for _, opt := range opts {
		opt(&options)
	}

	if parsed.isUSB {
		target, err := options.manager.enum.OpenDirectUSBTarget(parsed.usbIndex)
		if err != nil {
			return nil, err
		}
		return &Connection{uri: uri, direct: target}, nil
	}

	if parsed.addressWildcard {
		return nil, fmt.Errorf("%w: wildcard address not valid for a connection: %q", ErrURIMalformed, uri)
	}

	state := newConnectionState(uri, parsed.address, parsed.channel, parsed.datarate, options.useSafelink, options.sendQueueLimit)
	_, idx, err := options.manager.attachRadio(state, parsed.dongleIndex)
	if err != nil {
		return nil, err
	}

	return &Connection{
		uri:         uri,
		state:       state,
		manager:     options.manager,
		dongleIndex: idx,
	}, nil
}

// URI returns the URI this connection was constructed from.
func (c *Connection) URI() string { return c.uri }

// Send enqueues p for transmission. For a direct USB target it writes
// synchronously; for a radio connection it pushes onto the send queue
// that the owning DongleWorker drains.
func (c *Connection) Send(p Packet) error {
	if c.direct != nil {
		return c.direct.send(p.Raw())
	}
	if c.state.dead.Load() {
		return ErrDeviceLost
	}
	p.seq = c.state.sendSeq.Add(1)
	if err := c.state.send.push(p); err != nil {
		return err
	}
	c.state.stats.enqueuedCount.Add(1)
	return nil
}

// Recv returns the next received packet. If blocking is true it waits
// (honoring ctx cancellation) until one is available; otherwise it
// returns a zero Packet immediately when none is ready, per spec.md §4.4.
// For a direct USB target ctx is not consulted: a blocking Recv waits
// on the USB read alone, and a non-blocking one waits up to
// directUSBRecvTimeout.
func (c *Connection) Recv(ctx context.Context, blocking bool) (Packet, error) {
	if c.direct != nil {
		return c.direct.recv(blocking)
	}
	if c.state.dead.Load() {
		return Packet{}, ErrDeviceLost
	}
	if blocking {
		return c.state.recv.popBlocking(ctx)
	}
	p, ok := c.state.recv.pop()
	if !ok {
		return Packet{}, nil
	}
	return p, nil
}

// Statistics returns the connection's counters. For a direct USB target
// it returns nil: those counters only apply to the multiplexed radio
// path.
func (c *Connection) Statistics() *Statistics {
	if c.state == nil {
		return nil
	}
	return &c.state.stats
}

// Close detaches a radio connection from its DongleWorker (stopping the
// worker if this was its last connection) or releases a direct USB
// target's handles. Close is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.direct != nil {
		return c.direct.close()
	}
	c.manager.detachRadio(c.state, c.dongleIndex)
	return nil
}
