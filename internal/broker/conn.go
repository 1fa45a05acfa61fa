// internal/broker/conn.go
package broker

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/asimov-arena/playground/internal/auth"
	"github.com/asimov-arena/playground/internal/protocol"
)

// ErrConnGone is the resolution for callbacks whose connection dropped
// before the peer answered.
var ErrConnGone = errors.New("connection closed before acknowledgement")

// errOutboundFull resolves callbacks when a connection's outbound buffer is
// saturated and the frame had to be dropped.
var errOutboundFull = errors.New("outbound buffer full")

// Conn is the broker's view of one websocket connection. The transport
// layer drains Out; the broker never blocks on a slow peer.
type Conn struct {
	ID        uuid.UUID
	Principal auth.Principal

	// BotID is the resolved bot identity for agent connections.
	BotID uuid.UUID

	Out chan protocol.Envelope

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]func(error)
}

// NewConn builds a registered-ready connection for the given principal.
func NewConn(principal auth.Principal, botID uuid.UUID) *Conn {
	return &Conn{
		ID:        uuid.New(),
		Principal: principal,
		BotID:     botID,
		Out:       make(chan protocol.Envelope, 32),
		pending:   make(map[uint64]func(error)),
	}
}

// Send wraps msg in an envelope and queues it. A non-nil callback is
// resolved when the peer acks (nil) or answers with a fail frame (the
// mapped error); this is what turns fire-and-forget sends into a
// request/acknowledgement primitive.
func (c *Conn) Send(msg protocol.Message, callback func(error)) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	if callback != nil {
		c.pending[seq] = callback
	}
	c.mu.Unlock()

	env, err := protocol.Wrap(msg, seq)
	if err != nil {
		c.resolve(seq, err)
		return err
	}
	return c.push(env, seq)
}

// SendFrame queues a pre-built frame (ack or fail).
func (c *Conn) SendFrame(env protocol.Envelope) {
	_ = c.push(env, 0)
}

func (c *Conn) push(env protocol.Envelope, seq uint64) error {
	select {
	case c.Out <- env:
		return nil
	default:
		if seq != 0 {
			c.resolve(seq, errOutboundFull)
		}
		return errOutboundFull
	}
}

// resolve fires and clears the pending callback for seq, if any.
func (c *Conn) resolve(seq uint64, err error) {
	c.mu.Lock()
	cb := c.pending[seq]
	delete(c.pending, seq)
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// fail resolves every outstanding callback; called when the connection
// drops so in-flight operations fail their eventual acknowledgement.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]func(error))
	c.mu.Unlock()
	for _, cb := range pending {
		cb(err)
	}
}
