// internal/broker/broker.go
//
// The event broker: sole arbiter of room and player state, central relay
// between game-server connections and agent connections.
package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/models"
	"github.com/asimov-arena/playground/internal/protocol"
)

// Recorder persists finished state out of band. The in-memory stores stay
// authoritative; recorder failures are logged, never surfaced to peers.
type Recorder interface {
	SaveGameState(ctx context.Context, state *models.GameState) error
	SaveRoomResult(ctx context.Context, room *models.Room, finish *protocol.Finish) error
}

// Broker routes events between connections and owns the room store.
type Broker struct {
	log   *logrus.Logger
	Rooms *RoomStore
	rec   Recorder

	mu     sync.Mutex
	conns  map[uuid.UUID]*Conn
	groups map[string]map[uuid.UUID]*Conn
}

// New builds a broker. rec may be nil.
func New(log *logrus.Logger, rec Recorder) *Broker {
	return &Broker{
		log:    log,
		Rooms:  NewRoomStore(),
		rec:    rec,
		conns:  make(map[uuid.UUID]*Conn),
		groups: make(map[string]map[uuid.UUID]*Conn),
	}
}

// Register adds a connection to the routing table.
func (b *Broker) Register(c *Conn) {
	b.mu.Lock()
	b.conns[c.ID] = c
	b.mu.Unlock()
	b.log.WithFields(logrus.Fields{"conn": c.ID, "role": c.Principal.Role}).Info("connection registered")
}

// Unregister drops a connection from the routing table and every group,
// failing its in-flight callbacks.
func (b *Broker) Unregister(id uuid.UUID) {
	b.mu.Lock()
	c, ok := b.conns[id]
	delete(b.conns, id)
	for _, members := range b.groups {
		delete(members, id)
	}
	b.mu.Unlock()
	if ok {
		c.fail(ErrConnGone)
		b.log.WithField("conn", id).Info("connection unregistered")
	}
}

func (b *Broker) conn(id uuid.UUID) (*Conn, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[id]
	return c, ok
}

// joinGroup subscribes a connection to a broadcast group.
func (b *Broker) joinGroup(group string, c *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	members, ok := b.groups[group]
	if !ok {
		members = make(map[uuid.UUID]*Conn)
		b.groups[group] = members
	}
	members[c.ID] = c
}

// broadcast sends msg to every member of a group.
func (b *Broker) broadcast(group string, msg protocol.Message) {
	b.mu.Lock()
	members := make([]*Conn, 0, len(b.groups[group]))
	for _, c := range b.groups[group] {
		members = append(members, c)
	}
	b.mu.Unlock()
	for _, c := range members {
		if err := c.Send(msg, nil); err != nil {
			b.log.WithFields(logrus.Fields{"conn": c.ID, "event": msg.EventName()}).
				Warn("dropped broadcast frame: ", err)
		}
	}
}

// sendTo addresses msg to one connection by id.
func (b *Broker) sendTo(connID uuid.UUID, msg protocol.Message, callback func(error)) {
	c, ok := b.conn(connID)
	if !ok {
		if callback != nil {
			callback(ErrConnGone)
		}
		b.log.WithFields(logrus.Fields{"conn": connID, "event": msg.EventName()}).
			Warn("dropped frame for unknown connection")
		return
	}
	if err := c.Send(msg, callback); err != nil {
		b.log.WithFields(logrus.Fields{"conn": connID, "event": msg.EventName()}).
			Warn("send failed: ", err)
	}
}

// Dispatch processes one inbound frame from a connection: responses resolve
// pending callbacks, everything else decodes, validates, and runs through
// the handler table. Every request frame is answered with an ack or an
// addressed fail; nothing is silently dropped.
func (b *Broker) Dispatch(ctx context.Context, c *Conn, env protocol.Envelope) {
	if seq, respErr, ok := env.Response(); ok {
		c.resolve(seq, respErr)
		return
	}

	msg, err := protocol.Decode(env.Event, env.Body)
	if err == nil {
		err = b.handle(ctx, c, msg)
	}
	if err != nil {
		perr := asProtocolError(err)
		perr.RespondingTo = env.Event
		b.log.WithFields(logrus.Fields{
			"conn":  c.ID,
			"event": env.Event,
			"kind":  perr.Kind,
		}).Warn(perr.Details)
		c.SendFrame(protocol.FailFrame(perr, env.Seq))
		return
	}
	if env.Seq != 0 {
		c.SendFrame(protocol.AckFrame(env.Seq))
	}
}

// asProtocolError maps any error onto the closed failure taxonomy.
func asProtocolError(err error) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return &protocol.Error{Kind: perr.Kind, Details: perr.Details, RespondingTo: perr.RespondingTo}
	}
	return protocol.Errorf(protocol.KindServerError, err.Error())
}
