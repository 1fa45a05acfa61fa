// internal/client/conn.go
//
// Websocket client plumbing shared by the game-server and agent state
// machines: envelope framing, per-frame sequence numbers, pending-callback
// resolution, and automatic acknowledgement of received events.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/protocol"
)

// Subprotocol spoken against the broker's /arena/ws endpoint.
const arenaSubprotocol = "arena.v1"

const (
	writeTimeout = 5 * time.Second
	emitTimeout  = 10 * time.Second
)

// ErrClosed reports that the connection went away before an in-flight
// emit was answered.
var ErrClosed = errors.New("connection closed")

// WS is one authenticated connection to the broker.
type WS struct {
	log  *logrus.Logger
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]chan error
	closed  bool
}

// Dial connects to the broker with the given credential headers.
func Dial(ctx context.Context, url string, header http.Header, log *logrus.Logger) (*WS, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{arenaSubprotocol},
		HTTPHeader:   header,
	})
	if err != nil {
		return nil, err
	}
	return &WS{
		log:     log,
		conn:    conn,
		pending: make(map[uint64]chan error),
	}, nil
}

// Close tears the connection down and fails every in-flight emit.
func (w *WS) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	pending := w.pending
	w.pending = make(map[uint64]chan error)
	w.mu.Unlock()

	for _, ch := range pending {
		ch <- ErrClosed
	}
	_ = w.conn.Close(websocket.StatusNormalClosure, "client done")
}

func (w *WS) writeFrame(ctx context.Context, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.Write(writeCtx, websocket.MessageText, data)
}

// Emit sends one event without waiting for the broker's answer.
func (w *WS) Emit(ctx context.Context, msg protocol.Message) error {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	env, err := protocol.Wrap(msg, seq)
	if err != nil {
		return err
	}
	return w.writeFrame(ctx, env)
}

// EmitWait sends one event and blocks until the broker acks it, answers
// with a fail frame (returned as the mapped protocol error), or the
// timeout expires.
func (w *WS) EmitWait(ctx context.Context, msg protocol.Message) error {
	done := make(chan error, 1)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.seq++
	seq := w.seq
	w.pending[seq] = done
	w.mu.Unlock()

	env, err := protocol.Wrap(msg, seq)
	if err == nil {
		err = w.writeFrame(ctx, env)
	}
	if err != nil {
		w.drop(seq)
		return err
	}

	timer := time.NewTimer(emitTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		w.drop(seq)
		return ctx.Err()
	case <-timer.C:
		w.drop(seq)
		return errors.New("timed out awaiting acknowledgement for " + msg.EventName())
	}
}

func (w *WS) drop(seq uint64) {
	w.mu.Lock()
	delete(w.pending, seq)
	w.mu.Unlock()
}

func (w *WS) resolve(seq uint64, err error) {
	w.mu.Lock()
	ch := w.pending[seq]
	delete(w.pending, seq)
	w.mu.Unlock()
	if ch != nil {
		ch <- err
	}
}

// Run is the read loop: responses resolve pending emits, events are
// decoded, handed to handle, and acknowledged once handle returns. It
// blocks until the connection drops or handle returns an error, which is
// then propagated.
func (w *WS) Run(ctx context.Context, handle func(context.Context, protocol.Message) error) error {
	defer w.Close()
	for {
		typ, data, err := w.conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			w.log.Warnf("malformed frame from broker: %v", err)
			continue
		}
		if seq, respErr, ok := env.Response(); ok {
			w.resolve(seq, respErr)
			continue
		}

		msg, err := protocol.Decode(env.Event, env.Body)
		if err != nil {
			w.log.Warnf("undecodable %s event: %v", env.Event, err)
			perr := protocol.Errorf(protocol.KindInputValidation, "undecodable event")
			perr.RespondingTo = env.Event
			_ = w.writeFrame(ctx, protocol.FailFrame(perr, env.Seq))
			continue
		}

		handleErr := handle(ctx, msg)
		if env.Seq != 0 {
			// Acknowledge delivery even when the handler decided to stop;
			// the broker side of the handshake must not hang.
			_ = w.writeFrame(ctx, protocol.AckFrame(env.Seq))
		}
		if handleErr != nil {
			return handleErr
		}
	}
}
