// internal/protocol/envelope.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the single frame shape on the wire. Seq is a per-connection
// monotonic counter stamped by the sender; ack and fail frames echo it in
// Ack, which is how a send's completion callback gets resolved.
type Envelope struct {
	Event string          `json:"e"`
	Seq   uint64          `json:"seq,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// Wrap builds an envelope around a message with the given sequence number.
func Wrap(msg Message, seq uint64) (Envelope, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", msg.EventName(), err)
	}
	return Envelope{Event: msg.EventName(), Seq: seq, Body: body}, nil
}

// AckFrame acknowledges receipt of the frame carrying seq.
func AckFrame(seq uint64) Envelope {
	return Envelope{Event: EventAck, Ack: seq}
}

// FailFrame wraps a protocol error as the response to the frame carrying
// seq. Marshaling an Error cannot fail, so the error return is ignored.
func FailFrame(e *Error, seq uint64) Envelope {
	body, _ := json.Marshal((*Fail)(e))
	return Envelope{Event: EventFail, Ack: seq, Body: body}
}

// ParseEnvelope decodes a raw frame into an envelope.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, Errorf(KindInputValidation, "malformed frame: "+err.Error())
	}
	if env.Event == "" {
		return Envelope{}, Errorf(KindInputValidation, "frame missing event name")
	}
	return env, nil
}

// Response reports whether the envelope answers a previously sent frame,
// and with what outcome. A fail frame resolves the sender's callback with
// the mapped error; an ack resolves it with nil.
func (env Envelope) Response() (seq uint64, err error, ok bool) {
	if env.Ack == 0 {
		return 0, nil, false
	}
	switch env.Event {
	case EventAck:
		return env.Ack, nil, true
	case EventFail:
		var f Fail
		if jsonErr := json.Unmarshal(env.Body, &f); jsonErr != nil {
			return env.Ack, Errorf(KindInputValidation, "malformed fail frame"), true
		}
		return env.Ack, f.Err(), true
	}
	return 0, nil, false
}
