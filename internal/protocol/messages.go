// internal/protocol/messages.go
//
// Typed event definitions for the arena wire protocol. Every event knows its
// wire name and validates its own required fields; decoding rejects unknown
// fields so a malformed payload surfaces as an InputValidationError instead
// of silently dropping data.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
)

// Wire names, one per event type.
const (
	EventCreateRoom  = "createroom"
	EventRoomCreated = "roomcreated"
	EventJoin        = "join"
	EventRegister    = "register"
	EventJoinSuccess = "joinsuccess"
	EventJoinFail    = "joinfail"
	EventJoined      = "joined"
	EventJoinAck     = "joinacknowledgement"
	EventMove        = "move"
	EventPlayerMove  = "playermove"
	EventGameUpdate  = "gameupdate"
	EventGamestate   = "gamestate"
	EventList        = "list"
	EventRooms       = "rooms"
	EventSpectate    = "spectate"
	EventSpectated   = "spectated"
	EventFail        = "fail"
	EventAck         = "ack"
)

// Visibility selects the audience of a game update.
const (
	VisibilityBroadcast = "broadcast"
	VisibilitySpectator = "spectator"
	VisibilityPrivate   = "private"
)

// Message is any typed event that can travel in an envelope body.
type Message interface {
	EventName() string
	Validate() error
}

// CreateRoom is sent by a game server to open a new room.
type CreateRoom struct {
	Name       string `json:"name"`
	Game       string `json:"game"`
	MaxPlayers int    `json:"maxplayers"`
}

func (CreateRoom) EventName() string { return EventCreateRoom }

func (m CreateRoom) Validate() error {
	if m.Name == "" {
		return Errorf(KindInputValidation, "createroom requires a room name")
	}
	if m.Game == "" {
		return Errorf(KindInputValidation, "createroom requires a game name")
	}
	if m.MaxPlayers < 1 {
		return Errorf(KindInputValidation, "createroom requires maxplayers >= 1")
	}
	return nil
}

// RoomCreated confirms room creation back to the owning game server.
type RoomCreated struct {
	RoomID uuid.UUID `json:"roomid"`
}

func (RoomCreated) EventName() string { return EventRoomCreated }

func (m RoomCreated) Validate() error {
	return requireIDs(field{"roomid", m.RoomID})
}

// Join is a player's request to enter a room.
type Join struct {
	RoomID uuid.UUID `json:"roomid"`
	Name   string    `json:"name"`
}

func (Join) EventName() string { return EventJoin }

func (m Join) Validate() error {
	if m.Name == "" {
		return Errorf(KindInputValidation, "join requires a player name")
	}
	return requireIDs(field{"roomid", m.RoomID})
}

// Register forwards a join request to the room's game server.
type Register struct {
	RoomID   uuid.UUID `json:"roomid"`
	PlayerID uuid.UUID `json:"playerid"`
}

func (Register) EventName() string { return EventRegister }

func (m Register) Validate() error {
	return requireIDs(field{"roomid", m.RoomID}, field{"playerid", m.PlayerID})
}

// JoinSuccess is the game server confirming a player's admission.
type JoinSuccess struct {
	RoomID   uuid.UUID `json:"roomid"`
	PlayerID uuid.UUID `json:"playerid"`
	GameRole string    `json:"gamerole,omitempty"`
}

func (JoinSuccess) EventName() string { return EventJoinSuccess }

func (m JoinSuccess) Validate() error {
	return requireIDs(field{"roomid", m.RoomID}, field{"playerid", m.PlayerID})
}

// JoinFail is the game server rejecting a player's admission.
type JoinFail struct {
	RoomID   uuid.UUID `json:"roomid"`
	PlayerID uuid.UUID `json:"playerid"`
	Reason   string    `json:"reason,omitempty"`
}

func (JoinFail) EventName() string { return EventJoinFail }

func (m JoinFail) Validate() error {
	return requireIDs(field{"roomid", m.RoomID}, field{"playerid", m.PlayerID})
}

// Joined notifies a player (and, with Broadcast set, the whole room) that a
// player has entered.
type Joined struct {
	RoomID    uuid.UUID `json:"roomid"`
	PlayerID  uuid.UUID `json:"playerid"`
	Name      string    `json:"name"`
	GameRole  string    `json:"gamerole,omitempty"`
	Broadcast bool      `json:"broadcast"`
}

func (Joined) EventName() string { return EventJoined }

func (m Joined) Validate() error {
	return requireIDs(field{"roomid", m.RoomID}, field{"playerid", m.PlayerID})
}

// JoinAcknowledgement tells the game server that the player actually
// received its joined notification. Closing this handshake lets the server
// wait for every seat to be confirmed-delivered before starting the game.
type JoinAcknowledgement struct {
	RoomID   uuid.UUID `json:"roomid"`
	PlayerID uuid.UUID `json:"playerid"`
}

func (JoinAcknowledgement) EventName() string { return EventJoinAck }

func (m JoinAcknowledgement) Validate() error {
	return requireIDs(field{"roomid", m.RoomID}, field{"playerid", m.PlayerID})
}

// Move is a player's move request.
type Move struct {
	RoomID   uuid.UUID              `json:"roomid"`
	PlayerID uuid.UUID              `json:"playerid"`
	Move     map[string]interface{} `json:"move"`
}

func (Move) EventName() string { return EventMove }

func (m Move) Validate() error {
	if m.Move == nil {
		return Errorf(KindInputValidation, "move requires a move payload")
	}
	return requireIDs(field{"roomid", m.RoomID}, field{"playerid", m.PlayerID})
}

// PlayerMove relays a validated move to the room's game server, tagged with
// the move-log entry id so the resulting update can be correlated.
type PlayerMove struct {
	RoomID   uuid.UUID              `json:"roomid"`
	PlayerID uuid.UUID              `json:"playerid"`
	Move     map[string]interface{} `json:"move"`
	StateID  uuid.UUID              `json:"stateid"`
}

func (PlayerMove) EventName() string { return EventPlayerMove }

func (m PlayerMove) Validate() error {
	if m.Move == nil {
		return Errorf(KindInputValidation, "playermove requires a move payload")
	}
	return requireIDs(field{"roomid", m.RoomID}, field{"playerid", m.PlayerID}, field{"stateid", m.StateID})
}

// Finish describes how a game ended. Scores map player id -> {-1,0,1}.
type Finish struct {
	Normal bool           `json:"normal"`
	Reason string         `json:"reason,omitempty"`
	Fault  uuid.UUID      `json:"fault,omitempty"`
	Scores map[string]int `json:"scores,omitempty"`
}

// Validate checks score bounds; a finish with out-of-range scores is
// rejected before any room state changes.
func (f *Finish) Validate() error {
	for id, s := range f.Scores {
		if s < -1 || s > 1 {
			return Errorf(KindInputValidation, "finish score for "+id+" outside [-1,1]")
		}
	}
	return nil
}

// GameUpdate is the authoritative state transition event from a game
// server. Private updates address one player and carry no epoch; broadcast
// and spectator updates carry an epoch and no player.
type GameUpdate struct {
	RoomID     uuid.UUID              `json:"roomid"`
	Visibility string                 `json:"visibility"`
	Epoch      *int                   `json:"epoch,omitempty"`
	Board      map[string]interface{} `json:"board"`
	StateID    uuid.UUID              `json:"stateid,omitempty"`
	PlayerID   uuid.UUID              `json:"playerid,omitempty"`
	Turn       uuid.UUID              `json:"turn,omitempty"`
	Finish     *Finish                `json:"finish,omitempty"`
}

func (GameUpdate) EventName() string { return EventGameUpdate }

func (m GameUpdate) Validate() error {
	if err := requireIDs(field{"roomid", m.RoomID}); err != nil {
		return err
	}
	if m.Board == nil {
		return Errorf(KindInputValidation, "gameupdate requires a board")
	}
	switch m.Visibility {
	case VisibilityPrivate:
		if m.PlayerID == uuid.Nil {
			return Errorf(KindInputValidation, "private gameupdate requires playerid")
		}
		if m.Epoch != nil {
			return Errorf(KindInputValidation, "private gameupdate must not carry an epoch")
		}
	case VisibilityBroadcast, VisibilitySpectator:
		if m.Epoch == nil {
			return Errorf(KindInputValidation, "gameupdate requires an epoch")
		}
		if m.PlayerID != uuid.Nil {
			return Errorf(KindInputValidation, "non-private gameupdate must not carry playerid")
		}
	default:
		return Errorf(KindInputValidation, "visibility must be broadcast, spectator or private")
	}
	if m.Finish != nil {
		return m.Finish.Validate()
	}
	return nil
}

// Gamestate carries a board snapshot from the broker to players and
// spectators. A non-nil Finish marks the terminal state of the room.
type Gamestate struct {
	RoomID   uuid.UUID              `json:"roomid"`
	Board    map[string]interface{} `json:"board"`
	Epoch    int                    `json:"epoch"`
	PlayerID uuid.UUID              `json:"playerid,omitempty"`
	Turn     uuid.UUID              `json:"turn,omitempty"`
	Finish   *Finish                `json:"finish,omitempty"`
}

func (Gamestate) EventName() string { return EventGamestate }

func (m Gamestate) Validate() error {
	return requireIDs(field{"roomid", m.RoomID})
}

// List requests a snapshot of joinable rooms. Reply goes to the sender.
type List struct{}

func (List) EventName() string { return EventList }

func (List) Validate() error { return nil }

// RoomSummary is one row of the lobby listing.
type RoomSummary struct {
	Name       string `json:"name"`
	Game       string `json:"game"`
	MaxPlayers int    `json:"maxplayers"`
	Players    int    `json:"players"`
	Status     string `json:"status"`
}

// Rooms is the reply to List, keyed by room id.
type Rooms struct {
	Rooms map[string]RoomSummary `json:"rooms"`
}

func (Rooms) EventName() string { return EventRooms }

func (Rooms) Validate() error { return nil }

// Spectate subscribes the sender to a room's broadcast and spectator groups
// and returns the current state plus the ordered move log.
type Spectate struct {
	RoomID uuid.UUID `json:"roomid"`
}

func (Spectate) EventName() string { return EventSpectate }

func (m Spectate) Validate() error {
	return requireIDs(field{"roomid", m.RoomID})
}

// SpectatedPlayer is a player row inside a Spectated reply.
type SpectatedPlayer struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	GameRole string    `json:"gamerole,omitempty"`
	Joined   bool      `json:"joined"`
}

// SpectatedState is one move-log row inside a Spectated reply.
type SpectatedState struct {
	ID       uuid.UUID              `json:"id"`
	Epoch    int                    `json:"epoch"`
	PlayerID uuid.UUID              `json:"playerid,omitempty"`
	Move     map[string]interface{} `json:"move,omitempty"`
	Board    map[string]interface{} `json:"board,omitempty"`
	Turn     uuid.UUID              `json:"turn,omitempty"`
}

// Spectated is the synchronous reply to Spectate.
type Spectated struct {
	RoomID  uuid.UUID              `json:"roomid"`
	Board   map[string]interface{} `json:"board,omitempty"`
	Status  string                 `json:"status"`
	Turn    uuid.UUID              `json:"turn,omitempty"`
	Players []SpectatedPlayer      `json:"players"`
	States  []SpectatedState       `json:"states"`
}

func (Spectated) EventName() string { return EventSpectated }

func (m Spectated) Validate() error {
	return requireIDs(field{"roomid", m.RoomID})
}

// Fail reports a structured failure back to the offending sender. Its body
// is exactly the Error shape.
type Fail Error

func (Fail) EventName() string { return EventFail }

func (Fail) Validate() error { return nil }

// Err converts the fail body back into the error it encodes.
func (m Fail) Err() *Error {
	return &Error{Kind: KindOf(string(m.Kind)), Details: m.Details, RespondingTo: m.RespondingTo}
}

type field struct {
	name string
	id   uuid.UUID
}

func requireIDs(fields ...field) error {
	for _, f := range fields {
		if f.id == uuid.Nil {
			return Errorf(KindInputValidation, "missing required field "+f.name)
		}
	}
	return nil
}

// decoders maps wire names to constructors for inbound decoding. Only
// events a peer may legitimately send appear here; ack frames carry no body.
var decoders = map[string]func() Message{
	EventCreateRoom:  func() Message { return &CreateRoom{} },
	EventRoomCreated: func() Message { return &RoomCreated{} },
	EventJoin:        func() Message { return &Join{} },
	EventRegister:    func() Message { return &Register{} },
	EventJoinSuccess: func() Message { return &JoinSuccess{} },
	EventJoinFail:    func() Message { return &JoinFail{} },
	EventJoined:      func() Message { return &Joined{} },
	EventJoinAck:     func() Message { return &JoinAcknowledgement{} },
	EventMove:        func() Message { return &Move{} },
	EventPlayerMove:  func() Message { return &PlayerMove{} },
	EventGameUpdate:  func() Message { return &GameUpdate{} },
	EventGamestate:   func() Message { return &Gamestate{} },
	EventList:        func() Message { return &List{} },
	EventRooms:       func() Message { return &Rooms{} },
	EventSpectate:    func() Message { return &Spectate{} },
	EventSpectated:   func() Message { return &Spectated{} },
	EventFail:        func() Message { return &Fail{} },
}

// Decode resolves a wire name, unmarshals the body strictly, and runs the
// message's own validation.
func Decode(event string, body []byte) (Message, error) {
	ctor, ok := decoders[event]
	if !ok {
		return nil, Errorf(KindInputValidation, "unknown event "+event)
	}
	msg := ctor()
	if len(body) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(msg); err != nil {
			return nil, Errorf(KindInputValidation, "malformed "+event+" payload: "+err.Error())
		}
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}
