package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle state of a Room. Transitions only ever go
// lobby -> playing -> finished.
type RoomStatus string

const (
	RoomLobby    RoomStatus = "lobby"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// Room is one pending or in-progress game instance, owned by the engine
// connection that created it. The broker is the sole writer; all mutations
// happen while holding the room's lock.
type Room struct {
	ID         uuid.UUID              `json:"id"`
	Name       string                 `json:"name"`
	Game       string                 `json:"game"`
	MaxPlayers int                    `json:"maxplayers"`
	ServerConn uuid.UUID              `json:"-"`
	Board      map[string]interface{} `json:"board,omitempty"`
	Status     RoomStatus             `json:"status"`

	// Turn is the player next to move, or uuid.Nil.
	Turn uuid.UUID `json:"turn,omitempty"`

	// Epoch is the highest engine-assigned epoch observed so far.
	Epoch int `json:"epoch"`

	NormalFinish *bool     `json:"normalFinish,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BroadcastGroup names the group every joined player and spectator of the
// room belongs to.
func (r *Room) BroadcastGroup() string {
	return "room:" + r.ID.String()
}

// SpectatorGroup names the spectator-only group for the room.
func (r *Room) SpectatorGroup() string {
	return "spectator:" + r.ID.String()
}

// Player is one seat request in a Room, bound to the agent connection that
// made it. Joined flips true once the owning engine confirms admission.
type Player struct {
	ID       uuid.UUID `json:"id"`
	RoomID   uuid.UUID `json:"roomId"`
	Name     string    `json:"name"`
	Conn     uuid.UUID `json:"-"`
	BotID    uuid.UUID `json:"botId,omitempty"`
	Joined   bool      `json:"joined"`
	GameRole string    `json:"gamerole,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// GameState is one entry of a room's move log. Entries are immutable once
// created except for the idempotent upsert keyed by a caller-supplied id.
type GameState struct {
	ID       uuid.UUID              `json:"id"`
	RoomID   uuid.UUID              `json:"roomId"`
	PlayerID uuid.UUID              `json:"playerId,omitempty"`
	Epoch    int                    `json:"epoch"`
	Move     map[string]interface{} `json:"move,omitempty"`
	Board    map[string]interface{} `json:"board,omitempty"`
	Turn     uuid.UUID              `json:"turn,omitempty"`
	SavedAt  time.Time              `json:"savedAt"`
}

// Bot is an agent identity that can present an API key at connect time.
type Bot struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`

	// KeyHash is the argon2id hash of the bot's API key. Never serialized.
	KeyHash string `json:"-"`
}
