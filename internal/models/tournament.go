package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchState is the lifecycle of a scheduled pairing.
type MatchState string

const (
	MatchPending   MatchState = "pending"
	MatchRunning   MatchState = "running"
	MatchCompleted MatchState = "completed"
	MatchErrored   MatchState = "errored"
	MatchDeleted   MatchState = "deleted"
)

// Tournament is a named round-robin competition for one game.
type Tournament struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Game        string    `json:"game"`
	Description string    `json:"description,omitempty"`
	APIKey      string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Participant binds one bot to one tournament. Index is unique within the
// tournament and drives deterministic match ordering.
type Participant struct {
	ID           uuid.UUID `json:"id"`
	TournamentID uuid.UUID `json:"tournamentId"`
	BotID        uuid.UUID `json:"botId"`
	Index        int       `json:"index"`
	Disqualified bool      `json:"disqualified"`
}

// Match pairs exactly two participants of one tournament. Index is derived
// from both participants' indices so the same unordered pair never collides.
type Match struct {
	ID           uuid.UUID  `json:"id"`
	TournamentID uuid.UUID  `json:"tournamentId"`
	Index        int        `json:"index"`
	State        MatchState `json:"state"`
	PlayerA      uuid.UUID  `json:"playerA"`
	PlayerB      uuid.UUID  `json:"playerB"`

	// RoomID links the match to the room it was played in, once running.
	RoomID uuid.UUID `json:"roomId,omitempty"`
}
