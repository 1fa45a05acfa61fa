// internal/games/engine.go
//
// The pluggable rule engine contract. Engines are pure, synchronous state
// machines over one game's board; all I/O and locking live with the caller.
package games

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/asimov-arena/playground/internal/protocol"
)

// ErrGameCompleted signals that the last applied move ended the game. It is
// a control outcome, not a failure: callers transition into their finish
// sequence when they see it.
var ErrGameCompleted = errors.New("game completed")

// Engine is implemented by every concrete game.
type Engine interface {
	// State exposes the shared seat/turn bookkeeping (provided by Base).
	State() *Base

	Name() string
	MaxPlayers() int

	// AssignRole picks a seat label for a joining player, or "" when the
	// game has no roles.
	AssignRole(playerID uuid.UUID) string

	// InitGame sets the initial board and first turn. Called exactly once,
	// when the last seat fills.
	InitGame()

	// MakeMove applies a move for the player holding role. It returns
	// ErrGameCompleted when the move ends the game, or a protocol error of
	// kind IllegalMove when the move is not legal.
	MakeMove(playerID uuid.UUID, role string, move map[string]interface{}) error

	// Score maps every seated player to -1, 0 or +1. Valid only after
	// completion.
	Score() map[uuid.UUID]int

	// ShowBoard returns a snapshot of the board, possibly visibility
	// filtered (e.g. hidden simultaneous choices while pending).
	ShowBoard() map[string]interface{}
}

// Base carries the bookkeeping every engine shares. Concrete engines embed
// it and implement the rest of the Engine interface.
type Base struct {
	Players []uuid.UUID
	Roles   map[uuid.UUID]string
	Seats   map[string]uuid.UUID

	Playing    bool
	Turn       uuid.UUID
	MoveNumber int

	Winner    uuid.UUID
	HasWinner bool
}

// NewBase returns an initialized Base.
func NewBase() Base {
	return Base{
		Roles: make(map[uuid.UUID]string),
		Seats: make(map[string]uuid.UUID),
	}
}

// State satisfies the Engine interface for embedders.
func (b *Base) State() *Base { return b }

// SetWinner records playerID as the game's winner.
func (b *Base) SetWinner(playerID uuid.UUID) {
	b.Winner = playerID
	b.HasWinner = true
}

// SetDraw records that the game completed without a winner.
func (b *Base) SetDraw() {
	b.Winner = uuid.Nil
	b.HasWinner = false
}

// WinLossScore is the score map shared by all two-outcome games: the winner
// gets +1 and everyone else -1, or all zero on a draw.
func (b *Base) WinLossScore() map[uuid.UUID]int {
	scores := make(map[uuid.UUID]int, len(b.Players))
	for _, p := range b.Players {
		switch {
		case !b.HasWinner:
			scores[p] = 0
		case p == b.Winner:
			scores[p] = 1
		default:
			scores[p] = -1
		}
	}
	return scores
}

// AddPlayer seats a player on the engine, assigning a role and starting the
// game once the last seat fills. Returns the assigned role.
func AddPlayer(e Engine, playerID uuid.UUID) (string, error) {
	b := e.State()
	if _, ok := b.Roles[playerID]; ok {
		return "", protocol.NewError(protocol.KindExistingPlayer)
	}
	if len(b.Players) >= e.MaxPlayers() {
		return "", protocol.NewError(protocol.KindGameFull)
	}
	role := e.AssignRole(playerID)
	b.Players = append(b.Players, playerID)
	b.Roles[playerID] = role
	if role != "" {
		b.Seats[role] = playerID
	}
	if len(b.Players) == e.MaxPlayers() {
		b.Playing = true
		b.MoveNumber = 0
		e.InitGame()
	}
	return role, nil
}

// ApplyMove enforces the universal preconditions (game running, mover to
// move) before delegating to the engine's own move logic. The move counter
// advances for every attempted transition, matching the engine-assigned
// epoch the broker observes.
func ApplyMove(e Engine, playerID uuid.UUID, move map[string]interface{}) error {
	b := e.State()
	if !b.Playing {
		return protocol.NewError(protocol.KindGameNotRunning)
	}
	if b.Turn != playerID {
		return protocol.NewError(protocol.KindNotPlayersTurn)
	}
	b.MoveNumber++
	err := e.MakeMove(playerID, b.Roles[playerID], move)
	if errors.Is(err, ErrGameCompleted) {
		b.Playing = false
	}
	return err
}

// registry is the closed set of known games.
var registry = map[string]func() Engine{
	"tictactoe": NewTicTacToe,
	"rps":       NewRPS,
	"kalaha":    NewKalaha,
}

// New constructs a fresh engine for the named game.
func New(name string) (Engine, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown game %q", name)
	}
	return ctor(), nil
}

// Names lists the registered games in stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// illegalMove builds the IllegalMove protocol error engines raise for bad
// move shapes and rule violations.
func illegalMove(details string) *protocol.Error {
	return protocol.Errorf(protocol.KindIllegalMove, details)
}

// intField extracts an integer move field from a decoded JSON payload,
// where numbers arrive as float64.
func intField(move map[string]interface{}, key string) (int, error) {
	v, ok := move[key]
	if !ok {
		return 0, illegalMove("move is missing required field " + key)
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, illegalMove("move field " + key + " must be an integer")
		}
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, illegalMove("move field " + key + " must be an integer")
	}
}

// stringField extracts a string move field from a decoded JSON payload.
func stringField(move map[string]interface{}, key string) (string, error) {
	v, ok := move[key]
	if !ok {
		return "", illegalMove("move is missing required field " + key)
	}
	s, ok := v.(string)
	if !ok {
		return "", illegalMove("move field " + key + " must be a string")
	}
	return s, nil
}
