// internal/games/rps.go
package games

import (
	"github.com/google/uuid"
)

// beats maps each rock-paper-scissors choice to the one it defeats.
var beats = map[string]string{
	"rock":     "scissors",
	"scissors": "paper",
	"paper":    "rock",
}

// RPS is the simultaneous two-choice game. The first mover's choice stays
// hidden until the second mover resolves the round; a tie restarts the
// round without completing the game.
type RPS struct {
	Base
	choices map[uuid.UUID]string
	first   uuid.UUID
}

// NewRPS returns a fresh rock-paper-scissors engine.
func NewRPS() Engine {
	return &RPS{Base: NewBase(), choices: make(map[uuid.UUID]string)}
}

func (g *RPS) Name() string    { return "rps" }
func (g *RPS) MaxPlayers() int { return 2 }

// AssignRole returns "": the game has no seat labels.
func (g *RPS) AssignRole(playerID uuid.UUID) string { return "" }

func (g *RPS) InitGame() {
	g.first = g.Players[0]
	g.Turn = g.first
}

func (g *RPS) MakeMove(playerID uuid.UUID, role string, move map[string]interface{}) error {
	choice, err := stringField(move, "move")
	if err != nil {
		return err
	}
	if _, ok := beats[choice]; !ok {
		return illegalMove("move must be one of rock, paper, scissors")
	}

	if len(g.choices) == 0 {
		g.choices[playerID] = choice
		g.Turn = g.other(playerID)
		return nil
	}

	opponent := g.other(playerID)
	held := g.choices[opponent]
	if held == choice {
		// Tied round, both choices are discarded and play restarts.
		g.choices = make(map[uuid.UUID]string)
		g.Turn = g.first
		return nil
	}
	g.choices[playerID] = choice
	if beats[choice] == held {
		g.SetWinner(playerID)
	} else {
		g.SetWinner(opponent)
	}
	return ErrGameCompleted
}

func (g *RPS) other(playerID uuid.UUID) uuid.UUID {
	for _, p := range g.Players {
		if p != playerID {
			return p
		}
	}
	return uuid.Nil
}

func (g *RPS) Score() map[uuid.UUID]int {
	return g.WinLossScore()
}

// ShowBoard hides pending choices while the game is still playing.
func (g *RPS) ShowBoard() map[string]interface{} {
	choices := make(map[string]interface{}, len(g.Players))
	for _, p := range g.Players {
		if c, ok := g.choices[p]; ok && !g.Playing {
			choices[p.String()] = c
		} else {
			choices[p.String()] = nil
		}
	}
	return map[string]interface{}{"choices": choices}
}
