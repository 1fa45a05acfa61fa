// internal/games/tictactoe.go
package games

import (
	"github.com/google/uuid"
)

// TicTacToe is the 3x3 three-in-a-row grid game. Roles are "x" and "o";
// x moves first.
type TicTacToe struct {
	Base
	grid [3][3]string
}

// NewTicTacToe returns an empty tic-tac-toe engine.
func NewTicTacToe() Engine {
	return &TicTacToe{Base: NewBase()}
}

func (g *TicTacToe) Name() string    { return "tictactoe" }
func (g *TicTacToe) MaxPlayers() int { return 2 }

// AssignRole hands out x first, then o.
func (g *TicTacToe) AssignRole(playerID uuid.UUID) string {
	if _, taken := g.Seats["x"]; taken {
		return "o"
	}
	return "x"
}

func (g *TicTacToe) InitGame() {
	g.grid = [3][3]string{}
	g.Turn = g.Seats["x"]
}

func (g *TicTacToe) MakeMove(playerID uuid.UUID, role string, move map[string]interface{}) error {
	row, err := intField(move, "row")
	if err != nil {
		return err
	}
	col, err := intField(move, "col")
	if err != nil {
		return err
	}
	if row < 0 || row > 2 || col < 0 || col > 2 {
		return illegalMove("row and col must be between 0 and 2")
	}
	if g.grid[row][col] != "" {
		return illegalMove("attempted to play in a square that is already occupied")
	}
	g.grid[row][col] = role

	if g.wins(role, row, col) {
		g.SetWinner(playerID)
		return ErrGameCompleted
	}
	if g.full() {
		g.SetDraw()
		return ErrGameCompleted
	}
	g.Turn = g.other(playerID)
	return nil
}

func (g *TicTacToe) wins(role string, row, col int) bool {
	if g.grid[row][0] == role && g.grid[row][1] == role && g.grid[row][2] == role {
		return true
	}
	if g.grid[0][col] == role && g.grid[1][col] == role && g.grid[2][col] == role {
		return true
	}
	if g.grid[0][0] == role && g.grid[1][1] == role && g.grid[2][2] == role {
		return true
	}
	return g.grid[0][2] == role && g.grid[1][1] == role && g.grid[2][0] == role
}

func (g *TicTacToe) full() bool {
	for _, row := range g.grid {
		for _, cell := range row {
			if cell == "" {
				return false
			}
		}
	}
	return true
}

func (g *TicTacToe) other(playerID uuid.UUID) uuid.UUID {
	for _, p := range g.Players {
		if p != playerID {
			return p
		}
	}
	return uuid.Nil
}

func (g *TicTacToe) Score() map[uuid.UUID]int {
	return g.WinLossScore()
}

// ShowBoard reports the grid with "" for empty squares.
func (g *TicTacToe) ShowBoard() map[string]interface{} {
	grid := make([][]string, 3)
	for i := range g.grid {
		grid[i] = append([]string(nil), g.grid[i][:]...)
	}
	return map[string]interface{}{"grid": grid}
}
