// internal/client/moves.go
package client

import (
	"math/rand"
)

// ChooseMove picks a random legal move for the named game from a broadcast
// board snapshot. Returns nil when no legal move can be derived, which the
// caller treats as "wait for the next state".
func ChooseMove(game, role string, board map[string]interface{}) map[string]interface{} {
	switch game {
	case "tictactoe":
		return chooseTicTacToe(board)
	case "rps":
		return chooseRPS()
	case "kalaha":
		return chooseKalaha(role, board)
	}
	return nil
}

// chooseTicTacToe plays a random empty cell.
func chooseTicTacToe(board map[string]interface{}) map[string]interface{} {
	grid, ok := board["grid"].([]interface{})
	if !ok {
		return nil
	}
	type cell struct{ row, col int }
	var empty []cell
	for r, rowVal := range grid {
		row, ok := rowVal.([]interface{})
		if !ok {
			continue
		}
		for c, cellVal := range row {
			if s, ok := cellVal.(string); ok && s == "" {
				empty = append(empty, cell{r, c})
			}
		}
	}
	if len(empty) == 0 {
		return nil
	}
	pick := empty[rand.Intn(len(empty))]
	return map[string]interface{}{"row": pick.row, "col": pick.col}
}

var rpsChoices = []string{"rock", "paper", "scissors"}

// chooseRPS throws a uniformly random hand.
func chooseRPS() map[string]interface{} {
	return map[string]interface{}{"move": rpsChoices[rand.Intn(len(rpsChoices))]}
}

// chooseKalaha sows from a random non-empty pit on the agent's own row.
func chooseKalaha(role string, board map[string]interface{}) map[string]interface{} {
	pits, ok := board["pits_"+role].([]interface{})
	if !ok {
		return nil
	}
	var nonEmpty []int
	for i, v := range pits {
		if n, ok := v.(float64); ok && n > 0 {
			nonEmpty = append(nonEmpty, i)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	return map[string]interface{}{"move": nonEmpty[rand.Intn(len(nonEmpty))]}
}
