// internal/games/kalaha.go
package games

import (
	"math/rand"

	"github.com/google/uuid"
)

const kalahaPits = 6

// Kalaha is the two-row sowing and capture game, six pits and one store per
// side. Roles are "a" and "b", assigned randomly; a moves first.
type Kalaha struct {
	Base
	pits   map[string][]int
	stores map[string]int
}

// NewKalaha returns a fresh kalaha engine.
func NewKalaha() Engine {
	return &Kalaha{Base: NewBase()}
}

func (g *Kalaha) Name() string    { return "kalaha" }
func (g *Kalaha) MaxPlayers() int { return 2 }

// AssignRole picks a random free side.
func (g *Kalaha) AssignRole(playerID uuid.UUID) string {
	available := make([]string, 0, 2)
	for _, role := range []string{"a", "b"} {
		if _, taken := g.Seats[role]; !taken {
			available = append(available, role)
		}
	}
	return available[rand.Intn(len(available))]
}

func (g *Kalaha) InitGame() {
	g.pits = map[string][]int{
		"a": {6, 6, 6, 6, 6, 6},
		"b": {6, 6, 6, 6, 6, 6},
	}
	g.stores = map[string]int{"a": 0, "b": 0}
	g.Turn = g.Seats["a"]
}

func otherRole(role string) string {
	if role == "a" {
		return "b"
	}
	return "a"
}

func (g *Kalaha) MakeMove(playerID uuid.UUID, role string, move map[string]interface{}) error {
	pit, err := intField(move, "move")
	if err != nil {
		return err
	}
	if pit < 0 || pit >= kalahaPits {
		return illegalMove("pit must be between 0 and 5")
	}
	stones := g.pits[role][pit]
	if stones == 0 {
		return illegalMove("empty pit chosen")
	}
	g.pits[role][pit] = 0

	// Ring positions: the mover's pits, the mover's store, the opponent's
	// pits. The opponent's store is skipped entirely.
	type slot struct {
		row string
		idx int // kalahaPits marks the store
	}
	ring := make([]slot, 0, 2*kalahaPits+1)
	for i := 0; i < kalahaPits; i++ {
		ring = append(ring, slot{role, i})
	}
	ring = append(ring, slot{role, kalahaPits})
	for i := 0; i < kalahaPits; i++ {
		ring = append(ring, slot{otherRole(role), i})
	}

	pos := pit
	var last slot
	var lastHad int
	for ; stones > 0; stones-- {
		pos = (pos + 1) % len(ring)
		last = ring[pos]
		if last.idx == kalahaPits {
			lastHad = g.stores[last.row]
			g.stores[last.row]++
		} else {
			lastHad = g.pits[last.row][last.idx]
			g.pits[last.row][last.idx]++
		}
	}

	landedInStore := last.idx == kalahaPits
	if !landedInStore && last.row == role && lastHad == 0 {
		opposite := kalahaPits - 1 - last.idx
		if captured := g.pits[otherRole(role)][opposite]; captured > 0 {
			g.stores[role] += captured + 1
			g.pits[otherRole(role)][opposite] = 0
			g.pits[role][last.idx] = 0
		}
	}

	if landedInStore {
		// Extra turn, play stays with the mover.
		g.Turn = playerID
	} else {
		g.Turn = g.Seats[otherRole(role)]
	}

	if sum(g.pits["a"]) == 0 || sum(g.pits["b"]) == 0 {
		totalA := g.stores["a"] + sum(g.pits["a"])
		totalB := g.stores["b"] + sum(g.pits["b"])
		g.stores["a"] = totalA
		g.stores["b"] = totalB
		g.pits["a"] = make([]int, kalahaPits)
		g.pits["b"] = make([]int, kalahaPits)
		switch {
		case totalA > totalB:
			g.SetWinner(g.Seats["a"])
		case totalB > totalA:
			g.SetWinner(g.Seats["b"])
		default:
			g.SetDraw()
		}
		return ErrGameCompleted
	}
	return nil
}

func sum(pits []int) int {
	total := 0
	for _, n := range pits {
		total += n
	}
	return total
}

func (g *Kalaha) Score() map[uuid.UUID]int {
	return g.WinLossScore()
}

func (g *Kalaha) ShowBoard() map[string]interface{} {
	return map[string]interface{}{
		"pits_a": append([]int(nil), g.pits["a"]...),
		"pits_b": append([]int(nil), g.pits["b"]...),
		"bank_a": g.stores["a"],
		"bank_b": g.stores["b"],
	}
}
