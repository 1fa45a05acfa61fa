// internal/broker/rooms.go
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asimov-arena/playground/internal/models"
	"github.com/asimov-arena/playground/internal/protocol"
)

// Room-lock acquisition is bounded so a racing update cannot stall the
// broker indefinitely; the update path retries briefly before failing.
const (
	lockTimeout = 500 * time.Millisecond
	lockRetries = 2
	lockBackoff = 50 * time.Millisecond
)

// roomEntry groups one room with its players, move log, and lock. All
// board/turn/status mutations happen while holding lockc.
type roomEntry struct {
	lockc   chan struct{}
	room    *models.Room
	players map[uuid.UUID]*models.Player
	states  []*models.GameState
}

// RoomStore is the in-memory arena of rooms, keyed by id, each guarded by
// its own lock.
type RoomStore struct {
	mu      sync.Mutex
	rooms   map[uuid.UUID]*roomEntry
	players map[uuid.UUID]*models.Player
}

// NewRoomStore returns an empty store.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:   make(map[uuid.UUID]*roomEntry),
		players: make(map[uuid.UUID]*models.Player),
	}
}

// Create registers a new lobby-status room owned by serverConn.
func (s *RoomStore) Create(name, game string, maxPlayers int, serverConn uuid.UUID) models.Room {
	room := &models.Room{
		ID:         uuid.New(),
		Name:       name,
		Game:       game,
		MaxPlayers: maxPlayers,
		ServerConn: serverConn,
		Status:     models.RoomLobby,
		CreatedAt:  time.Now(),
	}
	entry := &roomEntry{
		lockc:   make(chan struct{}, 1),
		room:    room,
		players: make(map[uuid.UUID]*models.Player),
	}
	s.mu.Lock()
	s.rooms[room.ID] = entry
	s.mu.Unlock()
	return *room
}

func (s *RoomStore) entry(id uuid.UUID) (*roomEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	return e, ok
}

// Snapshot returns a copy of the room, or false if it does not exist.
func (s *RoomStore) Snapshot(id uuid.UUID) (models.Room, bool) {
	e, ok := s.entry(id)
	if !ok {
		return models.Room{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *e.room, true
}

// acquire takes the room's lock with a bounded timeout and brief retry
// backoff. The returned release must be called exactly once.
func (s *RoomStore) acquire(ctx context.Context, id uuid.UUID) (*roomEntry, func(), error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, nil, protocol.NewError(protocol.KindNoSuchRoom)
	}
	for attempt := 0; ; attempt++ {
		timer := time.NewTimer(lockTimeout)
		select {
		case e.lockc <- struct{}{}:
			timer.Stop()
			return e, func() { <-e.lockc }, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
			if attempt >= lockRetries {
				return nil, nil, protocol.Errorf(protocol.KindServerError,
					"room "+id.String()+" is busy, try again")
			}
			time.Sleep(lockBackoff)
		}
	}
}

// CreatePlayer binds a new player row to a room and connection.
func (s *RoomStore) CreatePlayer(roomID uuid.UUID, name string, connID, botID uuid.UUID) (models.Player, error) {
	e, ok := s.entry(roomID)
	if !ok {
		return models.Player{}, protocol.NewError(protocol.KindNoSuchRoom)
	}
	player := &models.Player{
		ID:       uuid.New(),
		RoomID:   roomID,
		Name:     name,
		Conn:     connID,
		BotID:    botID,
		JoinedAt: time.Now(),
	}
	s.mu.Lock()
	e.players[player.ID] = player
	s.players[player.ID] = player
	s.mu.Unlock()
	return *player, nil
}

// Player returns a copy of a player row.
func (s *RoomStore) Player(id uuid.UUID) (models.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return models.Player{}, false
	}
	return *p, true
}

// MarkJoined records the engine's admission of a player, with its role.
func (s *RoomStore) MarkJoined(id uuid.UUID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return protocol.NewError(protocol.KindNoSuchPlayer)
	}
	p.Joined = true
	p.GameRole = role
	return nil
}

// PlayersOf returns copies of a room's player rows, oldest first.
func (s *RoomStore) PlayersOf(roomID uuid.UUID) []models.Player {
	e, ok := s.entry(roomID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	players := make([]models.Player, 0, len(e.players))
	for _, p := range e.players {
		players = append(players, *p)
	}
	for i := 1; i < len(players); i++ {
		for j := i; j > 0 && players[j].JoinedAt.Before(players[j-1].JoinedAt); j-- {
			players[j], players[j-1] = players[j-1], players[j]
		}
	}
	return players
}

// JoinedCount counts confirmed players in a room.
func (s *RoomStore) JoinedCount(roomID uuid.UUID) int {
	count := 0
	for _, p := range s.PlayersOf(roomID) {
		if p.Joined {
			count++
		}
	}
	return count
}

// Lobby returns copies of all rooms still accepting players.
func (s *RoomStore) Lobby() []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]models.Room, 0)
	for _, e := range s.rooms {
		if e.room.Status == models.RoomLobby {
			rooms = append(rooms, *e.room)
		}
	}
	return rooms
}

// StatesOf returns the room's move log in arrival order.
func (s *RoomStore) StatesOf(roomID uuid.UUID) []models.GameState {
	e, ok := s.entry(roomID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]models.GameState, 0, len(e.states))
	for _, st := range e.states {
		states = append(states, *st)
	}
	return states
}

// roomCopy reads a consistent copy of the entry's room.
func (s *RoomStore) roomCopy(e *roomEntry) models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *e.room
}

// mutateRoom applies fn to the entry's room and returns the result. The
// caller must hold the room lock; the store mutex keeps concurrent readers
// from observing torn writes.
func (s *RoomStore) mutateRoom(e *roomEntry, fn func(*models.Room)) models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(e.room)
	return *e.room
}

// appendMove records a player's move as a new move-log row. Caller must
// hold the room lock.
func (s *RoomStore) appendMove(e *roomEntry, playerID uuid.UUID, move map[string]interface{}) models.GameState {
	state := &models.GameState{
		ID:       uuid.New(),
		RoomID:   e.room.ID,
		PlayerID: playerID,
		Move:     move,
		SavedAt:  time.Now(),
	}
	s.mu.Lock()
	e.states = append(e.states, state)
	s.mu.Unlock()
	return *state
}

// upsertState updates the row matching stateID in place, or appends a new
// one. Duplicate correlation ids from idempotent retries therefore never
// duplicate a move-log entry. Caller must hold the room lock.
func (s *RoomStore) upsertState(e *roomEntry, stateID uuid.UUID, epoch int, board map[string]interface{}, turn uuid.UUID) models.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stateID != uuid.Nil {
		for _, st := range e.states {
			if st.ID == stateID {
				st.Epoch = epoch
				st.Board = board
				st.Turn = turn
				return *st
			}
		}
	}
	id := stateID
	if id == uuid.Nil {
		id = uuid.New()
	}
	state := &models.GameState{
		ID:      id,
		RoomID:  e.room.ID,
		Epoch:   epoch,
		Board:   board,
		Turn:    turn,
		SavedAt: time.Now(),
	}
	e.states = append(e.states, state)
	return *state
}
