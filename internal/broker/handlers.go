// internal/broker/handlers.go
package broker

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/auth"
	"github.com/asimov-arena/playground/internal/models"
	"github.com/asimov-arena/playground/internal/protocol"
)

// handle routes a validated message to its operation. Events the broker
// never receives (its own outbound types) fall through to a validation
// failure so a confused peer gets an answer instead of silence.
func (b *Broker) handle(ctx context.Context, c *Conn, msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.CreateRoom:
		return b.handleCreateRoom(c, m)
	case *protocol.Join:
		return b.handleJoin(c, m)
	case *protocol.JoinSuccess:
		return b.handleJoinSuccess(c, m)
	case *protocol.JoinFail:
		return b.handleJoinFail(c, m)
	case *protocol.GameUpdate:
		return b.handleGameUpdate(ctx, c, m)
	case *protocol.Move:
		return b.handleMove(ctx, c, m)
	case *protocol.List:
		return b.handleList(c)
	case *protocol.Spectate:
		return b.handleSpectate(c, m)
	default:
		return protocol.Errorf(protocol.KindInputValidation,
			"event "+msg.EventName()+" is not accepted by the broker")
	}
}

// authRoomOwner verifies the sender is the engine connection recorded as
// the room's owner.
func (b *Broker) authRoomOwner(c *Conn, roomID uuid.UUID) (models.Room, error) {
	room, ok := b.Rooms.Snapshot(roomID)
	if !ok {
		return models.Room{}, protocol.NewError(protocol.KindNoSuchRoom)
	}
	if room.ServerConn != c.ID {
		return models.Room{}, protocol.NewError(protocol.KindUnauthorizedGameServer)
	}
	return room, nil
}

// authPlayer verifies a player row exists, belongs to the claimed room,
// and (when ownPlayer) is bound to the sending connection.
func (b *Broker) authPlayer(c *Conn, roomID, playerID uuid.UUID, ownPlayer bool) (models.Player, error) {
	player, ok := b.Rooms.Player(playerID)
	if !ok {
		return models.Player{}, protocol.NewError(protocol.KindNoSuchPlayer)
	}
	if ownPlayer && player.Conn != c.ID {
		return models.Player{}, protocol.NewError(protocol.KindUnauthorizedPlayer)
	}
	if player.RoomID != roomID {
		return models.Player{}, protocol.NewError(protocol.KindPlayerNotInRoom)
	}
	return player, nil
}

// handleCreateRoom registers a new room owned by the sending engine
// connection and replies with its id.
func (b *Broker) handleCreateRoom(c *Conn, m *protocol.CreateRoom) error {
	if c.Principal.Role != auth.RoleOperator {
		return protocol.NewError(protocol.KindUnauthorizedGameServer)
	}
	room := b.Rooms.Create(m.Name, m.Game, m.MaxPlayers, c.ID)
	b.log.WithFields(logrus.Fields{"room": room.ID, "game": room.Game}).Info("registered game server room")
	c.Send(&protocol.RoomCreated{RoomID: room.ID}, nil)
	return nil
}

// handleJoin creates a player row for the caller and forwards the
// registration request to the room's owning engine.
func (b *Broker) handleJoin(c *Conn, m *protocol.Join) error {
	if c.Principal.Role != auth.RoleBot {
		return protocol.NewError(protocol.KindUnauthorizedPlayer)
	}
	room, ok := b.Rooms.Snapshot(m.RoomID)
	if !ok {
		return protocol.NewError(protocol.KindNoSuchRoom)
	}
	if room.Status != models.RoomLobby {
		return protocol.NewError(protocol.KindGameAlreadyStarted)
	}
	player, err := b.Rooms.CreatePlayer(m.RoomID, m.Name, c.ID, c.BotID)
	if err != nil {
		return err
	}
	b.log.WithFields(logrus.Fields{"room": room.ID, "player": player.ID}).Info("player requested to join room")
	b.sendTo(room.ServerConn, &protocol.Register{RoomID: room.ID, PlayerID: player.ID}, nil)
	return nil
}

// handleJoinSuccess marks the player joined, subscribes its connection to
// the room group, and notifies player and room. The private notification
// carries a delivery callback: once the player's connection acknowledges
// it, the engine receives joinacknowledgement, closing the three-step
// handshake so the engine can wait for all seats to be confirmed-delivered.
func (b *Broker) handleJoinSuccess(c *Conn, m *protocol.JoinSuccess) error {
	room, err := b.authRoomOwner(c, m.RoomID)
	if err != nil {
		return err
	}
	player, err := b.authPlayer(c, m.RoomID, m.PlayerID, false)
	if err != nil {
		return err
	}
	if err := b.Rooms.MarkJoined(player.ID, m.GameRole); err != nil {
		return err
	}

	playerConn, ok := b.conn(player.Conn)
	if !ok {
		return protocol.Errorf(protocol.KindServerError, "player connection is gone")
	}
	b.joinGroup(room.BroadcastGroup(), playerConn)

	engineConn := c
	notice := &protocol.Joined{
		RoomID:   room.ID,
		PlayerID: player.ID,
		Name:     player.Name,
		GameRole: m.GameRole,
	}
	err = playerConn.Send(notice, func(deliveryErr error) {
		if deliveryErr != nil {
			b.log.WithFields(logrus.Fields{"room": room.ID, "player": player.ID}).
				Warn("joined notification not delivered: ", deliveryErr)
			return
		}
		engineConn.Send(&protocol.JoinAcknowledgement{RoomID: room.ID, PlayerID: player.ID}, nil)
	})
	if err != nil {
		return protocol.Errorf(protocol.KindServerError, "could not notify player")
	}

	broadcastNotice := *notice
	broadcastNotice.Broadcast = true
	b.broadcast(room.BroadcastGroup(), &broadcastNotice)
	return nil
}

// handleJoinFail relays an admission rejection to the affected player only.
func (b *Broker) handleJoinFail(c *Conn, m *protocol.JoinFail) error {
	_, err := b.authRoomOwner(c, m.RoomID)
	if err != nil {
		return err
	}
	player, err := b.authPlayer(c, m.RoomID, m.PlayerID, false)
	if err != nil {
		return err
	}
	// Engines usually give a known kind as the reason; anything else,
	// including an empty reason, surfaces as a registration failure so the
	// player can tell a rejected seat apart from a malformed request.
	kind := protocol.KindOf(m.Reason)
	fail := protocol.NewError(kind)
	if kind == protocol.KindInputValidation {
		fail = protocol.NewError(protocol.KindRegistrationFailed)
		if m.Reason != "" {
			fail = protocol.Errorf(protocol.KindRegistrationFailed, m.Reason)
		}
	}
	fail.RespondingTo = protocol.EventJoin
	b.sendTo(player.Conn, (*protocol.Fail)(fail), nil)
	return nil
}

// handleGameUpdate applies an authoritative state transition from the
// owning engine. The whole transition, including fan-out, runs under the
// room's lock so concurrent updates land in a definite serial order.
func (b *Broker) handleGameUpdate(ctx context.Context, c *Conn, m *protocol.GameUpdate) error {
	if _, err := b.authRoomOwner(c, m.RoomID); err != nil {
		return err
	}
	var target models.Player
	if m.PlayerID != uuid.Nil {
		var err error
		target, err = b.authPlayer(c, m.RoomID, m.PlayerID, false)
		if err != nil {
			return err
		}
	}

	e, release, err := b.Rooms.acquire(ctx, m.RoomID)
	if err != nil {
		return err
	}
	defer release()

	room := b.Rooms.roomCopy(e)

	// The engine is the sole epoch authority; the broker only insists
	// arrival order never regresses.
	if m.Epoch != nil && *m.Epoch < room.Epoch {
		return protocol.Errorf(protocol.KindInputValidation, "epoch regressed for room "+room.ID.String())
	}

	if m.Finish != nil {
		return b.finishRoom(ctx, e, room, m)
	}

	switch m.Visibility {
	case protocol.VisibilityPrivate:
		room = b.Rooms.mutateRoom(e, func(r *models.Room) {
			if r.Status == models.RoomLobby {
				r.Status = models.RoomPlaying
			}
			if r.Status != models.RoomFinished {
				r.Turn = m.Turn
			}
		})
		b.sendTo(target.Conn, &protocol.Gamestate{
			RoomID:   room.ID,
			Board:    m.Board,
			Epoch:    room.Epoch,
			PlayerID: target.ID,
			Turn:     m.Turn,
		}, nil)
		return nil

	case protocol.VisibilityBroadcast, protocol.VisibilitySpectator:
		room = b.Rooms.mutateRoom(e, func(r *models.Room) {
			if r.Status == models.RoomLobby {
				r.Status = models.RoomPlaying
			}
			r.Board = m.Board
			r.Epoch = *m.Epoch
			if r.Status != models.RoomFinished {
				r.Turn = m.Turn
			}
		})
		if m.Visibility == protocol.VisibilityBroadcast {
			b.broadcast(room.BroadcastGroup(), &protocol.Gamestate{
				RoomID: room.ID,
				Board:  m.Board,
				Epoch:  *m.Epoch,
				Turn:   room.Turn,
			})
		}
		state := b.Rooms.upsertState(e, m.StateID, *m.Epoch, m.Board, room.Turn)
		b.record(ctx, &state)
		return nil
	}
	return protocol.NewError(protocol.KindInputValidation)
}

// finishRoom broadcasts the terminal state first, then flips the room to
// finished. Updates arriving afterwards may still refresh the board but
// never resurrect the room.
func (b *Broker) finishRoom(ctx context.Context, e *roomEntry, room models.Room, m *protocol.GameUpdate) error {
	if room.Status == models.RoomFinished {
		return protocol.NewError(protocol.KindGameNotRunning)
	}
	epoch := room.Epoch
	if m.Epoch != nil {
		epoch = *m.Epoch
	}
	b.broadcast(room.BroadcastGroup(), &protocol.Gamestate{
		RoomID: room.ID,
		Board:  m.Board,
		Epoch:  epoch,
		Finish: m.Finish,
	})
	normal := m.Finish.Normal
	room = b.Rooms.mutateRoom(e, func(r *models.Room) {
		r.Status = models.RoomFinished
		r.Board = m.Board
		r.Turn = uuid.Nil
		r.Epoch = epoch
		r.NormalFinish = &normal
	})
	b.log.WithFields(logrus.Fields{"room": room.ID, "normal": normal}).Info("room finished")
	if b.rec != nil {
		if err := b.rec.SaveRoomResult(ctx, &room, m.Finish); err != nil {
			b.log.WithField("room", room.ID).Warn("could not persist room result: ", err)
		}
	}
	return nil
}

// handleMove validates turn order, records the move, and forwards it to
// the owning engine for rule application.
func (b *Broker) handleMove(ctx context.Context, c *Conn, m *protocol.Move) error {
	player, err := b.authPlayer(c, m.RoomID, m.PlayerID, true)
	if err != nil {
		return err
	}

	e, release, err := b.Rooms.acquire(ctx, m.RoomID)
	if err != nil {
		return err
	}
	defer release()

	room := b.Rooms.roomCopy(e)
	if room.Status != models.RoomPlaying {
		return protocol.NewError(protocol.KindGameNotRunning)
	}
	if room.Turn != player.ID {
		return protocol.NewError(protocol.KindNotPlayersTurn)
	}

	state := b.Rooms.appendMove(e, player.ID, m.Move)
	b.sendTo(room.ServerConn, &protocol.PlayerMove{
		RoomID:   room.ID,
		PlayerID: player.ID,
		Move:     m.Move,
		StateID:  state.ID,
	}, nil)
	return nil
}

// handleList replies to the sender with a snapshot of joinable rooms.
func (b *Broker) handleList(c *Conn) error {
	rooms := make(map[string]protocol.RoomSummary)
	for _, room := range b.Rooms.Lobby() {
		rooms[room.ID.String()] = protocol.RoomSummary{
			Name:       room.Name,
			Game:       room.Game,
			MaxPlayers: room.MaxPlayers,
			Players:    b.Rooms.JoinedCount(room.ID),
			Status:     string(room.Status),
		}
	}
	c.Send(&protocol.Rooms{Rooms: rooms}, nil)
	return nil
}

// handleSpectate subscribes the caller to the room's broadcast and
// spectator groups and replies with the current state plus the move log.
func (b *Broker) handleSpectate(c *Conn, m *protocol.Spectate) error {
	room, ok := b.Rooms.Snapshot(m.RoomID)
	if !ok {
		return protocol.NewError(protocol.KindNoSuchRoom)
	}
	b.joinGroup(room.BroadcastGroup(), c)
	b.joinGroup(room.SpectatorGroup(), c)

	players := make([]protocol.SpectatedPlayer, 0)
	for _, p := range b.Rooms.PlayersOf(room.ID) {
		players = append(players, protocol.SpectatedPlayer{
			ID:       p.ID,
			Name:     p.Name,
			GameRole: p.GameRole,
			Joined:   p.Joined,
		})
	}
	states := make([]protocol.SpectatedState, 0)
	for _, st := range b.Rooms.StatesOf(room.ID) {
		states = append(states, protocol.SpectatedState{
			ID:       st.ID,
			Epoch:    st.Epoch,
			PlayerID: st.PlayerID,
			Move:     st.Move,
			Board:    st.Board,
			Turn:     st.Turn,
		})
	}
	c.Send(&protocol.Spectated{
		RoomID:  room.ID,
		Board:   room.Board,
		Status:  string(room.Status),
		Turn:    room.Turn,
		Players: players,
		States:  states,
	}, nil)
	return nil
}

// record persists a move-log row when a recorder is configured.
func (b *Broker) record(ctx context.Context, state *models.GameState) {
	if b.rec == nil {
		return
	}
	if err := b.rec.SaveGameState(ctx, state); err != nil {
		b.log.WithField("state", state.ID).Warn("could not persist game state: ", err)
	}
}
