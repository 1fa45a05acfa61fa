// internal/client/client_test.go
package client

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asimov-arena/playground/internal/config"
	"github.com/asimov-arena/playground/internal/protocol"
)

// mockSender records every emitted message in order. EmitWait answers with
// waitErr, standing in for the broker's ack or fail response.
type mockSender struct {
	mu      sync.Mutex
	sent    []protocol.Message
	waitErr error
}

func (m *mockSender) Emit(_ context.Context, msg protocol.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockSender) EmitWait(ctx context.Context, msg protocol.Message) error {
	if err := m.Emit(ctx, msg); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitErr
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockSender) at(i int) protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[i]
}

func (m *mockSender) last() protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestGameServer(t *testing.T, game string, runOnce bool) (*GameServerClient, *mockSender) {
	t.Helper()
	mock := &mockSender{}
	g := NewGameServerClient(testLogger(), config.Client{
		Game:      game,
		LobbyName: "test lobby",
		RunOnce:   runOnce,
	})
	g.send = mock
	require.NoError(t, g.openRoom(context.Background()))
	return g, mock
}

// seat runs the register/joinsuccess exchange for one player.
func seat(t *testing.T, g *GameServerClient, playerID uuid.UUID) string {
	t.Helper()
	require.NoError(t, g.handle(context.Background(), &protocol.Register{RoomID: g.roomID, PlayerID: playerID}))
	success, ok := g.send.(*mockSender).last().(*protocol.JoinSuccess)
	require.True(t, ok, "expected joinsuccess after register")
	require.Equal(t, playerID, success.PlayerID)
	return success.GameRole
}

func TestGameServerAnnouncesRoom(t *testing.T) {
	_, mock := newTestGameServer(t, "tictactoe", false)
	require.Equal(t, 1, mock.count())
	create := mock.at(0).(*protocol.CreateRoom)
	assert.Equal(t, "test lobby", create.Name)
	assert.Equal(t, "tictactoe", create.Game)
	assert.Equal(t, 2, create.MaxPlayers)
}

func TestGameServerAdmitsUpToCapacity(t *testing.T) {
	g, mock := newTestGameServer(t, "tictactoe", false)
	g.roomID = uuid.New()

	roles := map[string]bool{}
	roles[seat(t, g, uuid.New())] = true
	roles[seat(t, g, uuid.New())] = true
	assert.Equal(t, map[string]bool{"x": true, "o": true}, roles)

	// Third player is turned away with GameFull.
	require.NoError(t, g.handle(context.Background(), &protocol.Register{RoomID: g.roomID, PlayerID: uuid.New()}))
	fail, ok := mock.last().(*protocol.JoinFail)
	require.True(t, ok)
	assert.Equal(t, string(protocol.KindGameFull), fail.Reason)
}

func TestGameServerStartsAfterAllAcks(t *testing.T) {
	g, mock := newTestGameServer(t, "tictactoe", false)
	g.roomID = uuid.New()
	seat(t, g, uuid.New())
	seat(t, g, uuid.New())

	before := mock.count()
	require.NoError(t, g.handle(context.Background(), &protocol.JoinAcknowledgement{RoomID: g.roomID, PlayerID: g.engine.State().Players[0]}))
	assert.Equal(t, before, mock.count(), "no update until every seat is acknowledged")

	require.NoError(t, g.handle(context.Background(), &protocol.JoinAcknowledgement{RoomID: g.roomID, PlayerID: g.engine.State().Players[1]}))
	update, ok := mock.last().(*protocol.GameUpdate)
	require.True(t, ok)
	require.NotNil(t, update.Epoch)
	assert.Equal(t, 0, *update.Epoch)
	assert.Equal(t, protocol.VisibilityBroadcast, update.Visibility)
	assert.Equal(t, g.engine.State().Seats["x"], update.Turn)
}

func TestGameServerPlaysOutTicTacToe(t *testing.T) {
	g, mock := newTestGameServer(t, "tictactoe", true)
	g.roomID = uuid.New()
	seat(t, g, uuid.New())
	seat(t, g, uuid.New())
	require.NoError(t, g.handle(context.Background(), &protocol.JoinAcknowledgement{RoomID: g.roomID, PlayerID: g.engine.State().Players[0]}))
	require.NoError(t, g.handle(context.Background(), &protocol.JoinAcknowledgement{RoomID: g.roomID, PlayerID: g.engine.State().Players[1]}))

	x := g.engine.State().Seats["x"]
	o := g.engine.State().Seats["o"]
	move := func(p uuid.UUID, row, col int) error {
		return g.handle(context.Background(), &protocol.PlayerMove{
			RoomID:   g.roomID,
			PlayerID: p,
			Move:     map[string]interface{}{"row": row, "col": col},
			StateID:  uuid.New(),
		})
	}

	require.NoError(t, move(x, 0, 0))
	require.NoError(t, move(o, 1, 0))
	require.NoError(t, move(x, 0, 1))
	require.NoError(t, move(o, 1, 1))

	// X completes the top row; single-shot mode ends the session.
	err := move(x, 0, 2)
	require.ErrorIs(t, err, errDone)

	update, ok := mock.last().(*protocol.GameUpdate)
	require.True(t, ok)
	require.NotNil(t, update.Finish)
	assert.True(t, update.Finish.Normal)
	assert.Equal(t, 1, update.Finish.Scores[x.String()])
	assert.Equal(t, -1, update.Finish.Scores[o.String()])
}

func TestGameServerFaultsIllegalMover(t *testing.T) {
	g, mock := newTestGameServer(t, "tictactoe", true)
	g.roomID = uuid.New()
	seat(t, g, uuid.New())
	seat(t, g, uuid.New())
	require.NoError(t, g.handle(context.Background(), &protocol.JoinAcknowledgement{RoomID: g.roomID, PlayerID: g.engine.State().Players[0]}))
	require.NoError(t, g.handle(context.Background(), &protocol.JoinAcknowledgement{RoomID: g.roomID, PlayerID: g.engine.State().Players[1]}))

	x := g.engine.State().Seats["x"]
	err := g.handle(context.Background(), &protocol.PlayerMove{
		RoomID:   g.roomID,
		PlayerID: x,
		Move:     map[string]interface{}{"row": 7, "col": 0},
		StateID:  uuid.New(),
	})
	require.ErrorIs(t, err, errDone)

	update := mock.last().(*protocol.GameUpdate)
	require.NotNil(t, update.Finish)
	assert.False(t, update.Finish.Normal)
	assert.Equal(t, x, update.Finish.Fault)
	assert.Equal(t, -1, update.Finish.Scores[x.String()])
}

func TestGameServerRecyclesWithoutRunOnce(t *testing.T) {
	g, mock := newTestGameServer(t, "rps", false)
	g.roomID = uuid.New()
	seat(t, g, uuid.New())
	seat(t, g, uuid.New())
	require.NoError(t, g.handle(context.Background(), &protocol.JoinAcknowledgement{RoomID: g.roomID, PlayerID: g.engine.State().Players[0]}))
	require.NoError(t, g.handle(context.Background(), &protocol.JoinAcknowledgement{RoomID: g.roomID, PlayerID: g.engine.State().Players[1]}))

	first := g.engine.State().Turn
	second := g.engine.State().Players[0]
	if second == first {
		second = g.engine.State().Players[1]
	}
	require.NoError(t, g.handle(context.Background(), &protocol.PlayerMove{
		RoomID: g.roomID, PlayerID: first,
		Move: map[string]interface{}{"move": "rock"}, StateID: uuid.New(),
	}))
	require.NoError(t, g.handle(context.Background(), &protocol.PlayerMove{
		RoomID: g.roomID, PlayerID: second,
		Move: map[string]interface{}{"move": "scissors"}, StateID: uuid.New(),
	}))

	// The session keeps going: a fresh createroom follows the finish.
	create, ok := mock.last().(*protocol.CreateRoom)
	require.True(t, ok)
	assert.Equal(t, "rps", create.Game)
}

func newTestAgent(game string, cfg config.Client) (*AgentClient, *mockSender) {
	mock := &mockSender{}
	cfg.Game = game
	cfg.PlayerName = "tester"
	a := NewAgentClient(testLogger(), cfg)
	a.relistDelay = 5 * time.Millisecond
	a.setSender(mock)
	return a, mock
}

func TestAgentJoinsMatchingLobby(t *testing.T) {
	a, mock := newTestAgent("rps", config.Client{})
	roomID := uuid.New()

	rooms := &protocol.Rooms{Rooms: map[string]protocol.RoomSummary{
		uuid.New().String(): {Name: "wrong game", Game: "kalaha", MaxPlayers: 2},
		roomID.String():     {Name: "arena", Game: "rps", MaxPlayers: 2, Players: 1},
	}}
	require.NoError(t, a.handle(context.Background(), rooms))

	// The join request is emitted off the read loop.
	require.Eventually(t, func() bool {
		_, ok := mock.last().(*protocol.Join)
		return ok
	}, time.Second, time.Millisecond)
	join := mock.last().(*protocol.Join)
	assert.Equal(t, roomID, join.RoomID)
	assert.Equal(t, "tester", join.Name)
}

func TestAgentRelistsWhenJoinRejected(t *testing.T) {
	a, mock := newTestAgent("rps", config.Client{})
	mock.waitErr = protocol.NewError(protocol.KindGameFull)
	roomID := uuid.New()

	rooms := &protocol.Rooms{Rooms: map[string]protocol.RoomSummary{
		roomID.String(): {Name: "arena", Game: "rps", MaxPlayers: 2, Players: 1},
	}}
	require.NoError(t, a.handle(context.Background(), rooms))

	// The rejection answers the join request itself, so the agent goes
	// back to listing lobbies.
	require.Eventually(t, func() bool {
		_, ok := mock.last().(*protocol.List)
		return ok
	}, time.Second, time.Millisecond)
	_, wasJoin := mock.at(0).(*protocol.Join)
	assert.True(t, wasJoin, "the join attempt precedes the relist")
}

func TestAgentSkipsFullRooms(t *testing.T) {
	a, mock := newTestAgent("rps", config.Client{})
	rooms := &protocol.Rooms{Rooms: map[string]protocol.RoomSummary{
		uuid.New().String(): {Name: "full", Game: "rps", MaxPlayers: 2, Players: 2},
	}}
	require.NoError(t, a.handle(context.Background(), rooms))
	assert.Zero(t, mock.count(), "no join for a full room")
}

func TestAgentRelistUsesCurrentSender(t *testing.T) {
	a, stale := newTestAgent("rps", config.Client{})
	a.relistDelay = 50 * time.Millisecond

	// A timer scheduled against one session must list through whatever
	// connection is current when it fires, not the one it saw scheduled.
	a.relistLater()
	fresh := &mockSender{}
	a.setSender(fresh)

	require.Eventually(t, func() bool {
		_, ok := fresh.last().(*protocol.List)
		return ok
	}, time.Second, time.Millisecond)
	assert.Zero(t, stale.count(), "stale sender must not be used")
}

func TestAgentStopRelistCancelsTimer(t *testing.T) {
	a, mock := newTestAgent("rps", config.Client{})
	a.relistLater()
	a.stopRelist()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, mock.count(), "cancelled timer must not emit")
}

func TestAgentMovesOnItsTurn(t *testing.T) {
	a, mock := newTestAgent("tictactoe", config.Client{})
	playerID := uuid.New()
	roomID := uuid.New()
	require.NoError(t, a.handle(context.Background(), &protocol.Joined{
		RoomID: roomID, PlayerID: playerID, Name: "tester", GameRole: "x",
	}))

	board := map[string]interface{}{"grid": []interface{}{
		[]interface{}{"", "o", ""},
		[]interface{}{"", "x", ""},
		[]interface{}{"", "", ""},
	}}
	require.NoError(t, a.handle(context.Background(), &protocol.Gamestate{
		RoomID: roomID, Board: board, Epoch: 2, Turn: playerID,
	}))

	move, ok := mock.last().(*protocol.Move)
	require.True(t, ok)
	assert.Equal(t, playerID, move.PlayerID)
	row := move.Move["row"].(int)
	col := move.Move["col"].(int)
	taken := map[[2]int]bool{{0, 1}: true, {1, 1}: true}
	assert.False(t, taken[[2]int{row, col}], "picked an occupied cell")

	// Someone else's turn produces no move.
	before := mock.count()
	require.NoError(t, a.handle(context.Background(), &protocol.Gamestate{
		RoomID: roomID, Board: board, Epoch: 3, Turn: uuid.New(),
	}))
	assert.Equal(t, before, mock.count())
}

func TestAgentStopsOnOwnFault(t *testing.T) {
	a, _ := newTestAgent("rps", config.Client{})
	playerID := uuid.New()
	a.playerID = playerID
	a.roomID = uuid.New()

	err := a.handle(context.Background(), &protocol.Gamestate{
		RoomID: a.roomID,
		Board:  map[string]interface{}{},
		Finish: &protocol.Finish{Normal: false, Reason: "illegal move", Fault: playerID},
	})
	assert.ErrorIs(t, err, errDone)
}

func TestAgentPersistsThroughOwnFault(t *testing.T) {
	a, mock := newTestAgent("rps", config.Client{Persistent: true})
	playerID := uuid.New()
	a.playerID = playerID
	a.roomID = uuid.New()

	require.NoError(t, a.handle(context.Background(), &protocol.Gamestate{
		RoomID: a.roomID,
		Board:  map[string]interface{}{},
		Finish: &protocol.Finish{Normal: false, Reason: "illegal move", Fault: playerID},
	}))
	_, ok := mock.last().(*protocol.List)
	assert.True(t, ok, "persistent agent queues up for another game")
}

func TestAgentStopsAfterSingleGame(t *testing.T) {
	a, _ := newTestAgent("rps", config.Client{RunOnce: true})
	a.playerID = uuid.New()
	a.roomID = uuid.New()

	err := a.handle(context.Background(), &protocol.Gamestate{
		RoomID: a.roomID,
		Board:  map[string]interface{}{},
		Finish: &protocol.Finish{Normal: true, Scores: map[string]int{a.playerID.String(): 1}},
	})
	assert.ErrorIs(t, err, errDone)
}

func TestResolveSettlesPendingEmit(t *testing.T) {
	w := &WS{log: testLogger(), pending: make(map[uint64]chan error)}

	done := make(chan error, 1)
	w.pending[7] = done
	w.resolve(7, protocol.NewError(protocol.KindGameFull))

	var perr *protocol.Error
	require.ErrorAs(t, <-done, &perr)
	assert.Equal(t, protocol.KindGameFull, perr.Kind)
	assert.Empty(t, w.pending, "a resolved sequence is forgotten")

	// Unknown and dropped sequences settle nothing.
	w.resolve(8, nil)
	w.pending[9] = make(chan error, 1)
	w.drop(9)
	assert.Empty(t, w.pending)
}

func TestChooseKalahaMove(t *testing.T) {
	board := map[string]interface{}{
		"pits_a": []interface{}{0.0, 3.0, 0.0, 0.0, 1.0, 0.0},
		"pits_b": []interface{}{6.0, 6.0, 6.0, 6.0, 6.0, 6.0},
	}
	for i := 0; i < 20; i++ {
		move := ChooseMove("kalaha", "a", board)
		require.NotNil(t, move)
		pit := move["move"].(int)
		assert.Contains(t, []int{1, 4}, pit)
	}

	empty := map[string]interface{}{
		"pits_a": []interface{}{0.0, 0.0, 0.0, 0.0, 0.0, 0.0},
		"pits_b": []interface{}{1.0, 1.0, 1.0, 1.0, 1.0, 1.0},
	}
	assert.Nil(t, ChooseMove("kalaha", "a", empty))
}

func TestChooseRPSMove(t *testing.T) {
	move := ChooseMove("rps", "", map[string]interface{}{})
	require.NotNil(t, move)
	assert.Contains(t, rpsChoices, move["move"].(string))
}
