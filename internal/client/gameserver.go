// internal/client/gameserver.go
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/config"
	"github.com/asimov-arena/playground/internal/games"
	"github.com/asimov-arena/playground/internal/protocol"
)

// errDone ends a session cleanly after a single-shot run.
var errDone = errors.New("session complete")

// sender is the outbound half of a connection, split out so the state
// machines can be exercised against a mock in tests.
type sender interface {
	Emit(ctx context.Context, msg protocol.Message) error
	EmitWait(ctx context.Context, msg protocol.Message) error
}

// GameServerClient hosts one rule engine and drives the broker from the
// engine side: announce a room, admit players, wait for every join to be
// acknowledged, apply moves, report the outcome, then recycle into a new
// room unless single-shot mode is configured.
type GameServerClient struct {
	log  *logrus.Logger
	cfg  config.Client
	ws   *WS
	send sender

	engine games.Engine
	roomID uuid.UUID
	epoch  int
	acks   int
}

// NewGameServerClient builds an engine-side client from config.
func NewGameServerClient(log *logrus.Logger, cfg config.Client) *GameServerClient {
	return &GameServerClient{log: log, cfg: cfg}
}

// Run connects with bounded retries and plays rooms until the context is
// cancelled, the retry budget is exhausted, or a single-shot game ends.
func (g *GameServerClient) Run(ctx context.Context) error {
	attempts := 0
	for {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+g.cfg.Token)

		ws, err := Dial(ctx, g.cfg.BrokerURL, header, g.log)
		if err != nil {
			attempts++
			if attempts > g.cfg.ConnectionRetries {
				return fmt.Errorf("broker unreachable after %d attempts: %w", attempts, err)
			}
			g.log.Warnf("connect failed (attempt %d/%d): %v", attempts, g.cfg.ConnectionRetries, err)
			if err := sleep(ctx, g.cfg.RetryDelay); err != nil {
				return err
			}
			continue
		}
		attempts = 0
		g.ws = ws
		g.send = ws

		err = g.session(ctx)
		ws.Close()
		if errors.Is(err, errDone) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			g.log.Warnf("session ended: %v", err)
		}
		if err := sleep(ctx, g.cfg.RetryDelay); err != nil {
			return err
		}
	}
}

func (g *GameServerClient) session(ctx context.Context) error {
	if err := g.openRoom(ctx); err != nil {
		return err
	}
	return g.ws.Run(ctx, g.handle)
}

// openRoom builds a fresh engine and announces a new lobby.
func (g *GameServerClient) openRoom(ctx context.Context) error {
	engine, err := games.New(g.cfg.Game)
	if err != nil {
		return err
	}
	g.engine = engine
	g.roomID = uuid.Nil
	g.epoch = 0
	g.acks = 0
	return g.send.Emit(ctx, &protocol.CreateRoom{
		Name:       g.cfg.LobbyName,
		Game:       g.cfg.Game,
		MaxPlayers: engine.MaxPlayers(),
	})
}

func (g *GameServerClient) handle(ctx context.Context, msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.RoomCreated:
		g.roomID = m.RoomID
		g.log.WithFields(logrus.Fields{"room": m.RoomID, "game": g.cfg.Game}).Info("room open, awaiting players")
		return nil
	case *protocol.Register:
		return g.admit(ctx, m)
	case *protocol.JoinAcknowledgement:
		g.acks++
		if g.acks == g.engine.MaxPlayers() {
			return g.startGame(ctx)
		}
		return nil
	case *protocol.PlayerMove:
		return g.applyMove(ctx, m)
	case *protocol.Fail:
		g.log.Warnf("broker rejected %s: %s", m.RespondingTo, m.Details)
		return nil
	default:
		g.log.Warnf("unexpected %s event, ignoring", msg.EventName())
		return nil
	}
}

// admit seats the registering player or reports why it cannot play.
func (g *GameServerClient) admit(ctx context.Context, m *protocol.Register) error {
	role, err := games.AddPlayer(g.engine, m.PlayerID)
	if err != nil {
		var perr *protocol.Error
		reason := err.Error()
		if errors.As(err, &perr) {
			reason = string(perr.Kind)
		}
		g.log.WithField("player", m.PlayerID).Infof("player rejected: %s", reason)
		return g.send.Emit(ctx, &protocol.JoinFail{RoomID: m.RoomID, PlayerID: m.PlayerID, Reason: reason})
	}
	g.log.WithFields(logrus.Fields{"player": m.PlayerID, "role": role}).Info("player admitted")
	return g.send.Emit(ctx, &protocol.JoinSuccess{RoomID: m.RoomID, PlayerID: m.PlayerID, GameRole: role})
}

// startGame publishes the initial board once every seat is confirmed
// delivered; the last AddPlayer already initialized the engine.
func (g *GameServerClient) startGame(ctx context.Context) error {
	g.log.WithField("room", g.roomID).Info("all joins acknowledged, starting game")
	return g.emitState(ctx, uuid.New())
}

// emitState broadcasts the current board under the next epoch. stateID
// correlates the update with the move-log row it resulted from, so the
// broker updates that row instead of appending a duplicate.
func (g *GameServerClient) emitState(ctx context.Context, stateID uuid.UUID) error {
	epoch := g.epoch
	g.epoch++
	return g.send.Emit(ctx, &protocol.GameUpdate{
		RoomID:     g.roomID,
		Visibility: protocol.VisibilityBroadcast,
		Epoch:      &epoch,
		Board:      g.engine.ShowBoard(),
		StateID:    stateID,
		Turn:       g.engine.State().Turn,
	})
}

// applyMove feeds a relayed move through the engine and reacts to the
// three possible outcomes: game continues, game completed, move illegal.
func (g *GameServerClient) applyMove(ctx context.Context, m *protocol.PlayerMove) error {
	err := games.ApplyMove(g.engine, m.PlayerID, m.Move)
	switch {
	case err == nil:
		return g.emitState(ctx, m.StateID)
	case errors.Is(err, games.ErrGameCompleted):
		return g.finishGame(ctx, &protocol.Finish{
			Normal: true,
			Scores: wireScores(g.engine.Score()),
		})
	default:
		var perr *protocol.Error
		if errors.As(err, &perr) && perr.Kind == protocol.KindIllegalMove {
			// An illegal move ends the game abnormally, faulting the mover.
			scores := make(map[string]int, len(g.engine.State().Players))
			for _, p := range g.engine.State().Players {
				if p == m.PlayerID {
					scores[p.String()] = -1
				} else {
					scores[p.String()] = 1
				}
			}
			g.log.WithField("player", m.PlayerID).Warnf("illegal move ends game: %s", perr.Details)
			return g.finishGame(ctx, &protocol.Finish{
				Normal: false,
				Reason: perr.Details,
				Fault:  m.PlayerID,
				Scores: scores,
			})
		}
		g.log.Warnf("move from %s not applied: %v", m.PlayerID, err)
		return nil
	}
}

// finishGame emits the terminal update and recycles into a new room, or
// ends the session in single-shot mode.
func (g *GameServerClient) finishGame(ctx context.Context, finish *protocol.Finish) error {
	epoch := g.epoch
	g.epoch++
	err := g.send.Emit(ctx, &protocol.GameUpdate{
		RoomID:     g.roomID,
		Visibility: protocol.VisibilityBroadcast,
		Epoch:      &epoch,
		Board:      g.engine.ShowBoard(),
		StateID:    uuid.New(),
		Finish:     finish,
	})
	if err != nil {
		g.log.Warnf("finish update not sent: %v", err)
	}
	g.log.WithFields(logrus.Fields{"room": g.roomID, "normal": finish.Normal}).Info("game over")

	if g.cfg.RunOnce {
		return errDone
	}
	return g.openRoom(ctx)
}

// wireScores converts an engine score map to the wire's string-keyed form.
func wireScores(scores map[uuid.UUID]int) map[string]int {
	out := make(map[string]int, len(scores))
	for id, s := range scores {
		out[id.String()] = s
	}
	return out
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
