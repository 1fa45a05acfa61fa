// internal/client/agent.go
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/config"
	"github.com/asimov-arena/playground/internal/protocol"
)

// listRetryDelay spaces out lobby listings while no joinable room exists.
const listRetryDelay = 10 * time.Second

// AgentClient plays rooms from the player side: list lobbies, join one,
// move whenever addressed the turn, then either recycle or stop.
type AgentClient struct {
	log *logrus.Logger
	cfg config.Client
	ws  *WS

	// mu guards send and relist: the relist timer fires on its own
	// goroutine and must see the current session's sender, not the one it
	// was scheduled under.
	mu          sync.Mutex
	send        sender
	relist      *time.Timer
	relistDelay time.Duration

	playerID uuid.UUID
	roomID   uuid.UUID
	role     string
}

// NewAgentClient builds a player-side client from config.
func NewAgentClient(log *logrus.Logger, cfg config.Client) *AgentClient {
	return &AgentClient{log: log, cfg: cfg, relistDelay: listRetryDelay}
}

func (a *AgentClient) sender() sender {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.send
}

func (a *AgentClient) setSender(s sender) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.send = s
}

// Run connects with bounded retries and plays until the context is
// cancelled, a single-shot game ends, or the agent faults out.
func (a *AgentClient) Run(ctx context.Context) error {
	attempts := 0
	for {
		header := http.Header{}
		header.Set("X-API-Key", a.cfg.APIKey)

		ws, err := Dial(ctx, a.cfg.BrokerURL, header, a.log)
		if err != nil {
			attempts++
			if attempts > a.cfg.ConnectionRetries {
				return fmt.Errorf("broker unreachable after %d attempts: %w", attempts, err)
			}
			a.log.Warnf("connect failed (attempt %d/%d): %v", attempts, a.cfg.ConnectionRetries, err)
			if err := sleep(ctx, a.cfg.RetryDelay); err != nil {
				return err
			}
			continue
		}
		attempts = 0
		a.ws = ws
		a.setSender(ws)

		err = a.session(ctx)
		a.stopRelist()
		ws.Close()
		if errors.Is(err, errDone) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			a.log.Warnf("session ended: %v", err)
		}
		if err := sleep(ctx, a.cfg.RetryDelay); err != nil {
			return err
		}
	}
}

func (a *AgentClient) session(ctx context.Context) error {
	a.reset()
	if err := a.sender().Emit(ctx, &protocol.List{}); err != nil {
		return err
	}
	return a.ws.Run(ctx, a.handle)
}

func (a *AgentClient) reset() {
	a.playerID = uuid.Nil
	a.roomID = uuid.Nil
	a.role = ""
}

func (a *AgentClient) handle(ctx context.Context, msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.Rooms:
		return a.pickRoom(ctx, m)
	case *protocol.Joined:
		if !m.Broadcast {
			a.playerID = m.PlayerID
			a.roomID = m.RoomID
			a.role = m.GameRole
			a.log.WithFields(logrus.Fields{"room": m.RoomID, "player": m.PlayerID, "role": m.GameRole}).Info("seated")
		}
		return nil
	case *protocol.Gamestate:
		return a.onGamestate(ctx, m)
	case *protocol.Fail:
		if m.RespondingTo == protocol.EventJoin {
			// The engine turned us away after admission started (for
			// example the room filled first); look for another one later.
			a.log.Infof("join rejected (%s), will keep looking", m.Kind)
			a.relistLater()
			return nil
		}
		a.log.Warnf("broker rejected %s: %s", m.RespondingTo, m.Details)
		return nil
	default:
		a.log.Warnf("unexpected %s event, ignoring", msg.EventName())
		return nil
	}
}

// pickRoom joins the first joinable lobby hosting the configured game, or
// schedules another listing.
func (a *AgentClient) pickRoom(ctx context.Context, m *protocol.Rooms) error {
	if a.roomID != uuid.Nil {
		return nil
	}
	for id, summary := range m.Rooms {
		if summary.Game != a.cfg.Game || summary.Players >= summary.MaxPlayers {
			continue
		}
		roomID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		a.joinRoom(roomID, summary.Name)
		return nil
	}
	a.relistLater()
	return nil
}

// joinRoom requests a seat and waits for the broker's verdict off the read
// loop, so the joined event can still be received and acknowledged. A
// rejected request falls back to another listing.
func (a *AgentClient) joinRoom(roomID uuid.UUID, name string) {
	a.log.WithFields(logrus.Fields{"room": roomID, "name": name}).Info("joining room")
	send := a.sender()
	go func() {
		err := send.EmitWait(context.Background(), &protocol.Join{RoomID: roomID, Name: a.cfg.PlayerName})
		if err != nil {
			a.log.Infof("join rejected (%v), will keep looking", err)
			a.relistLater()
		}
	}()
}

// relistLater re-requests the lobby list after a fixed pause, off the read
// loop so inbound traffic keeps flowing. Rescheduling replaces any pending
// timer, and ending the session cancels it.
func (a *AgentClient) relistLater() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.relist != nil {
		a.relist.Stop()
	}
	a.relist = time.AfterFunc(a.relistDelay, func() {
		if err := a.sender().Emit(context.Background(), &protocol.List{}); err != nil {
			a.log.Warnf("relist failed: %v", err)
		}
	})
}

// stopRelist cancels a pending relist timer, if any.
func (a *AgentClient) stopRelist() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.relist != nil {
		a.relist.Stop()
		a.relist = nil
	}
}

func (a *AgentClient) onGamestate(ctx context.Context, m *protocol.Gamestate) error {
	if m.Finish != nil {
		return a.onFinish(ctx, m.Finish)
	}
	if a.playerID == uuid.Nil || m.Turn != a.playerID {
		return nil
	}
	move := ChooseMove(a.cfg.Game, a.role, m.Board)
	if move == nil {
		a.log.Warn("no legal move found in board snapshot")
		return nil
	}
	return a.sender().Emit(ctx, &protocol.Move{RoomID: a.roomID, PlayerID: a.playerID, Move: move})
}

// onFinish decides whether to stop or queue up for another game.
func (a *AgentClient) onFinish(ctx context.Context, finish *protocol.Finish) error {
	score := finish.Scores[a.playerID.String()]
	a.log.WithFields(logrus.Fields{"normal": finish.Normal, "score": score}).Info("game over")

	if !finish.Normal && finish.Fault == a.playerID && !a.cfg.Persistent {
		a.log.Warnf("stopping after abnormal finish caused by this agent: %s", finish.Reason)
		return errDone
	}
	if a.cfg.RunOnce {
		return errDone
	}
	a.reset()
	return a.sender().Emit(ctx, &protocol.List{})
}
