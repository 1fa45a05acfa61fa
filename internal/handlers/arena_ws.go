// internal/handlers/arena_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/auth"
	"github.com/asimov-arena/playground/internal/broker"
	"github.com/asimov-arena/playground/internal/middleware"
	"github.com/asimov-arena/playground/internal/protocol"
)

// Custom WebSocket close codes used by the arena endpoint.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	BadCredentialError  = 3001 // Presented token or API key did not verify.
)

// Subprotocol spoken over /arena/ws.
const ArenaSubprotocol = "arena.v1"

// ArenaWSHandler upgrades /arena/ws connections, resolves the caller's
// credential to a principal, and runs the read/write pumps against the
// broker. Anonymous callers are rejected before the upgrade.
func ArenaWSHandler(logger *logrus.Logger, b *broker.Broker, bots *auth.BotRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		principal, botID, err := resolveCredential(r, bots)
		if err != nil {
			logger.Warnf("credential rejected from %s: %v", remoteAddr, err)
			http.Error(w, "invalid credential", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{ArenaSubprotocol},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != ArenaSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the arena.v1 subprotocol")
			return
		}

		conn := broker.NewConn(principal, botID)
		b.Register(conn)
		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writePump(ctx, c, conn, logger)
		readErr := readPump(ctx, c, b, conn, logger)

		b.Unregister(conn.ID)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, readErr)
	}
}

// resolveCredential maps the request's Authorization header or X-API-Key to
// a principal. Bearer tokens carry operator or bot roles; an API key always
// resolves to a bot principal.
func resolveCredential(r *http.Request, bots *auth.BotRegistry) (auth.Principal, uuid.UUID, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		bot, err := bots.VerifyKey(key)
		if err != nil {
			return auth.Principal{}, uuid.Nil, err
		}
		return auth.Principal{ID: bot.ID.String(), Role: auth.RoleBot}, bot.ID, nil
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		return auth.Principal{}, uuid.Nil, auth.ErrBadCredential
	}
	principal, err := auth.Authenticate(token)
	if err != nil {
		return auth.Principal{}, uuid.Nil, err
	}
	return principal, uuid.Nil, nil
}

// readPump decodes envelopes off the socket and dispatches each one,
// blocking until the connection closes.
func readPump(ctx context.Context, c *websocket.Conn, b *broker.Broker, conn *broker.Conn, logger *logrus.Logger) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.Warnf("conn %v sent non-text message type %d, ignoring", conn.ID, typ)
			continue
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			logger.Warnf("conn %v sent a malformed envelope: %v", conn.ID, err)
			perr := protocol.Errorf(protocol.KindInputValidation, "malformed envelope")
			conn.SendFrame(protocol.FailFrame(perr, 0))
			continue
		}
		b.Dispatch(ctx, conn, env)
	}
}

// writePump drains the connection's outbound queue onto the socket and
// keeps the peer alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *broker.Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-conn.Out:
			data, err := json.Marshal(env)
			if err != nil {
				logger.Warnf("failed to marshal outgoing frame for conn %v: %v", conn.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("write failed for conn %v: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed for conn %v, assuming disconnect: %v", conn.ID, err)
				return
			}
		}
	}
}
