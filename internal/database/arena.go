// internal/database/arena.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/asimov-arena/playground/internal/models"
	"github.com/asimov-arena/playground/internal/protocol"
)

// SaveGameState upserts one move-log row. The same state id may arrive
// more than once when an engine retries an update; the second write just
// refreshes the row.
func (s *Store) SaveGameState(ctx context.Context, state *models.GameState) error {
	moveJSON, err := json.Marshal(state.Move)
	if err != nil {
		return fmt.Errorf("failed to marshal move: %w", err)
	}
	boardJSON, err := json.Marshal(state.Board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	q := `
		INSERT INTO game_states (id, room_id, player_id, epoch, move, board, turn, saved_at)
		VALUES ($1, $2, NULLIF($3, '00000000-0000-0000-0000-000000000000'::uuid), $4, $5, $6,
		        NULLIF($7, '00000000-0000-0000-0000-000000000000'::uuid), $8)
		ON CONFLICT (id)
		DO UPDATE SET epoch = EXCLUDED.epoch, move = EXCLUDED.move,
		              board = EXCLUDED.board, turn = EXCLUDED.turn
	`
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q,
			state.ID, state.RoomID, state.PlayerID, state.Epoch,
			moveJSON, boardJSON, state.Turn, state.SavedAt)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx upsert game state: %w", err)
	}
	return nil
}

// SaveRoomResult records a finished room and, when the finish carries
// scores, one result row per player.
func (s *Store) SaveRoomResult(ctx context.Context, room *models.Room, finish *protocol.Finish) error {
	boardJSON, err := json.Marshal(room.Board)
	if err != nil {
		return fmt.Errorf("failed to marshal final board: %w", err)
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertRoom := `
			INSERT INTO rooms (id, name, game, max_players, status, epoch, final_board, normal_finish, finish_reason, created_at)
			VALUES ($1, $2, $3, $4, 'finished', $5, $6, $7, $8, $9)
			ON CONFLICT (id)
			DO UPDATE SET status = 'finished', epoch = EXCLUDED.epoch,
			              final_board = EXCLUDED.final_board,
			              normal_finish = EXCLUDED.normal_finish,
			              finish_reason = EXCLUDED.finish_reason
		`
		if _, e := tx.Exec(ctx, upsertRoom,
			room.ID, room.Name, room.Game, room.MaxPlayers, room.Epoch,
			boardJSON, finish.Normal, finish.Reason, room.CreatedAt); e != nil {
			return e
		}

		for playerID, score := range finish.Scores {
			q := `
				INSERT INTO room_results (room_id, player_id, score, at_fault)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (room_id, player_id)
				DO UPDATE SET score = EXCLUDED.score, at_fault = EXCLUDED.at_fault
			`
			atFault := finish.Fault.String() == playerID
			if _, e := tx.Exec(ctx, q, room.ID, playerID, score, atFault); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert room result: %w", err)
	}
	return nil
}
