// internal/database/tournament.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/asimov-arena/playground/internal/models"
)

// SaveTournament upserts a tournament row.
func (s *Store) SaveTournament(ctx context.Context, t *models.Tournament) error {
	q := `
		INSERT INTO tournaments (id, name, game, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, t.ID, t.Name, t.Game, t.Description, t.CreatedAt)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx upsert tournament: %w", err)
	}
	return nil
}

// SaveMatches upserts the given match rows in one transaction, recording
// state transitions as the scheduler advances them.
func (s *Store) SaveMatches(ctx context.Context, matches []models.Match) error {
	q := `
		INSERT INTO matches (id, tournament_id, index, state, player_a, player_b, room_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '00000000-0000-0000-0000-000000000000'::uuid))
		ON CONFLICT (id)
		DO UPDATE SET state = EXCLUDED.state, room_id = EXCLUDED.room_id
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, m := range matches {
			if _, e := tx.Exec(ctx, q, m.ID, m.TournamentID, m.Index, m.State, m.PlayerA, m.PlayerB, m.RoomID); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert matches: %w", err)
	}
	return nil
}

// SaveParticipant upserts one enrollment row.
func (s *Store) SaveParticipant(ctx context.Context, p *models.Participant) error {
	q := `
		INSERT INTO participants (id, tournament_id, bot_id, index, disqualified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tournament_id, bot_id)
		DO UPDATE SET disqualified = EXCLUDED.disqualified
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, p.ID, p.TournamentID, p.BotID, p.Index, p.Disqualified)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx upsert participant: %w", err)
	}
	return nil
}
