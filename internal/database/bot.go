// internal/database/bot.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/asimov-arena/playground/internal/models"
)

// SaveBot upserts a bot identity. The key hash is only ever replaced by an
// explicit re-issue; ordinary saves keep the existing credential.
func (s *Store) SaveBot(ctx context.Context, bot *models.Bot) error {
	q := `
		INSERT INTO bots (id, name, description, key_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
		              key_hash = EXCLUDED.key_hash
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, bot.ID, bot.Name, bot.Description, bot.KeyHash)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx upsert bot: %w", err)
	}
	return nil
}

// ListBots loads every registered bot, used to restore the in-memory
// registry on boot.
func (s *Store) ListBots(ctx context.Context) ([]models.Bot, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, key_hash FROM bots`)
	if err != nil {
		return nil, fmt.Errorf("query bots: %w", err)
	}
	defer rows.Close()

	var bots []models.Bot
	for rows.Next() {
		var b models.Bot
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.KeyHash); err != nil {
			return nil, fmt.Errorf("scan bot row: %w", err)
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}
