// internal/tournament/queue.go
package tournament

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue tracks which participants currently have a live connection for a
// tournament. Entries are ephemeral: added when a connection enters
// matchmaking, removed when it drops.
type Queue struct {
	rdb *redis.Client
}

// NewQueue wraps a redis client as the presence queue.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func queueKey(tournamentID uuid.UUID) string {
	return "arena:queue:" + tournamentID.String()
}

func entryField(connID, participantID uuid.UUID) string {
	return connID.String() + ":" + participantID.String()
}

// Enqueue records that connID is online for the given participant.
func (q *Queue) Enqueue(ctx context.Context, tournamentID, connID, participantID uuid.UUID) error {
	err := q.rdb.HSet(ctx, queueKey(tournamentID), entryField(connID, participantID), participantID.String()).Err()
	if err != nil {
		return fmt.Errorf("enqueue participant %s: %w", participantID, err)
	}
	return nil
}

// Dequeue removes the connection's entry, typically on disconnect.
func (q *Queue) Dequeue(ctx context.Context, tournamentID, connID, participantID uuid.UUID) error {
	err := q.rdb.HDel(ctx, queueKey(tournamentID), entryField(connID, participantID)).Err()
	if err != nil {
		return fmt.Errorf("dequeue participant %s: %w", participantID, err)
	}
	return nil
}

// Online returns the set of participants with at least one live entry.
func (q *Queue) Online(ctx context.Context, tournamentID uuid.UUID) (map[uuid.UUID]bool, error) {
	entries, err := q.rdb.HGetAll(ctx, queueKey(tournamentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list queue for tournament %s: %w", tournamentID, err)
	}
	online := make(map[uuid.UUID]bool, len(entries))
	for _, v := range entries {
		id, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		online[id] = true
	}
	return online, nil
}
