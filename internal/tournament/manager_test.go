// internal/tournament/manager_test.go
package tournament

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asimov-arena/playground/internal/models"
	"github.com/asimov-arena/playground/internal/protocol"
)

func newTestManager(t *testing.T) (*Manager, *Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queue := NewQueue(rdb)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewManager(log, queue), queue
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Create("weekly", "rps", "key-1")
	require.NoError(t, err)
	_, err = m.Create("weekly", "kalaha", "key-2")
	assert.Error(t, err)
}

func TestAddPlayerBuildsRoundRobin(t *testing.T) {
	m, _ := newTestManager(t)
	tour, err := m.Create("weekly", "rps", "key")
	require.NoError(t, err)

	bots := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	for i, bot := range bots {
		p, err := m.AddPlayer(bot, tour.ID)
		require.NoError(t, err)
		assert.Equal(t, i+1, p.Index, "indices are allocated in join order")
	}

	// n participants joining one by one yield n*(n-1)/2 matches.
	matches := m.Matches(tour.ID)
	require.Len(t, matches, 6)

	// Index derivation keeps every unordered pair unique.
	seen := map[int]bool{}
	for _, match := range matches {
		assert.Equal(t, models.MatchPending, match.State)
		assert.False(t, seen[match.Index], "match index collision at %d", match.Index)
		seen[match.Index] = true
	}
}

func TestAddPlayerRejectsDoubleEnrollment(t *testing.T) {
	m, _ := newTestManager(t)
	tour, err := m.Create("weekly", "rps", "key")
	require.NoError(t, err)

	bot := uuid.New()
	_, err = m.AddPlayer(bot, tour.ID)
	require.NoError(t, err)

	_, err = m.AddPlayer(bot, tour.ID)
	var perr *protocol.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, protocol.KindAlreadyInTournament, perr.Kind)
}

func TestDisqualifiedGetNoNewMatches(t *testing.T) {
	m, _ := newTestManager(t)
	tour, err := m.Create("weekly", "rps", "key")
	require.NoError(t, err)

	p1, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)
	require.NoError(t, m.Disqualify(tour.ID, p1.ID))

	_, err = m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)
	assert.Empty(t, m.Matches(tour.ID), "no match against a disqualified participant")
}

func TestPickMatchRequiresBothOnline(t *testing.T) {
	ctx := context.Background()
	m, queue := newTestManager(t)
	tour, err := m.Create("weekly", "rps", "key")
	require.NoError(t, err)

	p1, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)
	p2, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)

	match, err := m.PickMatch(ctx, tour.ID)
	require.NoError(t, err)
	assert.Nil(t, match, "nobody online, nothing to play")

	require.NoError(t, queue.Enqueue(ctx, tour.ID, uuid.New(), p1.ID))
	match, err = m.PickMatch(ctx, tour.ID)
	require.NoError(t, err)
	assert.Nil(t, match, "one side online is not enough")

	require.NoError(t, queue.Enqueue(ctx, tour.ID, uuid.New(), p2.ID))
	match, err = m.PickMatch(ctx, tour.ID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, models.MatchRunning, match.State)

	// The only match is running now; nothing further is eligible.
	match, err = m.PickMatch(ctx, tour.ID)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestPickMatchPrefersLowestIndex(t *testing.T) {
	ctx := context.Background()
	m, queue := newTestManager(t)
	tour, err := m.Create("weekly", "rps", "key")
	require.NoError(t, err)

	p1, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)
	p2, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)
	p3, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)

	for _, p := range []*models.Participant{p1, p2, p3} {
		require.NoError(t, queue.Enqueue(ctx, tour.ID, uuid.New(), p.ID))
	}

	// Everyone online: the (2,1) pairing is the oldest and plays first.
	match, err := m.PickMatch(ctx, tour.ID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, matchIndexBase*2+1, match.Index)

	match, err = m.PickMatch(ctx, tour.ID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, matchIndexBase*3+1, match.Index)
}

func TestDequeueTakesParticipantOffline(t *testing.T) {
	ctx := context.Background()
	m, queue := newTestManager(t)
	tour, err := m.Create("weekly", "rps", "key")
	require.NoError(t, err)

	p1, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)
	p2, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)

	conn1 := uuid.New()
	require.NoError(t, queue.Enqueue(ctx, tour.ID, conn1, p1.ID))
	require.NoError(t, queue.Enqueue(ctx, tour.ID, uuid.New(), p2.ID))
	require.NoError(t, queue.Dequeue(ctx, tour.ID, conn1, p1.ID))

	match, err := m.PickMatch(ctx, tour.ID)
	require.NoError(t, err)
	assert.Nil(t, match, "a dequeued participant no longer counts as online")

	online, err := queue.Online(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]bool{p2.ID: true}, online)
}

func TestCompleteMatchLinksRoom(t *testing.T) {
	ctx := context.Background()
	m, queue := newTestManager(t)
	tour, err := m.Create("weekly", "rps", "key")
	require.NoError(t, err)

	p1, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)
	p2, err := m.AddPlayer(uuid.New(), tour.ID)
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(ctx, tour.ID, uuid.New(), p1.ID))
	require.NoError(t, queue.Enqueue(ctx, tour.ID, uuid.New(), p2.ID))

	match, err := m.PickMatch(ctx, tour.ID)
	require.NoError(t, err)
	require.NotNil(t, match)

	roomID := uuid.New()
	require.NoError(t, m.CompleteMatch(tour.ID, match.ID, roomID, false))

	matches := m.Matches(tour.ID)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchCompleted, matches[0].State)
	assert.Equal(t, roomID, matches[0].RoomID)

	assert.Error(t, m.CompleteMatch(tour.ID, uuid.New(), roomID, false))
}
