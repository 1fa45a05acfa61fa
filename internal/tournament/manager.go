// internal/tournament/manager.go
//
// Round-robin matchmaking. Joining a tournament fans out one pending match
// against every non-disqualified existing participant, so the match set
// grows into the complete round-robin graph as participants trickle in.
package tournament

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/models"
	"github.com/asimov-arena/playground/internal/protocol"
)

// matchIndexBase spreads participant indices so the index of a pair (i, j)
// with i > j is unique and globally ordered by join time.
const matchIndexBase = 100000

// state is one tournament's entities plus its serialization lock.
type state struct {
	mu           sync.Mutex
	tournament   *models.Tournament
	participants []*models.Participant
	matches      []*models.Match
}

// Manager owns all tournaments and serializes joins and match picks per
// tournament.
type Manager struct {
	log   *logrus.Logger
	queue *Queue

	mu          sync.Mutex
	tournaments map[uuid.UUID]*state
}

// NewManager returns a Manager backed by the given presence queue.
func NewManager(log *logrus.Logger, queue *Queue) *Manager {
	return &Manager{
		log:         log,
		queue:       queue,
		tournaments: make(map[uuid.UUID]*state),
	}
}

// Create registers a new tournament with a unique name.
func (m *Manager) Create(name, game, apiKey string) (*models.Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.tournaments {
		if st.tournament.Name == name {
			return nil, fmt.Errorf("tournament name %q already taken", name)
		}
	}
	t := &models.Tournament{
		ID:        uuid.New(),
		Name:      name,
		Game:      game,
		APIKey:    apiKey,
		CreatedAt: time.Now(),
	}
	m.tournaments[t.ID] = &state{tournament: t}
	return t, nil
}

// Get returns a tournament by id.
func (m *Manager) Get(id uuid.UUID) (*models.Tournament, bool) {
	st, ok := m.lookup(id)
	if !ok {
		return nil, false
	}
	return st.tournament, true
}

func (m *Manager) lookup(id uuid.UUID) (*state, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tournaments[id]
	return st, ok
}

// AddPlayer enrolls a bot, allocating the next participant index and
// creating one pending match against every existing non-disqualified
// participant. The whole operation holds the tournament's lock.
func (m *Manager) AddPlayer(botID, tournamentID uuid.UUID) (*models.Participant, error) {
	st, ok := m.lookup(tournamentID)
	if !ok {
		return nil, fmt.Errorf("unknown tournament %s", tournamentID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	index := 0
	for _, p := range st.participants {
		if p.BotID == botID {
			return nil, protocol.NewError(protocol.KindAlreadyInTournament)
		}
		if p.Index > index {
			index = p.Index
		}
	}
	participant := &models.Participant{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		BotID:        botID,
		Index:        index + 1,
	}

	for _, opponent := range st.participants {
		if opponent.Disqualified {
			continue
		}
		st.matches = append(st.matches, &models.Match{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			Index:        matchIndexBase*participant.Index + opponent.Index,
			State:        models.MatchPending,
			PlayerA:      participant.ID,
			PlayerB:      opponent.ID,
		})
	}
	st.participants = append(st.participants, participant)

	m.log.WithFields(logrus.Fields{
		"tournament":  tournamentID,
		"participant": participant.ID,
		"index":       participant.Index,
		"matches":     len(st.participants) - 1,
	}).Info("participant enrolled")

	return participant, nil
}

// PickMatch selects the lowest-index pending match whose both players are
// online and marks it running. Returns (nil, nil) when nothing is eligible;
// callers retry later.
func (m *Manager) PickMatch(ctx context.Context, tournamentID uuid.UUID) (*models.Match, error) {
	st, ok := m.lookup(tournamentID)
	if !ok {
		return nil, fmt.Errorf("unknown tournament %s", tournamentID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	online, err := m.queue.Online(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	eligible := make([]*models.Match, 0)
	for _, match := range st.matches {
		if match.State != models.MatchPending {
			continue
		}
		if online[match.PlayerA] && online[match.PlayerB] {
			eligible = append(eligible, match)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Index < eligible[j].Index })

	match := eligible[0]
	match.State = models.MatchRunning
	m.log.WithFields(logrus.Fields{
		"tournament": tournamentID,
		"match":      match.ID,
		"index":      match.Index,
	}).Info("match picked")
	return match, nil
}

// CompleteMatch transitions a running match to its terminal state and links
// the room it was played in.
func (m *Manager) CompleteMatch(tournamentID, matchID, roomID uuid.UUID, errored bool) error {
	st, ok := m.lookup(tournamentID)
	if !ok {
		return fmt.Errorf("unknown tournament %s", tournamentID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, match := range st.matches {
		if match.ID != matchID {
			continue
		}
		match.RoomID = roomID
		if errored {
			match.State = models.MatchErrored
		} else {
			match.State = models.MatchCompleted
		}
		return nil
	}
	return fmt.Errorf("unknown match %s", matchID)
}

// Participants returns a snapshot of the tournament's participants.
func (m *Manager) Participants(tournamentID uuid.UUID) []*models.Participant {
	st, ok := m.lookup(tournamentID)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]*models.Participant(nil), st.participants...)
}

// Matches returns a snapshot of the tournament's matches.
func (m *Manager) Matches(tournamentID uuid.UUID) []*models.Match {
	st, ok := m.lookup(tournamentID)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]*models.Match(nil), st.matches...)
}

// Disqualify flags a participant; future joiners get no match against it.
func (m *Manager) Disqualify(tournamentID, participantID uuid.UUID) error {
	st, ok := m.lookup(tournamentID)
	if !ok {
		return fmt.Errorf("unknown tournament %s", tournamentID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, p := range st.participants {
		if p.ID == participantID {
			p.Disqualified = true
			return nil
		}
	}
	return fmt.Errorf("unknown participant %s", participantID)
}
