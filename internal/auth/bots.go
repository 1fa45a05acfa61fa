// internal/auth/bots.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/asimov-arena/playground/internal/models"
)

// ErrBadCredential is returned for any credential that does not resolve to
// a known bot.
var ErrBadCredential = errors.New("invalid or unknown credential")

// BotRegistry issues and verifies bot API keys. Keys are presented as
// "<botID>.<secret>"; only the argon2id hash of the secret is retained.
type BotRegistry struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Bot
}

// NewBotRegistry returns an empty registry.
func NewBotRegistry() *BotRegistry {
	return &BotRegistry{byID: make(map[uuid.UUID]*models.Bot)}
}

// CreateBot registers a bot under a unique name and returns it along with
// its one-time plaintext API key.
func (r *BotRegistry) CreateBot(name, description string) (*models.Bot, string, error) {
	secret, err := GenerateKey()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashKey(secret, Params)
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byID {
		if b.Name == name {
			return nil, "", fmt.Errorf("bot name %q already taken", name)
		}
	}
	bot := &models.Bot{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		KeyHash:     hash,
	}
	r.byID[bot.ID] = bot
	return bot, bot.ID.String() + "." + secret, nil
}

// Restore loads a previously persisted bot into the registry.
func (r *BotRegistry) Restore(bot *models.Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[bot.ID] = bot
}

// Get returns the bot with the given id.
func (r *BotRegistry) Get(id uuid.UUID) (*models.Bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	return b, ok
}

// List returns all registered bots.
func (r *BotRegistry) List() []*models.Bot {
	r.mu.Lock()
	defer r.mu.Unlock()
	bots := make([]*models.Bot, 0, len(r.byID))
	for _, b := range r.byID {
		bots = append(bots, b)
	}
	return bots
}

// VerifyKey resolves an API key to its bot, or ErrBadCredential.
func (r *BotRegistry) VerifyKey(key string) (*models.Bot, error) {
	idStr, secret, found := strings.Cut(key, ".")
	if !found {
		return nil, ErrBadCredential
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, ErrBadCredential
	}

	r.mu.Lock()
	bot, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrBadCredential
	}

	match, err := CompareKeyAndHash(secret, bot.KeyHash)
	if err != nil || !match {
		return nil, ErrBadCredential
	}
	return bot, nil
}
