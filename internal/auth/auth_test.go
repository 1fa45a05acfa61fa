// internal/auth/auth_test.go
package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundtrip(t *testing.T) {
	Init()

	token, err := CreateToken(Principal{ID: "engine-1", Role: RoleOperator})
	require.NoError(t, err)

	p, err := Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "engine-1", p.ID)
	assert.Equal(t, RoleOperator, p.Role)
}

func TestAuthenticateRejectsTamperedToken(t *testing.T) {
	Init()

	token, err := CreateToken(Principal{ID: "engine-1", Role: RoleOperator})
	require.NoError(t, err)

	_, err = Authenticate(token + "x")
	assert.Error(t, err)

	_, err = Authenticate("not-a-jwt")
	assert.Error(t, err)
}

func TestAuthenticateRejectsForeignKey(t *testing.T) {
	Init()
	token, err := CreateToken(Principal{ID: "bot-1", Role: RoleBot})
	require.NoError(t, err)

	// A second Init rotates the key pair, invalidating earlier tokens.
	Init()
	_, err = Authenticate(token)
	assert.Error(t, err)
}

func TestAuthenticateRejectsUnknownRole(t *testing.T) {
	Init()
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub":  "intruder",
		"role": "admin",
	}).SignedString(privateKey)
	require.NoError(t, err)

	_, err = Authenticate(token)
	assert.Error(t, err)
}

func TestParamsUsableOnSingleCPU(t *testing.T) {
	// argon2 panics on parallelism 0, so the derived value must stay
	// positive no matter how few CPUs the host reports.
	assert.GreaterOrEqual(t, Params.parallelism, uint8(1))

	_, err := HashKey("secret", &params{
		memory:      8 * 1024,
		iterations:  1,
		parallelism: uint8(max(1, 1/2)),
		saltLength:  16,
		keyLength:   32,
	})
	require.NoError(t, err)
}

func TestKeyHashRoundtrip(t *testing.T) {
	secret, err := GenerateKey()
	require.NoError(t, err)
	hash, err := HashKey(secret, Params)
	require.NoError(t, err)

	match, err := CompareKeyAndHash(secret, hash)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = CompareKeyAndHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, match)

	_, err = CompareKeyAndHash(secret, "$argon2id$garbage")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestBotRegistry(t *testing.T) {
	r := NewBotRegistry()

	bot, key, err := r.CreateBot("alice", "test bot")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	_, _, err = r.CreateBot("alice", "impostor")
	assert.Error(t, err, "names are unique")

	got, err := r.VerifyKey(key)
	require.NoError(t, err)
	assert.Equal(t, bot.ID, got.ID)

	_, err = r.VerifyKey(bot.ID.String() + ".wrong-secret")
	assert.ErrorIs(t, err, ErrBadCredential)

	_, err = r.VerifyKey("no-separator")
	assert.ErrorIs(t, err, ErrBadCredential)

	_, err = r.VerifyKey("not-a-uuid.secret")
	assert.ErrorIs(t, err, ErrBadCredential)
}

func TestBotRegistryRestore(t *testing.T) {
	r := NewBotRegistry()
	bot, key, err := r.CreateBot("alice", "")
	require.NoError(t, err)

	fresh := NewBotRegistry()
	_, err = fresh.VerifyKey(key)
	assert.ErrorIs(t, err, ErrBadCredential)

	fresh.Restore(bot)
	got, err := fresh.VerifyKey(key)
	require.NoError(t, err)
	assert.Equal(t, bot.Name, got.Name)
}
