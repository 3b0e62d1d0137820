package passwords

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fastArgon = Argon2idParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

func TestBcrypt_HashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewBcrypt(bcrypt.MinCost)
	hash, err := h.Hash("password1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	ok, err := h.Verify("password1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("password2", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcrypt_InvalidCostFallsBack(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(99).cost)
	assert.Equal(t, 12, NewBcrypt(12).cost)
}

func TestHash_EmptyPassword(t *testing.T) {
	t.Parallel()

	_, err := NewBcrypt(bcrypt.MinCost).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = NewArgon2id(fastArgon).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestArgon2id_HashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewArgon2id(fastArgon)
	hash, err := h.Hash("password1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := h.Verify("password1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("nope", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := h.Hash("password1")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ between hashes")
}

func TestArgon2id_MalformedHash(t *testing.T) {
	t.Parallel()

	h := NewArgon2id(fastArgon)
	for _, bad := range []string{
		"",
		"$argon2id$v=19$m=1,t=1,p=1$salt",
		"$argon2i$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=16$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!!$aGFzaA",
	} {
		_, err := h.Verify("x", bad)
		assert.Error(t, err, "hash %q", bad)
	}
}

func TestNew_DispatchesOnStoredFormat(t *testing.T) {
	t.Parallel()

	bcryptHash, err := NewBcrypt(bcrypt.MinCost).Hash("secret1")
	require.NoError(t, err)
	argonHash, err := NewArgon2id(fastArgon).Hash("secret1")
	require.NoError(t, err)

	for _, algo := range []string{"bcrypt", "argon2id", ""} {
		h, err := New(algo, bcrypt.MinCost)
		require.NoError(t, err)

		ok, err := h.Verify("secret1", bcryptHash)
		require.NoError(t, err)
		assert.True(t, ok, "%s verifies bcrypt", algo)

		ok, err = h.Verify("secret1", argonHash)
		require.NoError(t, err)
		assert.True(t, ok, "%s verifies argon2id", algo)

		_, err = h.Verify("secret1", "plaintext")
		assert.ErrorIs(t, err, ErrUnknownHashType)
	}
}

func TestNew_PrimaryAlgorithm(t *testing.T) {
	t.Parallel()

	h, err := New("bcrypt", bcrypt.MinCost)
	require.NoError(t, err)
	hash, err := h.Hash("pw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	_, err = New("md5", bcrypt.MinCost)
	assert.Error(t, err)
}

func TestHash_TooLong(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a1", 40)

	_, err := NewBcrypt(bcrypt.MinCost).Hash(long)
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = NewArgon2id(fastArgon).Hash(long)
	assert.ErrorIs(t, err, ErrPasswordTooLong, "both algorithms accept the same inputs")

	_, err = NewBcrypt(bcrypt.MinCost).Hash(strings.Repeat("a", MaxLength))
	assert.NoError(t, err)
}

func TestCheckStrength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		password string
		want     error
	}{
		{"password1", nil},
		{"пароль123", nil},
		{"", ErrEmptyPassword},
		{"pw1", ErrPasswordTooShort},
		{"password", ErrPasswordTooWeak},
		{"12345678", ErrPasswordTooWeak},
		{strings.Repeat("a1", 40), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := CheckStrength(tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
