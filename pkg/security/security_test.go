package security

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("Sm1le!Brightly")
	require.NoError(t, err)
	assert.NotEqual(t, "Sm1le!Brightly", hash)

	assert.True(t, hasher.Verify("Sm1le!Brightly", hash))
	assert.False(t, hasher.Verify("Sm1le!Brightly2", hash))
	assert.False(t, hasher.Verify("", hash))
	assert.False(t, hasher.Verify("Sm1le!Brightly", "not-a-bcrypt-hash"))
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestHasherUsesDefaultCostForOutOfRange(t *testing.T) {
	hasher := NewBcryptHasher(99).(*bcryptHasher)
	assert.Equal(t, DefaultBcryptCost, hasher.cost)
}

func TestValidatePasswordStrength(t *testing.T) {
	t.Run("common password fails", func(t *testing.T) {
		res := ValidatePasswordStrength("password123")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Errors, "password is too common")
		assert.Contains(t, res.Errors, "password must contain an uppercase letter")
		assert.Contains(t, res.Errors, "password must contain a special character")
	})

	t.Run("denylist is case insensitive", func(t *testing.T) {
		res := ValidatePasswordStrength("Password123!")
		assert.False(t, res.Valid)
		assert.Equal(t, []string{"password is too common"}, res.Errors)
	})

	t.Run("short password", func(t *testing.T) {
		res := ValidatePasswordStrength("Ab1!")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Errors, "password must be at least 8 characters long")
	})

	t.Run("password beyond bcrypt limit", func(t *testing.T) {
		long := strings.Repeat("Fl0ss-Every-Day", 5)
		res := ValidatePasswordStrength(long)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{"password must be at most 72 bytes long"}, res.Errors)

		// Multi-byte characters count by encoded size.
		res = ValidatePasswordStrength("Aa1!" + strings.Repeat("é", 35))
		assert.False(t, res.Valid)
		assert.Contains(t, res.Errors, "password must be at most 72 bytes long")

		res = ValidatePasswordStrength(long[:MaxPasswordBytes])
		assert.True(t, res.Valid)
	})

	t.Run("strong password", func(t *testing.T) {
		res := ValidatePasswordStrength("Fl0ss-Every-Day")
		assert.True(t, res.Valid)
		assert.Empty(t, res.Errors)
	})
}

func TestAESRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	enc, err := NewAESEncryptor(key)
	require.NoError(t, err)

	sealed, err := EncryptString(enc, "penicillin allergy")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "penicillin")

	plain, err := DecryptString(enc, sealed)
	require.NoError(t, err)
	assert.Equal(t, "penicillin allergy", plain)

	empty, err := EncryptString(enc, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = DecryptString(enc, base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestParseKey(t *testing.T) {
	raw := make([]byte, KeySize)
	raw[0] = 7

	fromHex, err := ParseKey(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, fromHex)

	fromB64, err := ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, fromB64)

	_, err = ParseKey("too-short")
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestSessionTokens(t *testing.T) {
	a, err := NewSessionToken()
	require.NoError(t, err)
	b, err := NewSessionToken()
	require.NoError(t, err)

	assert.Len(t, a, SessionTokenBytes*2)
	assert.NotEqual(t, a, b)
	assert.Equal(t, HashToken(a), HashToken(a))
	assert.NotEqual(t, a, HashToken(a))
}
