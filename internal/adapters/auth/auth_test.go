package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/domain"
)

func TestJWT_IssueVerify(t *testing.T) {
	j, err := NewJWT("s3cret", time.Hour)
	require.NoError(t, err)

	tok, err := j.Issue("user-1")
	require.NoError(t, err)

	sub, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestJWT_Rejects(t *testing.T) {
	j, _ := NewJWT("s3cret", time.Hour)
	other, _ := NewJWT("other", time.Hour)
	forged, _ := other.Issue("user-1")

	expired, _ := NewJWT("s3cret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue("user-1")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: issuer}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"garbage":   "not-a-token",
		"wrong key": forged,
		"expired":   old,
		"alg none":  unsigned,
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := j.Verify(tok)
			assert.True(t, errors.Is(err, domain.ErrUnauthorized), "got %v", err)
		})
	}
}

func TestNewJWT_RequiresSecret(t *testing.T) {
	_, err := NewJWT("", time.Hour)
	assert.Error(t, err)
}

func TestBcrypt(t *testing.T) {
	b := NewBcrypt(4)
	h, err := b.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", h)

	assert.NoError(t, b.Compare(h, "hunter22"))
	assert.Error(t, b.Compare(h, "hunter23"))
}

func TestBcrypt_PasswordOver72Bytes(t *testing.T) {
	// 30 runes, 90 bytes
	_, err := NewBcrypt(4).Hash(strings.Repeat("€", 30))
	assert.ErrorIs(t, err, domain.ErrInvalid)
}
