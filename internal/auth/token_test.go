package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	token, err := m.Issue("alice")
	require.NoError(t, err)

	owner, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
}

func TestTokenRejectsOtherSecret(t *testing.T) {
	token, err := NewTokenManager("one", time.Hour).Issue("alice")
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpires(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	issued := time.Now()
	m.now = func() time.Time { return issued }

	token, err := m.Issue("alice")
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWithoutTTL(t *testing.T) {
	m := NewTokenManager("secret", 0)
	token, err := m.Issue("bob")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	owner, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
}

func TestTokenRejectsGarbage(t *testing.T) {
	_, err := NewTokenManager("secret", time.Hour).Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRequiresOwner(t *testing.T) {
	_, err := NewTokenManager("secret", time.Hour).Issue("")
	assert.Error(t, err)
}
