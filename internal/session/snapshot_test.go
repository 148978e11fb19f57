package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/session/entity"
)

func TestSnapshotRoundTripKeepsMirrorFields(t *testing.T) {
	in := entity.Snapshot{
		User:  entity.User{ID: "u1", Email: "a@example.com", Avatar: "a.png", Visibility: "private"},
		Token: "t",
	}
	raw, err := encodeSnapshot(in)
	require.NoError(t, err)
	out, err := decodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeSnapshotRejectsWrongTypes(t *testing.T) {
	_, err := decodeSnapshot([]byte(`{"user":{"id":1,"email":"a@example.com"},"token":"t"}`))
	require.ErrorIs(t, err, ErrCorruptSnapshot)

	_, err = decodeSnapshot([]byte(`[]`))
	require.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		require.NoError(t, err)
		return s
	}

	assert.False(t, tokenExpired("opaque-token", now))
	assert.False(t, tokenExpired(sign(jwt.MapClaims{"sub": "u1"}), now), "no exp claim")
	assert.False(t, tokenExpired(sign(jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), now))
	assert.True(t, tokenExpired(sign(jwt.MapClaims{"exp": now.Unix()}), now))
	assert.True(t, tokenExpired(sign(jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()}), now))
}
