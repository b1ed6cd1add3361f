package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestJWTService(t *testing.T, clock *time.Time) *JWTService {
	t.Helper()

	svc, err := NewJWTService(JWTConfig{
		Secret:         "test-secret",
		Issuer:         "oakdesk",
		AccessTokenTTL: 15 * time.Minute,
		Clock:          func() time.Time { return *clock },
	})
	require.NoError(t, err)
	return svc
}

func TestJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestJWTService(t, &clock)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID:   "u1",
		Username: "agent.smith",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "agent.smith", claims.Username)
	require.Equal(t, "oakdesk", claims.Issuer)
}

func TestAccessTokenExpires(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestJWTService(t, &clock)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "u1"})
	require.NoError(t, err)

	clock = clock.Add(16 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestAccessTokenRejectsForeignIssuer(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	other, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Issuer: "someone-else",
		Clock:  func() time.Time { return clock },
	})
	require.NoError(t, err)

	token, err := other.GenerateAccessToken(AccessTokenInput{UserID: "u1"})
	require.NoError(t, err)

	svc := newTestJWTService(t, &clock)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestGenerateAccessTokenRequiresUser(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestJWTService(t, &clock)

	_, err := svc.GenerateAccessToken(AccessTokenInput{})
	require.Error(t, err)
}
