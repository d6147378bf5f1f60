package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newIdentityService(t *testing.T) *JWTService {
	t.Helper()

	svc, err := NewJWTService(JWTConfig{
		Secret:         "handshake-secret",
		Issuer:         "openwave",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	return svc
}

func issueToken(t *testing.T, svc *JWTService, userID string) string {
	t.Helper()

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: userID})
	require.NoError(t, err)
	return token
}

func TestResolveIdentityFromQueryParameter(t *testing.T) {
	svc := newIdentityService(t)
	token := issueToken(t, svc, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/ws/global?token="+token, nil)

	identity := svc.ResolveIdentity(req)
	require.True(t, identity.Authenticated)
	require.Equal(t, "user-1", identity.UserID)
}

func TestResolveIdentityFromBearerHeader(t *testing.T) {
	svc := newIdentityService(t)
	token := issueToken(t, svc, "user-2")

	req := httptest.NewRequest(http.MethodGet, "/ws/global", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	identity := svc.ResolveIdentity(req)
	require.True(t, identity.Authenticated)
	require.Equal(t, "user-2", identity.UserID)
}

func TestResolveIdentityFromCookie(t *testing.T) {
	svc := newIdentityService(t)
	token := issueToken(t, svc, "user-3")

	req := httptest.NewRequest(http.MethodGet, "/ws/global", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})

	identity := svc.ResolveIdentity(req)
	require.True(t, identity.Authenticated)
	require.Equal(t, "user-3", identity.UserID)
}

func TestResolveIdentityQueryWinsOverHeader(t *testing.T) {
	svc := newIdentityService(t)
	queryToken := issueToken(t, svc, "query-user")
	headerToken := issueToken(t, svc, "header-user")

	req := httptest.NewRequest(http.MethodGet, "/ws/global?token="+queryToken, nil)
	req.Header.Set("Authorization", "Bearer "+headerToken)

	identity := svc.ResolveIdentity(req)
	require.True(t, identity.Authenticated)
	require.Equal(t, "query-user", identity.UserID)
}

func TestResolveIdentityInvalidWinnerIsNotRetried(t *testing.T) {
	svc := newIdentityService(t)
	validCookie := issueToken(t, svc, "cookie-user")

	// The query credential wins the source race but fails validation; the
	// valid cookie must not rescue the handshake.
	req := httptest.NewRequest(http.MethodGet, "/ws/global?token=garbage", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: validCookie})

	identity := svc.ResolveIdentity(req)
	require.False(t, identity.Authenticated)
	require.Equal(t, Anonymous, identity)
}

func TestResolveIdentityAbsentCredential(t *testing.T) {
	svc := newIdentityService(t)

	req := httptest.NewRequest(http.MethodGet, "/ws/global", nil)

	identity := svc.ResolveIdentity(req)
	require.False(t, identity.Authenticated)
	require.Empty(t, identity.UserID)
}
