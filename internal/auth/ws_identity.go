package auth

import (
	"net/http"
	"strings"
)

// AccessTokenCookie names the cookie consulted when neither the query
// parameter nor the Authorization header carries a credential.
const AccessTokenCookie = "access_token"

// Identity is the result of resolving a connection handshake. A failed or
// absent credential yields the anonymous identity, never an error; callers
// decide whether anonymous connections are admitted.
type Identity struct {
	UserID        string
	Authenticated bool
}

// Anonymous is the identity assigned to handshakes without a valid credential.
var Anonymous = Identity{}

// ResolveIdentity extracts a bearer credential from the handshake request and
// validates it. Sources are tried in order (query parameter `token`, then the
// `Authorization: Bearer` header, then the access-token cookie) and the first
// non-empty value wins; later sources are not consulted even when the winning
// credential turns out to be invalid.
func (s *JWTService) ResolveIdentity(r *http.Request) Identity {
	token := extractBearerToken(r)
	if token == "" {
		return Anonymous
	}

	claims, err := s.ValidateAccessToken(token)
	if err != nil {
		return Anonymous
	}

	return Identity{UserID: claims.UserID, Authenticated: true}
}

func extractBearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	authz := r.Header.Get("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}

	return ""
}
