package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openwave-labs/openwave/internal/cache"
)

// DefaultPresenceTTL is how long a presence marker survives without a
// heartbeat. The hub's ping cycle refreshes it well inside this window.
const DefaultPresenceTTL = 90 * time.Second

// PresenceService records which users currently hold at least one realtime
// connection. Backed by the shared cache store so a Redis deployment shares
// presence across restarts.
type PresenceService struct {
	store cache.Store
	ttl   time.Duration
}

// NewPresenceService constructs a PresenceService.
func NewPresenceService(store cache.Store, ttl time.Duration) (*PresenceService, error) {
	if store == nil {
		return nil, errors.New("presence service: cache store is required")
	}
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &PresenceService{store: store, ttl: ttl}, nil
}

// SetOnline marks the user as online until the TTL lapses.
func (s *PresenceService) SetOnline(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	return s.store.Set(ctx, presenceKey(userID), []byte("1"), s.ttl)
}

// Heartbeat refreshes the online marker; called on every pong from any of the
// user's connections.
func (s *PresenceService) Heartbeat(ctx context.Context, userID string) error {
	return s.SetOnline(ctx, userID)
}

// SetOffline clears the online marker. Called when the user's last connection
// is dismissed; a marker for a user with other live connections is simply
// re-established by the next heartbeat.
func (s *PresenceService) SetOffline(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	return s.store.Delete(ctx, presenceKey(userID))
}

// IsOnline reports whether the user currently holds a live presence marker.
func (s *PresenceService) IsOnline(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	_, ok, err := s.store.Get(ctx, presenceKey(userID))
	if err != nil {
		return false, err
	}
	return ok, nil
}

func presenceKey(userID string) string {
	return "presence:user:" + userID
}
