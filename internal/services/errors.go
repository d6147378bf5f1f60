package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/openwave-labs/openwave/pkg/errors"
)

// Domain errors surfaced by the chat and call services. Realtime routers
// translate these into error events; REST handlers render them directly.
var (
	ErrNotParticipant = apperrors.New("NOT_PARTICIPANT", "You are not a participant in this conversation", http.StatusForbidden)
	ErrOwnMessageRead = apperrors.New("OWN_MESSAGE_READ", "You cannot mark your own message as read", http.StatusBadRequest)
	ErrEmptyContent   = apperrors.New("EMPTY_CONTENT", "Message content is required", http.StatusBadRequest)

	ErrCallNotFound      = apperrors.New("CALL_NOT_FOUND", "Call not found", http.StatusNotFound)
	ErrCallInProgress    = apperrors.New("CALL_IN_PROGRESS", "A call is already in progress for this conversation", http.StatusConflict)
	ErrInvalidTransition = apperrors.New("INVALID_CALL_STATE", "The call is not in a state that allows this action", http.StatusConflict)
	ErrNotCallParty      = apperrors.New("NOT_CALL_PARTY", "You are not a party to this call", http.StatusForbidden)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}
