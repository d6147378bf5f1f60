package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/openwave-labs/openwave/internal/models"
	apperrors "github.com/openwave-labs/openwave/pkg/errors"
	"github.com/openwave-labs/openwave/pkg/metrics"
)

// CallService owns the call state machine:
//
//	initiated → ringing → {accepted → ended} | rejected | missed | failed
//
// Transitions are guarded UPDATEs keyed on the current status so that racing
// accept/reject/end requests resolve to exactly one winner.
type CallService struct {
	db      *gorm.DB
	timeNow func() time.Time
}

// NewCallService constructs a CallService.
func NewCallService(db *gorm.DB) (*CallService, error) {
	if db == nil {
		return nil, errors.New("call service: db is required")
	}
	return &CallService{db: db, timeNow: time.Now}, nil
}

var nonTerminalStatuses = []models.CallStatus{
	models.CallInitiated,
	models.CallRinging,
	models.CallAccepted,
}

// InitiateCall creates a ringing call after verifying no other call is in
// flight for the conversation. At most one non-terminal call may exist per
// conversation at any time.
func (s *CallService) InitiateCall(ctx context.Context, conversationID, callerID, receiverID, callType string) (*models.Call, error) {
	ctx = ensureContext(ctx)

	conversationID = strings.TrimSpace(conversationID)
	callerID = strings.TrimSpace(callerID)
	receiverID = strings.TrimSpace(receiverID)
	if conversationID == "" || callerID == "" {
		return nil, errors.New("call service: conversation id and caller id are required")
	}
	if receiverID == "" {
		return nil, apperrors.NewBadRequest("A call requires a receiver")
	}
	if !models.ValidCallType(callType) {
		return nil, apperrors.NewBadRequest("Call type must be audio or video")
	}

	call := models.Call{
		ConversationID: conversationID,
		CallerID:       callerID,
		ReceiverID:     receiverID,
		CallType:       models.CallType(callType),
		Status:         models.CallRinging,
		StartedAt:      s.timeNow().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Call{}).
			Where("conversation_id = ? AND status IN ?", conversationID, nonTerminalStatuses).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrCallInProgress
		}
		return tx.Create(&call).Error
	})
	if err != nil {
		if errors.Is(err, ErrCallInProgress) {
			return nil, ErrCallInProgress
		}
		return nil, fmt.Errorf("call service: initiate call: %w", err)
	}

	metrics.CallTransitions.WithLabelValues(string(models.CallRinging)).Inc()
	return &call, nil
}

// GetCall loads a call by id.
func (s *CallService) GetCall(ctx context.Context, callID string) (*models.Call, error) {
	ctx = ensureContext(ctx)

	var call models.Call
	err := s.db.WithContext(ctx).Take(&call, "id = ?", callID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("call service: load call: %w", err)
	}
	return &call, nil
}

// AcceptCall transitions ringing → accepted and stamps the answer time. Only
// the receiver may accept.
func (s *CallService) AcceptCall(ctx context.Context, callID, userID string) (*models.Call, error) {
	ctx = ensureContext(ctx)

	call, err := s.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != strings.TrimSpace(userID) {
		return nil, ErrNotCallParty
	}

	now := s.timeNow().UTC()
	result := s.db.WithContext(ctx).Model(&models.Call{}).
		Where("id = ? AND status = ?", call.ID, models.CallRinging).
		Updates(map[string]any{
			"status":      models.CallAccepted,
			"answered_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("call service: accept call: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	call.Status = models.CallAccepted
	call.AnsweredAt = &now
	metrics.CallTransitions.WithLabelValues(string(models.CallAccepted)).Inc()
	return call, nil
}

// RejectCall transitions ringing → rejected and stamps the end time. Only the
// receiver may reject.
func (s *CallService) RejectCall(ctx context.Context, callID, userID string) (*models.Call, error) {
	ctx = ensureContext(ctx)

	call, err := s.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != strings.TrimSpace(userID) {
		return nil, ErrNotCallParty
	}

	now := s.timeNow().UTC()
	result := s.db.WithContext(ctx).Model(&models.Call{}).
		Where("id = ? AND status = ?", call.ID, models.CallRinging).
		Updates(map[string]any{
			"status":   models.CallRejected,
			"ended_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("call service: reject call: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	call.Status = models.CallRejected
	call.EndedAt = &now
	metrics.CallTransitions.WithLabelValues(string(models.CallRejected)).Inc()
	return call, nil
}

// EndCall transitions any non-terminal call to ended, stamping the end time
// and computing the duration (zero when the call was never answered). Either
// party may end.
func (s *CallService) EndCall(ctx context.Context, callID, userID string) (*models.Call, error) {
	ctx = ensureContext(ctx)

	call, err := s.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if call.CallerID != userID && call.ReceiverID != userID {
		return nil, ErrNotCallParty
	}

	now := s.timeNow().UTC()
	duration := 0
	if call.AnsweredAt != nil {
		duration = int(now.Sub(*call.AnsweredAt).Seconds())
		if duration < 0 {
			duration = 0
		}
	}

	result := s.db.WithContext(ctx).Model(&models.Call{}).
		Where("id = ? AND status IN ?", call.ID, nonTerminalStatuses).
		Updates(map[string]any{
			"status":   models.CallEnded,
			"ended_at": now,
			"duration": duration,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("call service: end call: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	call.Status = models.CallEnded
	call.EndedAt = &now
	call.Duration = duration
	metrics.CallTransitions.WithLabelValues(string(models.CallEnded)).Inc()
	return call, nil
}

// MarkMissedCalls sweeps calls that have been ringing longer than the ring
// timeout into the missed state. Invoked by the background sweeper; returns
// the number of calls transitioned.
func (s *CallService) MarkMissedCalls(ctx context.Context, ringTimeout time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	if ringTimeout <= 0 {
		return 0, errors.New("call service: ring timeout must be positive")
	}

	now := s.timeNow().UTC()
	cutoff := now.Add(-ringTimeout)

	result := s.db.WithContext(ctx).Model(&models.Call{}).
		Where("status = ? AND started_at < ?", models.CallRinging, cutoff).
		Updates(map[string]any{
			"status":   models.CallMissed,
			"ended_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("call service: mark missed: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.CallTransitions.WithLabelValues(string(models.CallMissed)).Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}
