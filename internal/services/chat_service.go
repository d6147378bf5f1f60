package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/openwave-labs/openwave/internal/models"
	apperrors "github.com/openwave-labs/openwave/pkg/errors"
)

const maxMessageLength = 4000

// ChatService owns conversation and message persistence: participant checks,
// message creation with last-message maintenance, idempotent read receipts,
// and the history queries reconnecting clients reconcile against.
type ChatService struct {
	db      *gorm.DB
	timeNow func() time.Time
}

// NewChatService constructs a ChatService once the database dependency is supplied.
func NewChatService(db *gorm.DB) (*ChatService, error) {
	if db == nil {
		return nil, errors.New("chat service: db is required")
	}
	return &ChatService{db: db, timeNow: time.Now}, nil
}

// IsParticipant reports whether the user belongs to the conversation. The
// check always hits the database; admission decisions must never rely on a
// cached result because membership can change between requests.
func (s *ChatService) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	ctx = ensureContext(ctx)
	conversationID = strings.TrimSpace(conversationID)
	userID = strings.TrimSpace(userID)
	if conversationID == "" || userID == "" {
		return false, nil
	}

	var count int64
	err := s.db.WithContext(ctx).
		Table("conversation_participants").
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("chat service: participant check: %w", err)
	}
	return count > 0, nil
}

// ParticipantIDs returns the user IDs belonging to the conversation.
func (s *ChatService) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	ctx = ensureContext(ctx)

	var ids []string
	err := s.db.WithContext(ctx).
		Table("conversation_participants").
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("chat service: list participants: %w", err)
	}
	return ids, nil
}

// GetConversation loads a conversation with its participants.
func (s *ChatService) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	ctx = ensureContext(ctx)

	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Participants").
		Take(&conversation, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("Conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("chat service: load conversation: %w", err)
	}
	return &conversation, nil
}

// CreateConversation creates a conversation between the creator and the
// supplied participants. Two-party conversations are unique; a second create
// for the same pair returns the existing conversation.
func (s *ChatService) CreateConversation(ctx context.Context, creatorID string, participantIDs []string) (*models.Conversation, error) {
	ctx = ensureContext(ctx)
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, errors.New("chat service: creator id is required")
	}

	memberIDs := uniqueIDs(append([]string{creatorID}, participantIDs...))
	if len(memberIDs) < 2 {
		return nil, apperrors.NewBadRequest("A conversation requires at least two participants")
	}

	if len(memberIDs) == 2 {
		if existing, err := s.findTwoPartyConversation(ctx, memberIDs[0], memberIDs[1]); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	var members []models.User
	if err := s.db.WithContext(ctx).Find(&members, "id IN ?", memberIDs).Error; err != nil {
		return nil, fmt.Errorf("chat service: load participants: %w", err)
	}
	if len(members) != len(memberIDs) {
		return nil, apperrors.NewNotFound("One or more participants do not exist")
	}

	conversation := models.Conversation{Participants: members}
	if err := s.db.WithContext(ctx).Create(&conversation).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict
		}
		return nil, fmt.Errorf("chat service: create conversation: %w", err)
	}

	return &conversation, nil
}

// ListConversations returns the conversations the user belongs to, most
// recently updated first, with participants and last message preloaded.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("chat service: user id is required")
	}

	var rows []models.Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Preload("Participants").
		Preload("LastMessage").
		Order("conversations.updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("chat service: list conversations: %w", err)
	}
	return rows, nil
}

// CreateMessage validates and persists a message, updating the conversation's
// last-message pointer in the same transaction.
func (s *ChatService) CreateMessage(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	ctx = ensureContext(ctx)

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, apperrors.NewBadRequest("Message content exceeds maximum length")
	}

	message := models.Message{
		ConversationID: strings.TrimSpace(conversationID),
		SenderID:       strings.TrimSpace(senderID),
		Content:        content,
	}
	if message.ConversationID == "" || message.SenderID == "" {
		return nil, errors.New("chat service: conversation id and sender id are required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			Updates(map[string]any{
				"last_message_id": message.ID,
				"updated_at":      s.timeNow(),
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("chat service: create message: %w", err)
	}

	if err := s.db.WithContext(ctx).Preload("Sender").Take(&message, "id = ?", message.ID).Error; err != nil {
		return nil, fmt.Errorf("chat service: reload message: %w", err)
	}

	return &message, nil
}

// CreateGlobalMessage persists a message in the global room.
func (s *ChatService) CreateGlobalMessage(ctx context.Context, senderID, content string) (*models.GlobalMessage, error) {
	ctx = ensureContext(ctx)

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, apperrors.NewBadRequest("Message content exceeds maximum length")
	}

	message := models.GlobalMessage{
		SenderID: strings.TrimSpace(senderID),
		Content:  content,
	}
	if message.SenderID == "" {
		return nil, errors.New("chat service: sender id is required")
	}

	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return nil, fmt.Errorf("chat service: create global message: %w", err)
	}
	if err := s.db.WithContext(ctx).Preload("Sender").Take(&message, "id = ?", message.ID).Error; err != nil {
		return nil, fmt.Errorf("chat service: reload global message: %w", err)
	}

	return &message, nil
}

// MarkMessageRead flips the read flag exactly once. The boolean result
// reports whether this call changed state; marking an already-read message is
// a no-op, not an error. A sender can never mark their own message.
func (s *ChatService) MarkMessageRead(ctx context.Context, messageID, readerID string) (*models.Message, bool, error) {
	ctx = ensureContext(ctx)

	var message models.Message
	err := s.db.WithContext(ctx).Take(&message, "id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperrors.NewNotFound("Message not found")
	}
	if err != nil {
		return nil, false, fmt.Errorf("chat service: load message: %w", err)
	}

	if message.SenderID == strings.TrimSpace(readerID) {
		return nil, false, ErrOwnMessageRead
	}

	if message.IsRead {
		return &message, false, nil
	}

	now := s.timeNow().UTC()
	// Guarded update so concurrent readers flip the flag exactly once.
	result := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_read = ?", message.ID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		})
	if result.Error != nil {
		return nil, false, fmt.Errorf("chat service: mark read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race; reload so callers see the original read timestamp.
		if err := s.db.WithContext(ctx).Take(&message, "id = ?", message.ID).Error; err != nil {
			return nil, false, fmt.Errorf("chat service: reload message: %w", err)
		}
		return &message, false, nil
	}

	message.IsRead = true
	message.ReadAt = &now
	return &message, true, nil
}

// ListMessages returns persisted messages for the conversation ordered
// chronologically, newest page first when paginating backwards with before.
func (s *ChatService) ListMessages(ctx context.Context, conversationID string, limit int, before time.Time) ([]models.Message, error) {
	ctx = ensureContext(ctx)
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("chat service: conversation id is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Preload("Sender").
		Order("created_at DESC").
		Limit(limit)

	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var rows []models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("chat service: list messages: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	return rows, nil
}

// ListGlobalMessages returns the most recent global-room messages in
// chronological order.
func (s *ChatService) ListGlobalMessages(ctx context.Context, limit int) ([]models.GlobalMessage, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows []models.GlobalMessage
	err := s.db.WithContext(ctx).
		Model(&models.GlobalMessage{}).
		Preload("Sender").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("chat service: list global messages: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	return rows, nil
}

func (s *ChatService) findTwoPartyConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Table("conversation_participants").
		Select("conversation_id").
		Where("user_id IN ?", []string{a, b}).
		Group("conversation_id").
		Having("COUNT(DISTINCT user_id) = 2").
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("chat service: find conversation: %w", err)
	}

	for _, id := range ids {
		var total int64
		if err := s.db.WithContext(ctx).
			Table("conversation_participants").
			Where("conversation_id = ?", id).
			Count(&total).Error; err != nil {
			return nil, fmt.Errorf("chat service: find conversation: %w", err)
		}
		if total == 2 {
			return s.GetConversation(ctx, id)
		}
	}
	return nil, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
