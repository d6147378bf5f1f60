package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openwave-labs/openwave/internal/database/testutil"
	"github.com/openwave-labs/openwave/internal/models"
)

func newChatEnv(t *testing.T) (*gorm.DB, *ChatService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewChatService(db)
	require.NoError(t, err)
	return db, svc
}

func mustCreateUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	suffix := uuid.NewString()
	user := &models.User{
		Username: "user-" + suffix,
		Email:    suffix + "@example.com",
		Password: "not-a-real-hash",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func mustCreateConversation(t *testing.T, svc *ChatService, creator *models.User, others ...*models.User) *models.Conversation {
	t.Helper()

	ids := make([]string, 0, len(others))
	for _, other := range others {
		ids = append(ids, other.ID)
	}
	conversation, err := svc.CreateConversation(context.Background(), creator.ID, ids)
	require.NoError(t, err)
	return conversation
}

func TestCreateConversationDeduplicatesTwoParty(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)
	bob := mustCreateUser(t, db)

	first := mustCreateConversation(t, svc, alice, bob)
	second := mustCreateConversation(t, svc, bob, alice)

	require.Equal(t, first.ID, second.ID)
}

func TestCreateConversationRequiresTwoParticipants(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)

	_, err := svc.CreateConversation(context.Background(), alice.ID, nil)
	require.Error(t, err)
}

func TestCreateConversationUnknownParticipant(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)

	_, err := svc.CreateConversation(context.Background(), alice.ID, []string{uuid.NewString()})
	require.Error(t, err)
}

func TestIsParticipant(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)
	bob := mustCreateUser(t, db)
	mallory := mustCreateUser(t, db)

	conversation := mustCreateConversation(t, svc, alice, bob)

	ok, err := svc.IsParticipant(context.Background(), conversation.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.IsParticipant(context.Background(), conversation.ID, mallory.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateMessageUpdatesLastMessage(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)
	bob := mustCreateUser(t, db)
	conversation := mustCreateConversation(t, svc, alice, bob)

	message, err := svc.CreateMessage(context.Background(), conversation.ID, alice.ID, "hello bob")
	require.NoError(t, err)
	require.Equal(t, "hello bob", message.Content)
	require.False(t, message.IsRead)
	require.NotNil(t, message.Sender)
	require.Equal(t, alice.ID, message.Sender.ID)

	reloaded, err := svc.GetConversation(context.Background(), conversation.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastMessageID)
	require.Equal(t, message.ID, *reloaded.LastMessageID)
}

func TestCreateMessageEmptyContent(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)
	bob := mustCreateUser(t, db)
	conversation := mustCreateConversation(t, svc, alice, bob)

	_, err := svc.CreateMessage(context.Background(), conversation.ID, alice.ID, "   ")
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestMarkMessageReadIsIdempotent(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)
	bob := mustCreateUser(t, db)
	conversation := mustCreateConversation(t, svc, alice, bob)

	message, err := svc.CreateMessage(context.Background(), conversation.ID, alice.ID, "read me")
	require.NoError(t, err)

	first, changed, err := svc.MarkMessageRead(context.Background(), message.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)

	second, changed, err := svc.MarkMessageRead(context.Background(), message.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, changed)
	require.True(t, second.IsRead)
	require.NotNil(t, second.ReadAt)
	require.WithinDuration(t, *first.ReadAt, *second.ReadAt, time.Second)
}

func TestMarkMessageReadOwnMessage(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)
	bob := mustCreateUser(t, db)
	conversation := mustCreateConversation(t, svc, alice, bob)

	message, err := svc.CreateMessage(context.Background(), conversation.ID, alice.ID, "mine")
	require.NoError(t, err)

	_, changed, err := svc.MarkMessageRead(context.Background(), message.ID, alice.ID)
	require.ErrorIs(t, err, ErrOwnMessageRead)
	require.False(t, changed)
}

func TestMarkMessageReadUnknownMessage(t *testing.T) {
	db, svc := newChatEnv(t)
	bob := mustCreateUser(t, db)

	_, _, err := svc.MarkMessageRead(context.Background(), uuid.NewString(), bob.ID)
	require.Error(t, err)
}

func TestListMessagesChronologicalWithPagination(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)
	bob := mustCreateUser(t, db)
	conversation := mustCreateConversation(t, svc, alice, bob)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	contents := []string{"first", "second", "third"}
	for i, content := range contents {
		message := &models.Message{
			ConversationID: conversation.ID,
			SenderID:       alice.ID,
			Content:        content,
		}
		require.NoError(t, db.Create(message).Error)
		require.NoError(t, db.Model(message).Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	all, err := svc.ListMessages(context.Background(), conversation.ID, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "first", all[0].Content)
	require.Equal(t, "third", all[2].Content)

	older, err := svc.ListMessages(context.Background(), conversation.ID, 10, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, older, 2)
	require.Equal(t, "first", older[0].Content)
	require.Equal(t, "second", older[1].Content)
}

func TestCreateGlobalMessage(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)

	message, err := svc.CreateGlobalMessage(context.Background(), alice.ID, "hello everyone")
	require.NoError(t, err)
	require.Equal(t, "hello everyone", message.Content)
	require.NotNil(t, message.Sender)
	require.Equal(t, alice.ID, message.Sender.ID)

	_, err = svc.CreateGlobalMessage(context.Background(), alice.ID, "")
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestListGlobalMessagesChronological(t *testing.T) {
	db, svc := newChatEnv(t)
	alice := mustCreateUser(t, db)

	first, err := svc.CreateGlobalMessage(context.Background(), alice.ID, "global-"+uuid.NewString())
	require.NoError(t, err)
	second, err := svc.CreateGlobalMessage(context.Background(), alice.ID, "global-"+uuid.NewString())
	require.NoError(t, err)

	rows, err := svc.ListGlobalMessages(context.Background(), 200)
	require.NoError(t, err)

	firstIdx, secondIdx := -1, -1
	for i, row := range rows {
		switch row.ID {
		case first.ID:
			firstIdx = i
		case second.ID:
			secondIdx = i
		}
	}
	require.GreaterOrEqual(t, firstIdx, 0)
	require.GreaterOrEqual(t, secondIdx, 0)
	require.Less(t, firstIdx, secondIdx)
}
