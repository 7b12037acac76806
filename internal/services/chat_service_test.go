package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/farmers-market-backend/internal/config"
	"github.com/javajoker/farmers-market-backend/internal/realtime"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

func chatService(t *testing.T) (*ChatService, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	cfg := &config.Config{}
	cfg.Email.FromName = "Market"
	return NewChatService(db, realtime.NewHub(), NewEmailService(cfg)), mock
}

func expectConversation(mock sqlmock.Sqlmock, id, shopperID, vendorID uuid.UUID) {
	mock.ExpectQuery(`SELECT \* FROM "conversations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "shopper_id", "vendor_user_id", "submission_id"}).
			AddRow(id.String(), shopperID.String(), vendorID.String(), uuid.New().String()))
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	svc, mock := chatService(t)
	convID := uuid.New()

	expectConversation(mock, convID, uuid.New(), uuid.New())

	_, err := svc.SendMessage(context.Background(), uuid.New(), convID, &SendMessageRequest{Body: "hello"})
	assert.True(t, errors.Is(err, utils.ErrForbidden))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMessageRejectsBlank(t *testing.T) {
	svc, mock := chatService(t)

	_, err := svc.SendMessage(context.Background(), uuid.New(), uuid.New(), &SendMessageRequest{Body: "   "})
	require.Error(t, err)
	assert.NotEmpty(t, utils.GetValidationErrors(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMessageStoresAndUpdatesConversation(t *testing.T) {
	svc, mock := chatService(t)
	convID, shopperID, vendorID := uuid.New(), uuid.New(), uuid.New()

	expectConversation(mock, convID, shopperID, vendorID)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "messages"`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))
	mock.ExpectExec(`UPDATE "conversations" SET "last_message_at"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name"}).
			AddRow(shopperID.String(), "shopper@example.com", "Sam").
			AddRow(vendorID.String(), "vendor@example.com", "Vic"))

	msg, err := svc.SendMessage(context.Background(), shopperID, convID, &SendMessageRequest{Body: "  Do you have eggs?  "})
	require.NoError(t, err)
	assert.Equal(t, "Do you have eggs?", msg.Body)
	assert.Equal(t, shopperID, msg.SenderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartConversationWithSelf(t *testing.T) {
	svc, mock := chatService(t)
	vendorID, subID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "submissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "market_id", "status"}).
			AddRow(subID.String(), vendorID.String(), uuid.New().String(), "approved"))

	_, err := svc.StartConversation(context.Background(), vendorID, &StartConversationRequest{SubmissionID: subID})
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartConversationReusesExisting(t *testing.T) {
	svc, mock := chatService(t)
	shopperID, vendorID, subID, convID := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "submissions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "market_id", "status"}).
			AddRow(subID.String(), vendorID.String(), uuid.New().String(), "approved"))
	expectConversation(mock, convID, shopperID, vendorID)

	conversation, err := svc.StartConversation(context.Background(), shopperID, &StartConversationRequest{SubmissionID: subID})
	require.NoError(t, err)
	assert.Equal(t, convID, conversation.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationTopic(t *testing.T) {
	id := uuid.MustParse("7d1b1c4e-4a52-4c8b-a3c2-6b8f0f1f2a10")
	assert.Equal(t, "conversation:7d1b1c4e-4a52-4c8b-a3c2-6b8f0f1f2a10", ConversationTopic(id))
}
