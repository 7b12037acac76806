// internal/services/chat_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/farmers-market-backend/internal/models"
	"github.com/javajoker/farmers-market-backend/internal/realtime"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

const (
	EventMessageCreated = "message.created"
	EventMessagesRead   = "messages.read"
)

type ChatService struct {
	db    *gorm.DB
	hub   *realtime.Hub
	email *EmailService
}

type StartConversationRequest struct {
	SubmissionID uuid.UUID `json:"submission_id" validate:"required"`
	Subject      string    `json:"subject" validate:"max=255"`
	Message      string    `json:"message" validate:"max=4000"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required,min=1,max=4000"`
}

func NewChatService(db *gorm.DB, hub *realtime.Hub, email *EmailService) *ChatService {
	return &ChatService{db: db, hub: hub, email: email}
}

// ConversationTopic is the realtime topic carrying a conversation's messages.
func ConversationTopic(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

// StartConversation opens (or reuses) the thread between a shopper and a vendor.
func (s *ChatService) StartConversation(ctx context.Context, shopperID uuid.UUID, req *StartConversationRequest) (*models.Conversation, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var submission models.Submission
	if err := s.db.WithContext(ctx).First(&submission, "id = ?", req.SubmissionID).Error; err != nil {
		return nil, notFoundOr(err, "vendor")
	}
	if submission.Status != models.SubmissionStatusApproved {
		return nil, fmt.Errorf("%w: vendor is not active", utils.ErrInvalidInput)
	}
	if submission.UserID == shopperID {
		return nil, fmt.Errorf("%w: you cannot message yourself", utils.ErrInvalidInput)
	}

	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Where("shopper_id = ? AND submission_id = ?", shopperID, submission.ID).
		First(&conversation).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		marketID := submission.MarketID
		conversation = models.Conversation{
			MarketID:     &marketID,
			ShopperID:    shopperID,
			SubmissionID: submission.ID,
			VendorUserID: submission.UserID,
			Subject:      req.Subject,
		}
		if err := s.db.WithContext(ctx).Omit("Submission", "Shopper").Create(&conversation).Error; err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("database error: %w", err)
	}

	if strings.TrimSpace(req.Message) != "" {
		if _, err := s.SendMessage(ctx, shopperID, conversation.ID, &SendMessageRequest{Body: req.Message}); err != nil {
			return nil, err
		}
	}
	conversation.Submission = submission
	return &conversation, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Conversation, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("shopper_id = ? OR vendor_user_id = ?", userID, userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	var conversations []models.Conversation
	if err := utils.ApplyPagination(query, params).
		Preload("Submission").
		Order("last_message_at DESC NULLS LAST, created_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch conversations: %w", err)
	}
	return conversations, total, nil
}

// GetConversation loads a conversation visible to userID.
func (s *ChatService) GetConversation(ctx context.Context, userID uuid.UUID, role models.UserRole, id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := s.db.WithContext(ctx).Preload("Submission").First(&conversation, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	if role != models.UserRoleAdmin && !conversation.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: you are not part of this conversation", utils.ErrForbidden)
	}
	return &conversation, nil
}

// ListMessages returns messages oldest first.
func (s *ChatService) ListMessages(ctx context.Context, userID uuid.UUID, role models.UserRole, conversationID uuid.UUID, params utils.PaginationParams) ([]models.Message, int64, error) {
	if _, err := s.GetConversation(ctx, userID, role, conversationID); err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.Message{}).Where("conversation_id = ?", conversationID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var messages []models.Message
	if err := utils.ApplyPagination(query.Order("created_at ASC"), params).Find(&messages).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, total, nil
}

// SendMessage stores a message and broadcasts it to the conversation topic.
func (s *ChatService) SendMessage(ctx context.Context, senderID, conversationID uuid.UUID, req *SendMessageRequest) (*models.Message, error) {
	req.Body = strings.TrimSpace(req.Body)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var conversation models.Conversation
	if err := s.db.WithContext(ctx).First(&conversation, "id = ?", conversationID).Error; err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	if !conversation.HasParticipant(senderID) {
		return nil, fmt.Errorf("%w: you are not part of this conversation", utils.ErrForbidden)
	}

	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           req.Body,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conversationID).
			Update("last_message_at", message.CreatedAt).Error
	})
	if err != nil {
		return nil, err
	}

	s.hub.Publish(ConversationTopic(conversationID), EventMessageCreated, message)
	s.notifyRecipient(ctx, &conversation, senderID, message)
	return message, nil
}

func (s *ChatService) notifyRecipient(ctx context.Context, conversation *models.Conversation, senderID uuid.UUID, message *models.Message) {
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", []uuid.UUID{senderID, conversation.Counterpart(senderID)}).
		Find(&users).Error; err != nil {
		return
	}

	var sender, recipient *models.User
	for i := range users {
		if users[i].ID == senderID {
			sender = &users[i]
		} else {
			recipient = &users[i]
		}
	}
	if sender == nil || recipient == nil {
		return
	}
	s.email.SendNewMessageNotice(recipient.Email, displayName(sender), conversation, message.Body)
}

// MarkRead marks the counterpart's messages read and returns how many changed.
func (s *ChatService) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) (int64, error) {
	if _, err := s.GetConversation(ctx, userID, "", conversationID); err != nil {
		return 0, err
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversationID, userID).
		Update("read_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		s.hub.Publish(ConversationTopic(conversationID), EventMessagesRead, map[string]interface{}{
			"reader_id": userID,
			"read_at":   now,
		})
	}
	return res.RowsAffected, nil
}

func (s *ChatService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.shopper_id = ? OR conversations.vendor_user_id = ?) AND messages.sender_id <> ? AND messages.read_at IS NULL",
			userID, userID, userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
