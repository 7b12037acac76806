// internal/handlers/chat.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/realtime"
	"github.com/javajoker/farmers-market-backend/internal/services"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type ChatHandler struct {
	chatService *services.ChatService
	hub         *realtime.Hub
	upgrader    websocket.Upgrader
}

func NewChatHandler(chatService *services.ChatService, hub *realtime.Hub, allowedOrigins []string) *ChatHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &ChatHandler{
		chatService: chatService,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// POST /conversations
func (h *ChatHandler) StartConversation(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.StartConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	conversation, err := h.chatService.StartConversation(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, conversation)
}

// GET /conversations
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	conversations, total, err := h.chatService.ListConversations(c.Request.Context(), userID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, conversations, total, params)
}

// GET /conversations/unread
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.chatService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"unread": count})
}

// GET /conversations/:id
func (h *ChatHandler) GetConversation(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	conversation, err := h.chatService.GetConversation(c.Request.Context(), userID, role, conversationID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, conversation)
}

// GET /conversations/:id/messages
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	params := utils.GetSizedPaginationParams(c, utils.MessagePageSize, utils.MaxMessagePageSize)

	messages, total, err := h.chatService.ListMessages(c.Request.Context(), userID, role, conversationID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, messages, total, params)
}

// POST /conversations/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), userID, conversationID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":      i18n.T(lang, i18n.KeyMessageSent),
		"chat_message": message,
	})
}

// POST /conversations/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	updated, err := h.chatService.MarkRead(c.Request.Context(), userID, conversationID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"updated": updated})
}

// GET /conversations/:id/ws
func (h *ChatHandler) Subscribe(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.chatService.GetConversation(c.Request.Context(), userID, role, conversationID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).WithField("conversation_id", conversationID).Warn("WebSocket upgrade failed")
		return
	}

	h.hub.Subscribe(conn, services.ConversationTopic(conversationID)).Run()
}
