package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/middleware"
	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/util"
	"github.com/tabledrop/backend/internal/websocket"
)

// StartConversation opens (or returns) the conversation between the
// caller and a listing's owner. One conversation exists per
// (listing, requester) pair.
// POST /api/v1/listings/:id/conversations
func (h *Handlers) StartConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var listing models.Listing
	if err := database.DB.First(&listing, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "listing")
		return
	}
	if listing.OwnerID == userID {
		util.RespondBadRequest(c, "you cannot message yourself about your own listing")
		return
	}

	conversation := models.Conversation{
		ListingID:   listing.ID,
		OwnerID:     listing.OwnerID,
		RequesterID: userID,
	}

	// FirstOrCreate rides the unique (listing, requester) index: a repeat
	// request returns the existing conversation
	if err := database.DB.
		Where("listing_id = ? AND requester_id = ?", listing.ID, userID).
		FirstOrCreate(&conversation).Error; err != nil {
		logger.ErrorWithFields("Failed to start conversation", err)
		util.RespondInternalError(c, "Failed to start conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

// GetConversations lists the caller's conversations, most recently
// active first
// GET /api/v1/conversations
func (h *Handlers) GetConversations(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit := util.ParseInt(c.DefaultQuery("limit", "20"), 20)
	if limit > 100 {
		limit = 100
	}
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)

	var conversations []models.Conversation
	if err := database.DB.
		Preload("Listing").
		Where("owner_id = ? OR requester_id = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Limit(limit).
		Offset(offset).
		Find(&conversations).Error; err != nil {
		util.RespondInternalError(c, "Failed to get conversations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// GetMessages returns a conversation's messages, newest first
// GET /api/v1/conversations/:id/messages
func (h *Handlers) GetMessages(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	conversation, ok := h.loadConversationForParticipant(c, userID)
	if !ok {
		return
	}

	limit := util.ParseInt(c.DefaultQuery("limit", "50"), 50)
	if limit > 200 {
		limit = 200
	}
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)

	var messages []models.ChatMessage
	if err := database.DB.
		Where("conversation_id = ?", conversation.ID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		util.RespondInternalError(c, "Failed to get messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// SendMessage posts a message into a conversation
// POST /api/v1/conversations/:id/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	conversation, ok := h.loadConversationForParticipant(c, user.ID)
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body" binding:"required,min=1,max=4000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	message := models.ChatMessage{
		ConversationID: conversation.ID,
		SenderID:       user.ID,
		Body:           req.Body,
	}
	if err := database.DB.Create(&message).Error; err != nil {
		logger.ErrorWithFields("Failed to send message", err)
		util.RespondInternalError(c, "Failed to send message")
		return
	}

	now := time.Now()
	if err := database.DB.Model(conversation).Update("last_message_at", now).Error; err != nil {
		logger.WarnWithFields("Failed to bump conversation activity", err)
	}

	middleware.RecordChatMessageSent("http")

	// Deliver through the change feed when wired; fall back to a direct
	// WebSocket push so single-node deployments without Redis still chat
	if h.publisher != nil {
		if err := h.publisher.PublishInsert(c.Request.Context(), "chat_messages", message.ChangeRecord()); err != nil {
			logger.WarnWithFields("Failed to publish chat message", err)
		}
	} else {
		recipientID := conversation.Recipient(user.ID)
		h.notifyWS(func(ws *websocket.Handler) {
			ws.NotifyChatMessage(recipientID, &websocket.ChatMessagePayload{
				MessageID:      message.ID,
				ConversationID: message.ConversationID,
				SenderID:       user.ID,
				SenderName:     user.DisplayName,
				Body:           message.Body,
				CreatedAt:      message.CreatedAt.UnixMilli(),
			})
		})
	}

	c.JSON(http.StatusCreated, gin.H{"message": message})
}

// MarkConversationRead acknowledges all of the other participant's
// messages in a conversation
// PUT /api/v1/conversations/:id/read
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	conversation, ok := h.loadConversationForParticipant(c, userID)
	if !ok {
		return
	}

	now := time.Now()
	res := database.DB.Model(&models.ChatMessage{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conversation.ID, userID).
		Update("read_at", now)
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to mark conversation read")
		return
	}

	if res.RowsAffected > 0 {
		senderID := conversation.Recipient(userID)
		h.notifyWS(func(ws *websocket.Handler) {
			ws.NotifyMessageRead(senderID, &websocket.MessageReadPayload{
				ConversationID: conversation.ID,
				ReaderID:       userID,
				ReadAt:         now.UnixMilli(),
			})
		})
	}

	c.JSON(http.StatusOK, gin.H{"read_count": res.RowsAffected})
}

// loadConversationForParticipant fetches the conversation from the :id
// param and enforces membership. Non-participants get a 404, not a 403,
// so conversation IDs leak nothing.
func (h *Handlers) loadConversationForParticipant(c *gin.Context, userID string) (*models.Conversation, bool) {
	var conversation models.Conversation
	if err := database.DB.First(&conversation, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "conversation")
		return nil, false
	}
	if !conversation.HasParticipant(userID) {
		util.RespondNotFound(c, "conversation")
		return nil, false
	}
	return &conversation, true
}
