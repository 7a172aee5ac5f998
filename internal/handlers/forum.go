package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/util"
	"github.com/tabledrop/backend/internal/websocket"
	"gorm.io/gorm"
)

// CreateThread starts a new forum discussion
// POST /api/v1/forum/threads
func (h *Handlers) CreateThread(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Title    string `json:"title" binding:"required,min=3,max=200"`
		Body     string `json:"body" binding:"required,min=1,max=10000"`
		Category string `json:"category" binding:"max=50"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if req.Category == "" {
		req.Category = "general"
	}

	thread := models.ForumThread{
		AuthorID: userID,
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
	}
	if err := database.DB.Create(&thread).Error; err != nil {
		logger.ErrorWithFields("Failed to create thread", err)
		util.RespondInternalError(c, "Failed to create thread")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"thread": thread})
}

// GetThreads lists forum threads, most recently active first
// GET /api/v1/forum/threads?category=..&limit=..&offset=..
func (h *Handlers) GetThreads(c *gin.Context) {
	limit := util.ParseInt(c.DefaultQuery("limit", "20"), 20)
	if limit > 100 {
		limit = 100
	}
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)

	query := database.DB.
		Preload("Author").
		Where("is_hidden = ?", false).
		Order("last_reply_at DESC NULLS LAST, created_at DESC").
		Limit(limit).
		Offset(offset)

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var threads []models.ForumThread
	if err := query.Find(&threads).Error; err != nil {
		util.RespondInternalError(c, "Failed to get threads")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"threads": threads,
		"count":   len(threads),
	})
}

// GetThread returns a single thread
// GET /api/v1/forum/threads/:id
func (h *Handlers) GetThread(c *gin.Context) {
	var thread models.ForumThread
	if err := database.DB.Preload("Author").First(&thread, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "thread")
		return
	}
	if thread.IsHidden {
		util.RespondNotFound(c, "thread")
		return
	}

	c.JSON(http.StatusOK, gin.H{"thread": thread})
}

// GetReplies returns a thread's replies, oldest first
// GET /api/v1/forum/threads/:id/replies
func (h *Handlers) GetReplies(c *gin.Context) {
	threadID := c.Param("id")

	var thread models.ForumThread
	if err := database.DB.First(&thread, "id = ?", threadID).Error; err != nil || thread.IsHidden {
		util.RespondNotFound(c, "thread")
		return
	}

	limit := util.ParseInt(c.DefaultQuery("limit", "50"), 50)
	if limit > 200 {
		limit = 200
	}
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)

	var replies []models.ForumReply
	if err := database.DB.
		Preload("Author").
		Where("thread_id = ? AND is_hidden = ?", threadID, false).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&replies).Error; err != nil {
		util.RespondInternalError(c, "Failed to get replies")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"replies": replies,
		"count":   len(replies),
	})
}

// CreateReply posts a reply into a thread
// POST /api/v1/forum/threads/:id/replies
func (h *Handlers) CreateReply(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var thread models.ForumThread
	if err := database.DB.First(&thread, "id = ?", c.Param("id")).Error; err != nil || thread.IsHidden {
		util.RespondNotFound(c, "thread")
		return
	}
	if thread.IsLocked {
		util.RespondForbidden(c, "thread is locked")
		return
	}

	var req struct {
		Body string `json:"body" binding:"required,min=1,max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	reply := models.ForumReply{
		ThreadID: thread.ID,
		AuthorID: userID,
		Body:     req.Body,
	}
	if err := database.DB.Create(&reply).Error; err != nil {
		logger.ErrorWithFields("Failed to create reply", err)
		util.RespondInternalError(c, "Failed to create reply")
		return
	}

	now := time.Now()
	if err := database.DB.Model(&thread).Updates(map[string]interface{}{
		"reply_count":   gorm.Expr("reply_count + 1"),
		"last_reply_at": now,
	}).Error; err != nil {
		logger.WarnWithFields("Failed to bump thread activity", err)
	}

	// Deliver through the change feed when wired; otherwise notify the
	// thread author directly
	if h.publisher != nil {
		if err := h.publisher.PublishInsert(c.Request.Context(), "forum_replies", reply.ChangeRecord()); err != nil {
			logger.WarnWithFields("Failed to publish forum reply", err)
		}
	} else if thread.AuthorID != userID {
		h.notifyWS(func(ws *websocket.Handler) {
			ws.NotifyForumReply(thread.AuthorID, &websocket.ForumReplyPayload{
				ReplyID:  reply.ID,
				ThreadID: reply.ThreadID,
				AuthorID: reply.AuthorID,
			})
		})
	}

	c.JSON(http.StatusCreated, gin.H{"reply": reply})
}
