package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/util"
)

// ListReports returns the moderation queue, oldest open reports first
// GET /api/v1/admin/reports?status=open
func (h *Handlers) ListReports(c *gin.Context) {
	status := c.DefaultQuery("status", string(models.ReportOpen))

	limit := util.ParseInt(c.DefaultQuery("limit", "50"), 50)
	if limit > 200 {
		limit = 200
	}
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)

	var reports []models.Report
	if err := database.DB.
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&reports).Error; err != nil {
		util.RespondInternalError(c, "Failed to get reports")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"count":   len(reports),
	})
}

// ResolveReport closes a report as resolved or dismissed
// PUT /api/v1/admin/reports/:id
func (h *Handlers) ResolveReport(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Status     string `json:"status" binding:"required,oneof=resolved dismissed"`
		Resolution string `json:"resolution" binding:"max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var report models.Report
	if err := database.DB.First(&report, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "report")
		return
	}
	if report.Status != models.ReportOpen {
		util.RespondConflict(c, "report")
		return
	}

	now := time.Now()
	report.Status = models.ReportStatus(req.Status)
	report.Resolution = req.Resolution
	report.ResolvedByID = &admin.ID
	report.ResolvedAt = &now

	if err := database.DB.Save(&report).Error; err != nil {
		util.RespondInternalError(c, "Failed to resolve report")
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// HideListing pulls a listing from discovery without deleting it
// PUT /api/v1/admin/listings/:id/hide
func (h *Handlers) HideListing(c *gin.Context) {
	var listing models.Listing
	if err := database.DB.First(&listing, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "listing")
		return
	}

	if err := database.DB.Model(&listing).Update("status", models.ListingHidden).Error; err != nil {
		util.RespondInternalError(c, "Failed to hide listing")
		return
	}
	listing.Status = models.ListingHidden

	h.publishListingChange(c, &listing, false)
	h.invalidateViewports(c)

	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

// HideThread hides a forum thread from all listings
// PUT /api/v1/admin/forum/threads/:id/hide
func (h *Handlers) HideThread(c *gin.Context) {
	res := database.DB.Model(&models.ForumThread{}).
		Where("id = ?", c.Param("id")).
		Update("is_hidden", true)
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to hide thread")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "thread")
		return
	}

	c.JSON(http.StatusOK, gin.H{"hidden": true})
}

// LockThread prevents further replies to a thread
// PUT /api/v1/admin/forum/threads/:id/lock
func (h *Handlers) LockThread(c *gin.Context) {
	res := database.DB.Model(&models.ForumThread{}).
		Where("id = ?", c.Param("id")).
		Update("is_locked", true)
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to lock thread")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "thread")
		return
	}

	c.JSON(http.StatusOK, gin.H{"locked": true})
}

// HideReply hides a single forum reply
// PUT /api/v1/admin/forum/replies/:id/hide
func (h *Handlers) HideReply(c *gin.Context) {
	res := database.DB.Model(&models.ForumReply{}).
		Where("id = ?", c.Param("id")).
		Update("is_hidden", true)
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to hide reply")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "reply")
		return
	}

	c.JSON(http.StatusOK, gin.H{"hidden": true})
}

// BanUser suspends an account. Banned users cannot log in, and their
// existing tokens stop validating.
// PUT /api/v1/admin/users/:id/ban
func (h *Handlers) BanUser(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required,min=3,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}
	if user.ID == admin.ID {
		util.RespondBadRequest(c, "you cannot ban yourself")
		return
	}
	if user.IsAdmin() {
		util.RespondForbidden(c, "admins cannot be banned")
		return
	}

	now := time.Now()
	if err := database.DB.Model(&user).Updates(map[string]interface{}{
		"is_banned":  true,
		"banned_at":  now,
		"ban_reason": req.Reason,
	}).Error; err != nil {
		util.RespondInternalError(c, "Failed to ban user")
		return
	}

	logger.Infof("User %s banned by %s: %s", user.ID, admin.ID, req.Reason)
	c.JSON(http.StatusOK, gin.H{"banned": true})
}

// UnbanUser lifts an account suspension
// PUT /api/v1/admin/users/:id/unban
func (h *Handlers) UnbanUser(c *gin.Context) {
	var user models.User
	if err := database.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}

	if err := database.DB.Model(&user).Updates(map[string]interface{}{
		"is_banned":  false,
		"banned_at":  nil,
		"ban_reason": "",
	}).Error; err != nil {
		util.RespondInternalError(c, "Failed to unban user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"banned": false})
}

// GetFeedStatus reports the realtime change-feed health
// GET /api/v1/admin/feed/status
func (h *Handlers) GetFeedStatus(c *gin.Context) {
	if h.bridge == nil {
		c.JSON(http.StatusOK, gin.H{"status": "not_configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    h.bridge.Status(),
		"timestamp": time.Now().UTC(),
	})
}

// ReconnectFeed forces a fresh change-feed subscription attempt
// POST /api/v1/admin/feed/reconnect
func (h *Handlers) ReconnectFeed(c *gin.Context) {
	if h.bridge == nil {
		util.RespondInternalError(c, "Realtime feed not configured")
		return
	}
	h.bridge.Reconnect()
	c.JSON(http.StatusOK, gin.H{
		"status":    h.bridge.Status(),
		"timestamp": time.Now().UTC(),
	})
}
