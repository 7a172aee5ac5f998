package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/util"
)

// validReportTargets is the closed set of reportable content kinds
var validReportTargets = map[models.ReportTargetType]bool{
	models.ReportTargetListing: true,
	models.ReportTargetMessage: true,
	models.ReportTargetThread:  true,
	models.ReportTargetReply:   true,
	models.ReportTargetUser:    true,
}

// CreateReport files a moderation report against a piece of content
// POST /api/v1/reports
func (h *Handlers) CreateReport(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		TargetType string `json:"target_type" binding:"required"`
		TargetID   string `json:"target_id" binding:"required"`
		Reason     string `json:"reason" binding:"required,min=3,max=50"`
		Details    string `json:"details" binding:"max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	targetType := models.ReportTargetType(req.TargetType)
	if !validReportTargets[targetType] {
		util.RespondValidationError(c, "target_type", "unknown target type")
		return
	}

	// One open report per reporter per target
	var existing models.Report
	err := database.DB.
		Where("reporter_id = ? AND target_type = ? AND target_id = ? AND status = ?",
			userID, targetType, req.TargetID, models.ReportOpen).
		First(&existing).Error
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"report": existing, "duplicate": true})
		return
	}

	report := models.Report{
		ReporterID: userID,
		TargetType: targetType,
		TargetID:   req.TargetID,
		Reason:     req.Reason,
		Details:    req.Details,
	}
	if err := database.DB.Create(&report).Error; err != nil {
		logger.ErrorWithFields("Failed to create report", err)
		util.RespondInternalError(c, "Failed to create report")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"report": report})
}
