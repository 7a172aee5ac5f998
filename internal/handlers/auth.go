package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tabledrop/backend/internal/auth"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/util"
	"github.com/tabledrop/backend/internal/websocket"
)

// Register creates a new account with email and password
// POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.RegisterUser(req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			util.RespondConflict(c, "email")
		case errors.Is(err, auth.ErrUsernameExists):
			util.RespondConflict(c, "username")
		default:
			logger.ErrorWithFields("Failed to register user", err)
			util.RespondInternalError(c, "Failed to create account")
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login authenticates with email and password
// POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.LoginUser(req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidCredentials):
			util.RespondUnauthorized(c, "invalid email or password")
		case errors.Is(err, auth.ErrAccountBanned):
			util.RespondForbidden(c, "account is banned")
		default:
			logger.ErrorWithFields("Failed to log in user", err)
			util.RespondInternalError(c, "Failed to log in")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetMe returns the authenticated user's own profile
// GET /api/v1/users/me
func (h *Handlers) GetMe(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile updates the authenticated user's profile fields
// PUT /api/v1/users/me
func (h *Handlers) UpdateProfile(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req struct {
		DisplayName *string  `json:"display_name,omitempty" binding:"omitempty,min=1,max=50"`
		Bio         *string  `json:"bio,omitempty" binding:"omitempty,max=500"`
		Lat         *float64 `json:"lat,omitempty"`
		Lng         *float64 `json:"lng,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.Lat != nil {
		updates["lat"] = *req.Lat
	}
	if req.Lng != nil {
		updates["lng"] = *req.Lng
	}
	if len(updates) == 0 {
		util.RespondBadRequest(c, "no fields to update")
		return
	}

	if err := database.DB.Model(user).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "Failed to update profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UploadAvatar replaces the authenticated user's avatar image
// POST /api/v1/users/me/avatar
func (h *Handlers) UploadAvatar(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	if h.uploader == nil {
		util.RespondInternalError(c, "Photo storage not configured")
		return
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		util.RespondBadRequest(c, "avatar file is required")
		return
	}
	if !util.IsValidImageFile(fileHeader.Filename) {
		util.RespondValidationError(c, "avatar", "unsupported image format")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.RespondInternalError(c, "Failed to read upload")
		return
	}
	defer file.Close()

	result, err := h.uploader.UploadAvatar(c.Request.Context(), file, fileHeader, user.ID)
	if err != nil {
		logger.ErrorWithFields("Failed to upload avatar", err)
		util.RespondInternalError(c, "Failed to upload avatar")
		return
	}

	if err := database.DB.Model(user).Update("avatar_url", result.URL).Error; err != nil {
		util.RespondInternalError(c, "Failed to save avatar")
		return
	}

	c.JSON(http.StatusOK, gin.H{"avatar_url": result.URL})
}

// GetUserProfile returns another user's public profile
// GET /api/v1/users/:id
func (h *Handlers) GetUserProfile(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}

	profile := user.PublicProfile()
	if h.wsHandler != nil {
		profile["is_online"] = h.wsHandler.GetHub().IsUserOnline(user.ID)
	}

	c.JSON(http.StatusOK, gin.H{"user": profile})
}

// notifyWS runs a WebSocket notification callback if the handler is wired.
// Notifications are best-effort and never block the request path.
func (h *Handlers) notifyWS(fn func(ws *websocket.Handler)) {
	if h.wsHandler == nil {
		return
	}
	go fn(h.wsHandler)
}
