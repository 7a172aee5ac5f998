package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/middleware"
	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/telemetry"
	"github.com/tabledrop/backend/internal/util"
	"github.com/tabledrop/backend/internal/websocket"
	"gorm.io/gorm"
)

// maxListingPhotos caps how many photos one listing can carry
const maxListingPhotos = 6

// CreateListing creates a new food listing
// POST /api/v1/listings
func (h *Handlers) CreateListing(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Title       string     `json:"title" binding:"required,min=3,max=120"`
		Description string     `json:"description" binding:"max=2000"`
		Categories  []string   `json:"categories" binding:"max=10"`
		Quantity    int        `json:"quantity" binding:"omitempty,min=1,max=1000"`
		Unit        string     `json:"unit" binding:"max=20"`
		Lat         float64    `json:"lat" binding:"required,min=-90,max=90"`
		Lng         float64    `json:"lng" binding:"required,min=-180,max=180"`
		Address     string     `json:"address" binding:"max=255"`
		PickupStart *time.Time `json:"pickup_start,omitempty"`
		PickupEnd   *time.Time `json:"pickup_end,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if req.PickupStart != nil && req.PickupEnd != nil && req.PickupEnd.Before(*req.PickupStart) {
		util.RespondValidationError(c, "pickup_end", "pickup window ends before it starts")
		return
	}

	if req.Quantity == 0 {
		req.Quantity = 1
	}

	listing := models.Listing{
		OwnerID:     userID,
		Title:       req.Title,
		Description: req.Description,
		Categories:  pq.StringArray(req.Categories),
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Address:     req.Address,
		PickupStart: req.PickupStart,
		PickupEnd:   req.PickupEnd,
		Status:      models.ListingAvailable,
	}

	if err := database.DB.Create(&listing).Error; err != nil {
		logger.ErrorWithFields("Failed to create listing", err)
		util.RespondInternalError(c, "Failed to create listing")
		return
	}

	category := "uncategorized"
	if len(listing.Categories) > 0 {
		category = listing.Categories[0]
	}
	middleware.RecordListingCreated(category)

	h.publishListingChange(c, &listing, true)
	h.invalidateViewports(c)

	c.JSON(http.StatusCreated, gin.H{"listing": listing})
}

// GetListing returns a single listing with its owner
// GET /api/v1/listings/:id
func (h *Handlers) GetListing(c *gin.Context) {
	listingID := c.Param("id")

	var listing models.Listing
	if err := database.DB.Preload("Owner").First(&listing, "id = ?", listingID).Error; err != nil {
		util.RespondNotFound(c, "listing")
		return
	}

	// Hidden listings stay visible to their owner and to moderators
	if listing.Status == models.ListingHidden {
		user, exists := c.Get("user")
		viewer, _ := user.(*models.User)
		if !exists || viewer == nil || (viewer.ID != listing.OwnerID && !viewer.IsAdmin()) {
			util.RespondNotFound(c, "listing")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

// UpdateListing edits an open listing's details
// PUT /api/v1/listings/:id
func (h *Handlers) UpdateListing(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var listing models.Listing
	if err := database.DB.First(&listing, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "listing")
		return
	}
	if listing.OwnerID != userID {
		util.RespondForbidden(c, "only the owner can edit a listing")
		return
	}
	if listing.Status == models.ListingGiven {
		util.RespondListingClosed(c, "completed listings cannot be edited")
		return
	}

	var req struct {
		Title       *string    `json:"title,omitempty" binding:"omitempty,min=3,max=120"`
		Description *string    `json:"description,omitempty" binding:"omitempty,max=2000"`
		Categories  *[]string  `json:"categories,omitempty" binding:"omitempty,max=10"`
		Quantity    *int       `json:"quantity,omitempty" binding:"omitempty,min=1,max=1000"`
		Unit        *string    `json:"unit,omitempty" binding:"omitempty,max=20"`
		Address     *string    `json:"address,omitempty" binding:"omitempty,max=255"`
		PickupStart *time.Time `json:"pickup_start,omitempty"`
		PickupEnd   *time.Time `json:"pickup_end,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	if req.Title != nil {
		listing.Title = *req.Title
	}
	if req.Description != nil {
		listing.Description = *req.Description
	}
	if req.Categories != nil {
		listing.Categories = pq.StringArray(*req.Categories)
	}
	if req.Quantity != nil {
		listing.Quantity = *req.Quantity
	}
	if req.Unit != nil {
		listing.Unit = *req.Unit
	}
	if req.Address != nil {
		listing.Address = *req.Address
	}
	if req.PickupStart != nil {
		listing.PickupStart = req.PickupStart
	}
	if req.PickupEnd != nil {
		listing.PickupEnd = req.PickupEnd
	}

	if err := database.DB.Save(&listing).Error; err != nil {
		util.RespondInternalError(c, "Failed to update listing")
		return
	}

	h.publishListingChange(c, &listing, false)
	h.invalidateViewports(c)

	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

// DeleteListing removes a listing from the map
// DELETE /api/v1/listings/:id
func (h *Handlers) DeleteListing(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var listing models.Listing
	if err := database.DB.First(&listing, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "listing")
		return
	}
	if listing.OwnerID != userID {
		util.RespondForbidden(c, "only the owner can delete a listing")
		return
	}

	if err := database.DB.Delete(&listing).Error; err != nil {
		util.RespondInternalError(c, "Failed to delete listing")
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishDelete(c.Request.Context(), "listings", listing.ChangeRecord()); err != nil {
			logger.WarnWithFields("Failed to publish listing delete", err)
		}
	}
	h.invalidateViewports(c)

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetMyListings returns the authenticated user's listings, newest first
// GET /api/v1/users/me/listings
func (h *Handlers) GetMyListings(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	limit := util.ParseInt(c.DefaultQuery("limit", "20"), 20)
	if limit > 100 {
		limit = 100
	}
	offset := util.ParseInt(c.DefaultQuery("offset", "0"), 0)

	var listings []models.Listing
	if err := database.DB.
		Where("owner_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&listings).Error; err != nil {
		util.RespondInternalError(c, "Failed to get listings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

// UploadListingPhoto attaches a photo to a listing
// POST /api/v1/listings/:id/photos
func (h *Handlers) UploadListingPhoto(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	if h.uploader == nil {
		util.RespondInternalError(c, "Photo storage not configured")
		return
	}

	var listing models.Listing
	if err := database.DB.First(&listing, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "listing")
		return
	}
	if listing.OwnerID != userID {
		util.RespondForbidden(c, "only the owner can add photos")
		return
	}
	if len(listing.PhotoURLs) >= maxListingPhotos {
		util.RespondValidationError(c, "photo", "listing already has the maximum number of photos")
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		util.RespondBadRequest(c, "photo file is required")
		return
	}
	if !util.IsValidImageFile(fileHeader.Filename) {
		util.RespondValidationError(c, "photo", "unsupported image format")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.RespondInternalError(c, "Failed to read upload")
		return
	}
	defer file.Close()

	result, err := h.uploader.UploadListingPhoto(c.Request.Context(), file, fileHeader, userID)
	if err != nil {
		logger.ErrorWithFields("Failed to upload listing photo", err)
		util.RespondInternalError(c, "Failed to upload photo")
		return
	}

	listing.PhotoURLs = append(listing.PhotoURLs, result.URL)
	if err := database.DB.Model(&listing).Update("photo_urls", listing.PhotoURLs).Error; err != nil {
		util.RespondInternalError(c, "Failed to save photo")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"photo_url":  result.URL,
		"photo_urls": listing.PhotoURLs,
	})
}

// ReserveListing reserves an available listing for the caller
// POST /api/v1/listings/:id/reserve
func (h *Handlers) ReserveListing(c *gin.Context) {
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
		util.RespondBadRequest(c, "you cannot reserve your own listing")
		return
	}
	if !listing.IsOpen() {
		util.RespondListingClosed(c, "")
		return
	}

	ctx, span := telemetry.Get().TraceReservation(c.Request.Context(), "reserve", listing.ID)
	defer span.End()

	// Conditional update so two simultaneous requests cannot both win
	now := time.Now()
	res := database.DB.WithContext(ctx).Model(&models.Listing{}).
		Where("id = ? AND status = ?", listing.ID, models.ListingAvailable).
		Updates(map[string]interface{}{
			"status":         models.ListingReserved,
			"reserved_by_id": userID,
			"reserved_at":    now,
		})
	if res.Error != nil {
		telemetry.RecordSpanError(span, res.Error)
		util.RespondInternalError(c, "Failed to reserve listing")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondListingClosed(c, "listing was just reserved by someone else")
		return
	}

	listing.Status = models.ListingReserved
	listing.ReservedByID = &userID
	listing.ReservedAt = &now

	middleware.RecordReservation("reserve")
	h.publishListingChange(c, &listing, false)
	h.invalidateViewports(c)

	h.notifyWS(func(ws *websocket.Handler) {
		ws.NotifyListingReserved(listing.OwnerID, &websocket.ListingPayload{
			ListingID: listing.ID,
			OwnerID:   listing.OwnerID,
			Title:     listing.Title,
			Status:    string(listing.Status),
		})
	})

	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

// CancelReservation releases a reserved listing back to available.
// Either the reserver or the owner may cancel.
// POST /api/v1/listings/:id/cancel
func (h *Handlers) CancelReservation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var listing models.Listing
	if err := database.DB.First(&listing, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "listing")
		return
	}
	if listing.Status != models.ListingReserved {
		util.RespondListingClosed(c, "listing is not reserved")
		return
	}
	isReserver := listing.ReservedByID != nil && *listing.ReservedByID == userID
	if !isReserver && listing.OwnerID != userID {
		util.RespondForbidden(c, "only the reserver or owner can cancel")
		return
	}

	res := database.DB.Model(&models.Listing{}).
		Where("id = ? AND status = ?", listing.ID, models.ListingReserved).
		Updates(map[string]interface{}{
			"status":         models.ListingAvailable,
			"reserved_by_id": gorm.Expr("NULL"),
			"reserved_at":    gorm.Expr("NULL"),
		})
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to cancel reservation")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondListingClosed(c, "reservation already changed")
		return
	}

	listing.Status = models.ListingAvailable
	listing.ReservedByID = nil
	listing.ReservedAt = nil

	middleware.RecordReservation("cancel")
	h.publishListingChange(c, &listing, false)
	h.invalidateViewports(c)

	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

// CompleteListing marks a reserved listing as given away
// POST /api/v1/listings/:id/complete
func (h *Handlers) CompleteListing(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var listing models.Listing
	if err := database.DB.First(&listing, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "listing")
		return
	}
	if listing.OwnerID != userID {
		util.RespondForbidden(c, "only the owner can complete a listing")
		return
	}
	if listing.Status != models.ListingReserved {
		util.RespondListingClosed(c, "only reserved listings can be completed")
		return
	}

	res := database.DB.Model(&models.Listing{}).
		Where("id = ? AND status = ?", listing.ID, models.ListingReserved).
		Update("status", models.ListingGiven)
	if res.Error != nil {
		util.RespondInternalError(c, "Failed to complete listing")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondListingClosed(c, "listing already changed")
		return
	}

	listing.Status = models.ListingGiven

	middleware.RecordReservation("complete")
	h.publishListingChange(c, &listing, false)
	h.invalidateViewports(c)

	c.JSON(http.StatusOK, gin.H{"listing": listing})
}

// publishListingChange emits a change event after a committed write.
// Failures are logged, never surfaced: the row is already committed and
// clients recover via the viewport cache TTL.
func (h *Handlers) publishListingChange(c *gin.Context, listing *models.Listing, isInsert bool) {
	if h.publisher == nil {
		return
	}
	var err error
	if isInsert {
		err = h.publisher.PublishInsert(c.Request.Context(), "listings", listing.ChangeRecord())
	} else {
		err = h.publisher.PublishUpdate(c.Request.Context(), "listings", listing.ChangeRecord(), nil)
	}
	if err != nil {
		logger.WarnWithFields("Failed to publish listing change", err)
	}
}

// invalidateViewports drops cached map results after a listing write
func (h *Handlers) invalidateViewports(c *gin.Context) {
	if h.cache == nil {
		return
	}
	h.cache.InvalidateViewports(c.Request.Context())
}
