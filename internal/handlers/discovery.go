package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/geo"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/middleware"
	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/telemetry"
	"github.com/tabledrop/backend/internal/util"
)

const (
	defaultRadiusKm = 5.0
	maxRadiusKm     = 50.0
)

// NearbyListing is one discovery result with its computed distance
type NearbyListing struct {
	models.Listing
	DistanceKm float64 `json:"distance_km"`
}

// GetNearbyListings returns available listings around a point, nearest
// first. Results are served from the viewport cache when a recent
// equivalent query exists.
// GET /api/v1/discovery/nearby?lat=..&lng=..&radius_km=..&category=..&limit=..
func (h *Handlers) GetNearbyListings(c *gin.Context) {
	lat := util.ParseFloat(c.Query("lat"), 91)
	lng := util.ParseFloat(c.Query("lng"), 181)
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		util.RespondBadRequest(c, "valid lat and lng are required")
		return
	}

	radius := util.ParseFloat(c.DefaultQuery("radius_km", ""), defaultRadiusKm)
	if radius <= 0 {
		radius = defaultRadiusKm
	}
	if radius > maxRadiusKm {
		radius = maxRadiusKm
	}

	limit := util.ParseInt(c.DefaultQuery("limit", "50"), 50)
	if limit > 200 {
		limit = 200
	}

	category := strings.ToLower(strings.TrimSpace(c.Query("category")))

	origin := geo.Point{Lat: lat, Lng: lng}
	box := geo.BoxAround(origin, radius)

	// Serve a cached viewport when one exists for this box + category
	if h.cache != nil {
		var cached []NearbyListing
		if h.cache.GetViewport(c.Request.Context(), box.MinLat, box.MinLng, box.MaxLat, box.MaxLng, category, &cached) {
			middleware.RecordCacheHit("viewport")
			c.JSON(http.StatusOK, gin.H{
				"listings": trimAndRerank(cached, origin, radius, limit),
				"cached":   true,
			})
			return
		}
		middleware.RecordCacheMiss("viewport")
	}

	ctx, span := telemetry.Get().TraceDiscovery(c.Request.Context(), telemetry.DiscoveryAttrs{
		RadiusKm: radius,
		Category: category,
	})
	defer span.End()

	query := database.DB.WithContext(ctx).
		Preload("Owner").
		Where("status = ?", models.ListingAvailable).
		Where("lat BETWEEN ? AND ?", box.MinLat, box.MaxLat).
		Where("lng BETWEEN ? AND ?", box.MinLng, box.MaxLng)

	if category != "" {
		query = query.Where("? = ANY(categories)", category)
	}

	var candidates []models.Listing
	if err := query.Limit(1000).Find(&candidates).Error; err != nil {
		telemetry.RecordSpanError(span, err)
		logger.ErrorWithFields("Discovery query failed", err)
		util.RespondInternalError(c, "Failed to search listings")
		return
	}

	// Rank the coarse bounding-box matches by true distance
	points := make([]geo.Point, len(candidates))
	for i, l := range candidates {
		points[i] = geo.Point{Lat: l.Lat, Lng: l.Lng}
	}
	ranked := geo.RankByDistance(origin, points, radius)

	results := make([]NearbyListing, 0, len(ranked))
	for _, r := range ranked {
		// Pickup window already over: keep it off the map
		l := candidates[r.Index]
		if l.PickupEnd != nil && l.PickupEnd.Before(time.Now()) {
			continue
		}
		results = append(results, NearbyListing{
			Listing:    l,
			DistanceKm: r.DistanceKm,
		})
	}

	if h.cache != nil {
		h.cache.SetViewport(c.Request.Context(), box.MinLat, box.MinLng, box.MaxLat, box.MaxLng, category, results)
	}

	if len(results) > limit {
		results = results[:limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": results,
		"cached":   false,
	})
}

// trimAndRerank re-ranks cached viewport results against the caller's
// exact origin. The cache buckets boxes to ~1km, so the nearest-first
// order can differ slightly between callers sharing an entry.
func trimAndRerank(cached []NearbyListing, origin geo.Point, radius float64, limit int) []NearbyListing {
	points := make([]geo.Point, len(cached))
	for i, l := range cached {
		points[i] = geo.Point{Lat: l.Lat, Lng: l.Lng}
	}
	ranked := geo.RankByDistance(origin, points, radius)

	out := make([]NearbyListing, 0, len(ranked))
	for _, r := range ranked {
		item := cached[r.Index]
		item.DistanceKm = r.DistanceKm
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
