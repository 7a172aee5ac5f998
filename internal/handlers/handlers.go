package handlers

import (
	"github.com/tabledrop/backend/internal/auth"
	"github.com/tabledrop/backend/internal/cache"
	"github.com/tabledrop/backend/internal/realtime"
	"github.com/tabledrop/backend/internal/storage"
	"github.com/tabledrop/backend/internal/websocket"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	auth      auth.ServiceInterface
	wsHandler *websocket.Handler
	uploader  storage.PhotoUploader
	publisher *realtime.Publisher
	bridge    *websocket.Bridge
	cache     *cache.RedisClient
}

// NewHandlers creates a new handlers instance
func NewHandlers(authService auth.ServiceInterface) *Handlers {
	return &Handlers{
		auth: authService,
	}
}

// SetWebSocketHandler sets the WebSocket handler for real-time notifications
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// SetUploader sets the photo uploader
func (h *Handlers) SetUploader(uploader storage.PhotoUploader) {
	h.uploader = uploader
}

// SetPublisher sets the change-feed publisher
func (h *Handlers) SetPublisher(publisher *realtime.Publisher) {
	h.publisher = publisher
}

// SetBridge sets the realtime bridge (for feed status endpoints)
func (h *Handlers) SetBridge(bridge *websocket.Bridge) {
	h.bridge = bridge
}

// SetCache sets the Redis cache client used for viewport caching
func (h *Handlers) SetCache(rc *cache.RedisClient) {
	h.cache = rc
}
