package websocket

import (
	"time"

	"github.com/tabledrop/backend/internal/database"
	"github.com/tabledrop/backend/internal/logger"
	"github.com/tabledrop/backend/internal/metrics"
	"github.com/tabledrop/backend/internal/models"
	"github.com/tabledrop/backend/internal/realtime"
	"go.uber.org/zap"
)

// feedChannel is the multiplexed subscription carrying all row changes
// the hub fans out to clients.
const feedChannel = "tabledrop-feed"

// Bridge connects the realtime change feed to the WebSocket hub. It owns
// one resilient subscription over listings, chat messages and forum
// replies, translates row changes into client messages, and tells
// connected clients when the feed itself degrades.
type Bridge struct {
	hub     *Hub
	manager *realtime.Manager
}

// NewBridge creates a bridge over the given broker.
func NewBridge(hub *Hub, broker realtime.Broker) *Bridge {
	return &Bridge{
		hub:     hub,
		manager: realtime.NewManager(broker),
	}
}

// Start subscribes to the change feed and begins forwarding events.
func (b *Bridge) Start() {
	b.manager.Subscribe(realtime.SubscribeConfig{
		Channel: feedChannel,
		Bindings: []realtime.Binding{
			{
				Table:    "listings",
				Event:    realtime.EventInsert,
				OnChange: b.onListingInsert,
			},
			{
				Table:    "listings",
				Event:    realtime.EventUpdate,
				OnChange: b.onListingUpdate,
			},
			{
				Table:    "chat_messages",
				Event:    realtime.EventInsert,
				OnChange: b.onChatMessage,
			},
			{
				Table:    "forum_replies",
				Event:    realtime.EventInsert,
				OnChange: b.onForumReply,
			},
		},
		OnStatus: b.onStatus,
	})
	logger.Log.Info("Realtime bridge started", zap.String("channel", feedChannel))
}

// Stop tears the subscription down. No events or status updates are
// forwarded after it returns.
func (b *Bridge) Stop() {
	b.manager.Unsubscribe()
	logger.Log.Info("Realtime bridge stopped")
}

// Reconnect forces a fresh subscription attempt, e.g. from an admin
// endpoint after a known transport outage.
func (b *Bridge) Reconnect() {
	b.manager.Reconnect()
}

// Status returns the current feed connectivity state.
func (b *Bridge) Status() realtime.Status {
	return b.manager.Status()
}

// onStatus runs under the manager's lock: record and hand off, nothing
// that could call back into the manager.
func (b *Bridge) onStatus(s realtime.Status) {
	metrics.Get().RealtimeStatusTransitions.WithLabelValues(feedChannel, string(s)).Inc()
	logger.Log.Info("Realtime feed status changed", zap.String("status", string(s)))

	go b.hub.Broadcast(NewMessage(MessageTypeFeedStatus, FeedStatusPayload{
		Status:    string(s),
		Timestamp: time.Now().UnixMilli(),
	}))
}

func (b *Bridge) onListingInsert(ev realtime.ChangeEvent) {
	metrics.Get().RealtimeEventsForwarded.WithLabelValues(ev.Table, string(ev.Type)).Inc()
	b.hub.Broadcast(NewMessage(MessageTypeNewListing, listingPayloadFromRecord(ev.Record)))
}

func (b *Bridge) onListingUpdate(ev realtime.ChangeEvent) {
	metrics.Get().RealtimeEventsForwarded.WithLabelValues(ev.Table, string(ev.Type)).Inc()

	payload := listingPayloadFromRecord(ev.Record)
	msgType := MessageTypeListingUpdated
	switch payload.Status {
	case string(models.ListingReserved):
		msgType = MessageTypeListingReserved
	case string(models.ListingHidden):
		msgType = MessageTypeListingRemoved
	}
	b.hub.Broadcast(NewMessage(msgType, payload))
}

// onChatMessage delivers a new message to both conversation
// participants only, never as a broadcast.
func (b *Bridge) onChatMessage(ev realtime.ChangeEvent) {
	metrics.Get().RealtimeEventsForwarded.WithLabelValues(ev.Table, string(ev.Type)).Inc()

	payload := &ChatMessagePayload{
		MessageID:      recordString(ev.Record, "id"),
		ConversationID: recordString(ev.Record, "conversation_id"),
		SenderID:       recordString(ev.Record, "sender_id"),
		Body:           recordString(ev.Record, "body"),
		CreatedAt:      ev.Timestamp.UnixMilli(),
	}

	if payload.ConversationID == "" || database.DB == nil {
		return
	}

	var conv models.Conversation
	if err := database.DB.First(&conv, "id = ?", payload.ConversationID).Error; err != nil {
		logger.Log.Warn("Chat event for unknown conversation",
			zap.String("conversation_id", payload.ConversationID),
			zap.Error(err))
		return
	}

	msg := NewMessage(MessageTypeChatMessage, payload)
	b.hub.SendToUser(conv.OwnerID, msg)
	b.hub.SendToUser(conv.RequesterID, msg)
}

func (b *Bridge) onForumReply(ev realtime.ChangeEvent) {
	metrics.Get().RealtimeEventsForwarded.WithLabelValues(ev.Table, string(ev.Type)).Inc()

	b.hub.Broadcast(NewMessage(MessageTypeForumReply, &ForumReplyPayload{
		ReplyID:  recordString(ev.Record, "id"),
		ThreadID: recordString(ev.Record, "thread_id"),
		AuthorID: recordString(ev.Record, "author_id"),
	}))
}

// listingPayloadFromRecord builds a ListingPayload from a raw change
// record. Missing fields zero out rather than failing: the payload is a
// notification, clients refetch full listings over HTTP.
func listingPayloadFromRecord(record map[string]interface{}) *ListingPayload {
	return &ListingPayload{
		ListingID: recordString(record, "id"),
		OwnerID:   recordString(record, "owner_id"),
		Title:     recordString(record, "title"),
		Status:    recordString(record, "status"),
		Lat:       recordFloat(record, "lat"),
		Lng:       recordFloat(record, "lng"),
	}
}

func recordString(record map[string]interface{}, key string) string {
	if record == nil {
		return ""
	}
	if s, ok := record[key].(string); ok {
		return s
	}
	return ""
}

func recordFloat(record map[string]interface{}, key string) float64 {
	if record == nil {
		return 0
	}
	if f, ok := record[key].(float64); ok {
		return f
	}
	return 0
}
