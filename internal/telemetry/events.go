package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Events provides spans for domain operations beyond the HTTP/DB layers:
// discovery searches, reservation attempts, realtime delivery.
type Events struct {
	tracer trace.Tracer
}

// NewEvents creates a new domain events tracer
func NewEvents() *Events {
	return &Events{
		tracer: otel.Tracer("domain-events"),
	}
}

// DiscoveryAttrs attributes for nearby-listing searches
type DiscoveryAttrs struct {
	RadiusKm    float64
	Category    string
	CacheHit    bool
	ResultCount int64
}

// TraceDiscovery creates a span for a nearby-listings search
func (e *Events) TraceDiscovery(ctx context.Context, attrs DiscoveryAttrs) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "discovery.nearby",
		trace.WithAttributes(
			attribute.Float64("discovery.radius_km", attrs.RadiusKm),
			attribute.Bool("discovery.cache_hit", attrs.CacheHit),
		),
	)

	if attrs.Category != "" {
		span.SetAttributes(attribute.String("discovery.category", attrs.Category))
	}
	if attrs.ResultCount > 0 {
		span.SetAttributes(attribute.Int64("discovery.result_count", attrs.ResultCount))
	}

	return ctx, span
}

// TraceReservation creates a span for a reservation state change.
// action is "reserve", "cancel" or "complete".
func (e *Events) TraceReservation(ctx context.Context, action, listingID string) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "reservation."+action,
		trace.WithAttributes(
			attribute.String("listing.id", listingID),
		),
	)
	return ctx, span
}

// TraceChatDelivery creates a span for delivering a chat message, either
// through the change feed or a direct WebSocket push
func (e *Events) TraceChatDelivery(ctx context.Context, conversationID, via string) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "chat.deliver",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("chat.via", via),
		),
	)
	return ctx, span
}

// TracePhotoUpload creates a span for an S3 photo upload
func (e *Events) TracePhotoUpload(ctx context.Context, kind string, sizeBytes int64) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "storage.upload_photo",
		trace.WithAttributes(
			attribute.String("photo.kind", kind),
			attribute.Int64("file.size_bytes", sizeBytes),
		),
	)
	return ctx, span
}

// RecordSpanError marks a span failed and records the error
func RecordSpanError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}

var globalEvents *Events

// Get returns the global domain events tracer
func Get() *Events {
	if globalEvents == nil {
		globalEvents = NewEvents()
	}
	return globalEvents
}
