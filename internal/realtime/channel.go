// Package realtime maintains resilient subscriptions to the row-change
// feed that backs live updates (listings, chat, forum). A Manager owns
// one logical subscription, surfaces connection status to its caller,
// and recovers from transient transport failures with bounded
// exponential backoff.
package realtime

import (
	"fmt"
	"strings"
	"time"
)

// EventType identifies which row operations a binding receives.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"

	// EventAll matches every operation on the bound table.
	EventAll EventType = "*"
)

// ChannelStatus is the raw connectivity signal reported by a transport
// channel. The Manager translates these into its own Status values.
type ChannelStatus string

const (
	ChannelSubscribed ChannelStatus = "SUBSCRIBED"
	ChannelError      ChannelStatus = "CHANNEL_ERROR"
	ChannelTimedOut   ChannelStatus = "TIMED_OUT"
	ChannelClosed     ChannelStatus = "CLOSED"
)

// ChangeEvent is one row-change notification delivered by the feed.
type ChangeEvent struct {
	Table     string                 `json:"table"`
	Type      EventType              `json:"type"`
	Record    map[string]interface{} `json:"record,omitempty"`
	OldRecord map[string]interface{} `json:"old_record,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Binding registers interest in one table's changes on a channel.
// Several bindings may share a channel (multiplexed subscription); the
// Manager always tears down and re-registers them together.
type Binding struct {
	// Table is the resource whose changes this binding receives.
	Table string

	// Event restricts delivery to one operation. EventAll (or empty)
	// matches every operation.
	Event EventType

	// Filter is an optional "column=eq.value" predicate applied to the
	// new record (old record for deletes).
	Filter string

	// OnChange receives each matching event, in transport delivery order.
	OnChange func(ChangeEvent)
}

// Channel is one live connection to the change feed. A channel is
// exclusively owned by the Manager that opened it and is replaced
// wholesale, never mutated, on reconnect.
type Channel interface {
	// Subscribe starts delivery. Status updates arrive on onStatus until
	// the channel is closed by its broker. Implementations must not
	// invoke onStatus synchronously from Subscribe.
	Subscribe(onStatus func(ChannelStatus))
}

// Broker opens and closes channels against the underlying transport.
// Injecting it keeps the Manager testable without any live connection
// and keeps independent managers from sharing hidden state.
type Broker interface {
	OpenChannel(name string, bindings []Binding) Channel
	CloseChannel(ch Channel)
}

// matches reports whether an event satisfies a binding's event type and
// filter. Filters use the "column=eq.value" form; a malformed filter
// never matches.
func (b Binding) matches(ev ChangeEvent) bool {
	if b.Table != ev.Table {
		return false
	}
	if b.Event != "" && b.Event != EventAll && b.Event != ev.Type {
		return false
	}
	if b.Filter == "" {
		return true
	}

	column, want, ok := parseFilter(b.Filter)
	if !ok {
		return false
	}

	record := ev.Record
	if ev.Type == EventDelete {
		record = ev.OldRecord
	}
	got, present := record[column]
	if !present {
		return false
	}
	return fmt.Sprint(got) == want
}

// parseFilter splits a "column=eq.value" predicate into its parts.
func parseFilter(filter string) (column, value string, ok bool) {
	column, rest, found := strings.Cut(filter, "=")
	if !found || column == "" {
		return "", "", false
	}
	value, found = strings.CutPrefix(rest, "eq.")
	if !found {
		return "", "", false
	}
	return column, value, true
}
