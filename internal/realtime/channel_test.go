package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	testCases := []struct {
		filter string
		column string
		value  string
		ok     bool
	}{
		{"listing_id=eq.42", "listing_id", "42", true},
		{"status=eq.available", "status", "available", true},
		{"owner_id=eq.", "owner_id", "", true},
		{"", "", "", false},
		{"listing_id", "", "", false},
		{"=eq.42", "", "", false},
		{"listing_id=gt.42", "", "", false},
		{"listing_id=42", "", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.filter, func(t *testing.T) {
			column, value, ok := parseFilter(tc.filter)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.column, column)
				assert.Equal(t, tc.value, value)
			}
		})
	}
}

func TestBindingMatches(t *testing.T) {
	insert := ChangeEvent{
		Table: "listings",
		Type:  EventInsert,
		Record: map[string]interface{}{
			"id":     "abc",
			"status": "available",
			// JSON numbers decode as float64
			"quantity": float64(3),
		},
	}

	t.Run("table must match", func(t *testing.T) {
		b := Binding{Table: "chat_messages", Event: EventAll}
		assert.False(t, b.matches(insert))
	})

	t.Run("event all matches everything", func(t *testing.T) {
		b := Binding{Table: "listings", Event: EventAll}
		assert.True(t, b.matches(insert))
	})

	t.Run("empty event matches everything", func(t *testing.T) {
		b := Binding{Table: "listings"}
		assert.True(t, b.matches(insert))
	})

	t.Run("specific event", func(t *testing.T) {
		assert.True(t, Binding{Table: "listings", Event: EventInsert}.matches(insert))
		assert.False(t, Binding{Table: "listings", Event: EventDelete}.matches(insert))
	})

	t.Run("string filter", func(t *testing.T) {
		b := Binding{Table: "listings", Event: EventAll, Filter: "status=eq.available"}
		assert.True(t, b.matches(insert))
		b.Filter = "status=eq.reserved"
		assert.False(t, b.matches(insert))
	})

	t.Run("numeric filter compares textually", func(t *testing.T) {
		b := Binding{Table: "listings", Event: EventAll, Filter: "quantity=eq.3"}
		assert.True(t, b.matches(insert))
	})

	t.Run("missing column never matches", func(t *testing.T) {
		b := Binding{Table: "listings", Event: EventAll, Filter: "nope=eq.1"}
		assert.False(t, b.matches(insert))
	})

	t.Run("malformed filter never matches", func(t *testing.T) {
		b := Binding{Table: "listings", Event: EventAll, Filter: "status>available"}
		assert.False(t, b.matches(insert))
	})

	t.Run("delete filters against the old record", func(t *testing.T) {
		del := ChangeEvent{
			Table:     "listings",
			Type:      EventDelete,
			OldRecord: map[string]interface{}{"id": "abc"},
		}
		b := Binding{Table: "listings", Event: EventDelete, Filter: "id=eq.abc"}
		assert.True(t, b.matches(del))
	})
}

func TestRedisChannelTopicsDeduplicated(t *testing.T) {
	c := &redisChannel{bindings: []Binding{
		{Table: "listings"},
		{Table: "listings", Filter: "owner_id=eq.u1"},
		{Table: "chat_messages"},
	}}

	assert.Equal(t, []string{"changes:listings", "changes:chat_messages"}, c.topics())
}

func TestRedisChannelDispatch(t *testing.T) {
	var got []ChangeEvent
	c := &redisChannel{bindings: []Binding{
		{
			Table: "listings",
			Event: EventAll,
			OnChange: func(ev ChangeEvent) {
				got = append(got, ev)
			},
		},
	}}

	c.dispatch(`{"table":"listings","type":"INSERT","record":{"id":"l1"}}`)
	c.dispatch(`{"table":"forum_replies","type":"INSERT"}`)
	c.dispatch(`not json`)

	require.Len(t, got, 1)
	assert.Equal(t, "listings", got[0].Table)
	assert.Equal(t, EventInsert, got[0].Type)
	assert.Equal(t, "l1", got[0].Record["id"])
}
