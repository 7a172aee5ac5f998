package realtime

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabledrop/backend/internal/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

// fakeChannel records its bindings and lets tests drive transport
// signals and event delivery by hand.
type fakeChannel struct {
	mu       sync.Mutex
	name     string
	bindings []Binding
	onStatus func(ChannelStatus)
	closed   bool
}

func (c *fakeChannel) Subscribe(onStatus func(ChannelStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = onStatus
}

// signal emits one transport status, as the real broker would from its
// delivery goroutine.
func (c *fakeChannel) signal(st ChannelStatus) {
	c.mu.Lock()
	cb := c.onStatus
	c.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

// deliver pushes a change event through the channel's bindings.
func (c *fakeChannel) deliver(ev ChangeEvent) {
	c.mu.Lock()
	bindings := c.bindings
	c.mu.Unlock()
	for _, b := range bindings {
		if b.matches(ev) && b.OnChange != nil {
			b.OnChange(ev)
		}
	}
}

type fakeBroker struct {
	mu     sync.Mutex
	opened []*fakeChannel
}

func (b *fakeBroker) OpenChannel(name string, bindings []Binding) Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := &fakeChannel{name: name, bindings: bindings}
	b.opened = append(b.opened, ch)
	return ch
}

func (b *fakeBroker) CloseChannel(ch Channel) {
	fc, ok := ch.(*fakeChannel)
	if !ok {
		return
	}
	fc.mu.Lock()
	fc.closed = true
	fc.mu.Unlock()
}

func (b *fakeBroker) last() *fakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened[len(b.opened)-1]
}

func (b *fakeBroker) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opened)
}

// scheduledRetry is one captured retry timer.
type scheduledRetry struct {
	delay time.Duration
	fire  func()
}

// testHarness wires a Manager to a fake broker with captured timers and
// recorded status transitions.
type testHarness struct {
	broker   *fakeBroker
	manager  *Manager
	mu       sync.Mutex
	statuses []Status
	retries  []scheduledRetry
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{broker: &fakeBroker{}}
	h.manager = NewManager(h.broker)
	h.manager.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		h.mu.Lock()
		h.retries = append(h.retries, scheduledRetry{delay: d, fire: fn})
		h.mu.Unlock()
		// Real timer far enough out that it never fires during a test.
		return time.AfterFunc(time.Hour, func() {})
	}
	return h
}

func (h *testHarness) onStatus(s Status) {
	h.statuses = append(h.statuses, s)
}

func (h *testHarness) recorded() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Status(nil), h.statuses...)
}

func (h *testHarness) retryCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.retries)
}

func (h *testHarness) fireRetry(i int) {
	h.mu.Lock()
	r := h.retries[i]
	h.mu.Unlock()
	r.fire()
}

func (h *testHarness) subscribe(bindings ...Binding) {
	h.manager.Subscribe(SubscribeConfig{
		Channel:  "listings:all",
		Bindings: bindings,
		OnStatus: h.onStatus,
	})
}

func listingBinding(events *[]ChangeEvent) Binding {
	return Binding{
		Table: "listings",
		Event: EventAll,
		OnChange: func(ev ChangeEvent) {
			*events = append(*events, ev)
		},
	}
}

func TestManagerConnectsOnSubscribed(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))

	assert.Equal(t, StatusDisconnected, h.manager.Status())
	require.Equal(t, 1, h.broker.openCount())

	h.broker.last().signal(ChannelSubscribed)

	assert.Equal(t, StatusConnected, h.manager.Status())
	assert.Equal(t, []Status{StatusConnected}, h.recorded())
	assert.Zero(t, h.manager.attempts)
}

func TestManagerForwardsEventsWhileConnected(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))
	h.broker.last().signal(ChannelSubscribed)

	h.broker.last().deliver(ChangeEvent{Table: "listings", Type: EventInsert})
	h.broker.last().deliver(ChangeEvent{Table: "listings", Type: EventUpdate})

	require.Len(t, events, 2)
	assert.Equal(t, EventInsert, events[0].Type)
	assert.Equal(t, EventUpdate, events[1].Type)
}

func TestManagerBackoffSequence(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))
	h.broker.last().signal(ChannelSubscribed)

	// Three consecutive errors with no intervening success.
	for i := 0; i < 3; i++ {
		h.broker.last().signal(ChannelError)
		assert.Equal(t, StatusReconnecting, h.manager.Status())
		assert.Equal(t, i+1, h.manager.attempts)
		require.Equal(t, i+1, h.retryCount())
		h.fireRetry(i)
	}

	h.mu.Lock()
	delays := []time.Duration{h.retries[0].delay, h.retries[1].delay, h.retries[2].delay}
	h.mu.Unlock()
	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
	}, delays)

	// Success resets the counter.
	h.broker.last().signal(ChannelSubscribed)
	assert.Equal(t, StatusConnected, h.manager.Status())
	assert.Zero(t, h.manager.attempts)

	assert.Equal(t, []Status{
		StatusConnected,
		StatusReconnecting, StatusReconnecting, StatusReconnecting,
		StatusConnected,
	}, h.recorded())
}

func TestManagerGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))
	h.broker.last().signal(ChannelSubscribed)

	// Failures 1-4 each schedule a retry; the 5th exhausts the budget.
	for i := 0; i < 4; i++ {
		h.broker.last().signal(ChannelTimedOut)
		require.Equal(t, i+1, h.retryCount())
		h.fireRetry(i)
	}
	h.broker.last().signal(ChannelTimedOut)

	assert.Equal(t, StatusDisconnected, h.manager.Status())
	assert.Equal(t, 5, h.manager.attempts)
	assert.Equal(t, 4, h.retryCount(), "no retry scheduled after giving up")

	h.mu.Lock()
	delays := make([]time.Duration, 0, len(h.retries))
	for _, r := range h.retries {
		delays = append(delays, r.delay)
	}
	h.mu.Unlock()
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	}, delays)
}

func TestManagerStatusAlwaysDefined(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))

	signals := []ChannelStatus{
		ChannelError, ChannelSubscribed, ChannelTimedOut,
		ChannelSubscribed, ChannelClosed, ChannelError,
	}
	for _, st := range signals {
		h.broker.last().signal(st)
		assert.Contains(t,
			[]Status{StatusConnected, StatusDisconnected, StatusReconnecting},
			h.manager.Status())
	}
	for _, s := range h.recorded() {
		assert.Contains(t,
			[]Status{StatusConnected, StatusDisconnected, StatusReconnecting}, s)
	}
}

func TestManagerReconnectResetsAndSupersedesTimer(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))
	h.broker.last().signal(ChannelSubscribed)

	// Two failures leave a pending retry and counter at 2.
	h.broker.last().signal(ChannelError)
	h.fireRetry(0)
	h.broker.last().signal(ChannelError)
	require.Equal(t, 2, h.manager.attempts)
	require.Equal(t, 2, h.retryCount())

	staleChannel := h.broker.last()
	h.manager.Reconnect()
	assert.Zero(t, h.manager.attempts)
	assert.Equal(t, StatusReconnecting, h.manager.Status())

	opened := h.broker.openCount()
	// The superseded timer firing must not open a second channel.
	h.fireRetry(1)
	assert.Equal(t, opened, h.broker.openCount())

	// Events on the replaced channel are dropped; the fresh one delivers.
	fresh := h.broker.last()
	fresh.signal(ChannelSubscribed)
	staleChannel.deliver(ChangeEvent{Table: "listings", Type: EventInsert})
	assert.Empty(t, events)
	fresh.deliver(ChangeEvent{Table: "listings", Type: EventInsert})
	assert.Len(t, events, 1, "exactly one delivery after manual reconnect")
}

func TestManagerReconnectResumesAfterGiveUp(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))

	for i := 0; i < 4; i++ {
		h.broker.last().signal(ChannelTimedOut)
		h.fireRetry(i)
	}
	h.broker.last().signal(ChannelTimedOut)
	require.Equal(t, StatusDisconnected, h.manager.Status())

	h.manager.Reconnect()
	h.broker.last().signal(ChannelSubscribed)
	assert.Equal(t, StatusConnected, h.manager.Status())
	assert.Zero(t, h.manager.attempts)
}

func TestManagerUnsubscribeStopsAllCallbacks(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))
	h.broker.last().signal(ChannelSubscribed)
	h.broker.last().signal(ChannelError)
	require.Equal(t, 1, h.retryCount())

	ch := h.broker.last()
	h.manager.Unsubscribe()
	assert.Equal(t, StatusDisconnected, h.manager.Status())

	before := h.recorded()
	opened := h.broker.openCount()

	// Pending retry, late statuses and late events are all inert now.
	h.fireRetry(0)
	ch.signal(ChannelSubscribed)
	ch.signal(ChannelError)
	ch.deliver(ChangeEvent{Table: "listings", Type: EventInsert})

	assert.Equal(t, opened, h.broker.openCount())
	assert.Equal(t, before, h.recorded())
	assert.Empty(t, events)
	assert.Equal(t, 1, h.retryCount())
}

func TestManagerUnsubscribeClosesChannel(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))
	ch := h.broker.last()
	h.manager.Unsubscribe()

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.True(t, ch.closed)
}

func TestManagerTransportCloseIsTerminal(t *testing.T) {
	h := newHarness(t)
	var events []ChangeEvent
	h.subscribe(listingBinding(&events))
	h.broker.last().signal(ChannelSubscribed)

	h.broker.last().signal(ChannelClosed)
	assert.Equal(t, StatusDisconnected, h.manager.Status())
	assert.Zero(t, h.retryCount(), "explicit close never schedules a retry")
}

func TestManagerMultiplexedRebuild(t *testing.T) {
	h := newHarness(t)
	var listingEvents, chatEvents []ChangeEvent
	h.subscribe(
		listingBinding(&listingEvents),
		Binding{
			Table: "chat_messages",
			Event: EventInsert,
			OnChange: func(ev ChangeEvent) {
				chatEvents = append(chatEvents, ev)
			},
		},
	)
	h.broker.last().signal(ChannelSubscribed)

	// One error triggers exactly one reconnect cycle for the whole
	// channel, not one per binding.
	h.broker.last().signal(ChannelError)
	require.Equal(t, 1, h.retryCount())
	h.fireRetry(0)
	require.Equal(t, 2, h.broker.openCount())

	// Both registrations came back as a batch.
	fresh := h.broker.last()
	require.Len(t, fresh.bindings, 2)
	fresh.signal(ChannelSubscribed)
	fresh.deliver(ChangeEvent{Table: "listings", Type: EventUpdate})
	fresh.deliver(ChangeEvent{Table: "chat_messages", Type: EventInsert})
	assert.Len(t, listingEvents, 1)
	assert.Len(t, chatEvents, 1)
}

func TestManagerResubscribeRestarts(t *testing.T) {
	h := newHarness(t)
	var first, second []ChangeEvent
	h.subscribe(listingBinding(&first))
	old := h.broker.last()
	old.signal(ChannelSubscribed)

	h.subscribe(listingBinding(&second))
	fresh := h.broker.last()
	require.NotSame(t, old, fresh)

	old.mu.Lock()
	closed := old.closed
	old.mu.Unlock()
	assert.True(t, closed, "previous channel torn down on re-subscribe")

	fresh.signal(ChannelSubscribed)
	old.deliver(ChangeEvent{Table: "listings", Type: EventInsert})
	fresh.deliver(ChangeEvent{Table: "listings", Type: EventInsert})
	assert.Empty(t, first)
	assert.Len(t, second, 1)
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // clamped
		{6, 30 * time.Second},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, p.delay(tc.attempt), "attempt %d", tc.attempt)
	}
}
