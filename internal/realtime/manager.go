package realtime

import (
	"sync"
	"time"

	"github.com/tabledrop/backend/internal/logger"
	"go.uber.org/zap"
)

// Status is the externally observable connectivity state of a Manager.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
)

// RetryPolicy bounds automatic reconnection after transport failures.
type RetryPolicy struct {
	// BaseDelay is the delay before the first retry; it doubles on each
	// consecutive failure.
	BaseDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// MaxAttempts is the number of consecutive failures tolerated before
	// the Manager gives up and reports StatusDisconnected.
	MaxAttempts int
}

// DefaultRetryPolicy returns the standard backoff: 1s base, 30s cap,
// 5 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// delay returns the backoff before retry attempt n (0-indexed failures
// seen so far): min(BaseDelay * 2^n, MaxDelay).
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// SubscribeConfig describes one logical subscription.
type SubscribeConfig struct {
	// Channel is the transport channel name, unique per logical
	// subscription.
	Channel string

	// Bindings are the change registrations multiplexed onto the
	// channel. On every reconnect they are re-registered together as a
	// batch.
	Bindings []Binding

	// OnStatus is invoked on every status transition, including
	// repeated reconnecting transitions. It runs with the Manager's
	// internal lock held so transitions are observed in order; it must
	// return quickly and must not call back into the Manager (spawn a
	// goroutine to do that).
	OnStatus func(Status)
}

// Manager owns the lifecycle of one subscription to the change feed.
// It retries failed connections with exponential backoff up to the
// policy's attempt limit, then gives up until Reconnect is called.
//
// Subscribe never returns an error: all failures are surfaced through
// the status callback, since the operation is long-lived rather than
// request/response.
type Manager struct {
	broker Broker
	policy RetryPolicy

	mu       sync.Mutex
	cfg      SubscribeConfig
	status   Status
	attempts int
	channel  Channel
	timer    *time.Timer
	active   bool

	// gen invalidates callbacks from channels and timers that belong to
	// a previous subscribe/reconnect cycle, so a superseded channel can
	// never double-deliver.
	gen uint64

	// afterFunc schedules retry timers; replaced in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewManager creates a Manager with the default retry policy.
func NewManager(broker Broker) *Manager {
	return NewManagerWithPolicy(broker, DefaultRetryPolicy())
}

// NewManagerWithPolicy creates a Manager with a custom retry policy.
func NewManagerWithPolicy(broker Broker, policy RetryPolicy) *Manager {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	return &Manager{
		broker:    broker,
		policy:    policy,
		status:    StatusDisconnected,
		afterFunc: time.AfterFunc,
	}
}

// Subscribe establishes the subscription asynchronously. Calling it on
// a Manager that is already active tears down the existing channel and
// restarts with the new config; the retry counter resets.
func (m *Manager) Subscribe(cfg SubscribeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelTimerLocked()
	m.closeChannelLocked()
	m.cfg = cfg
	m.attempts = 0
	m.active = true
	m.status = StatusDisconnected
	m.openLocked()
}

// Reconnect forces an immediate fresh attempt from any state. The retry
// counter resets to zero and any pending scheduled retry is cancelled,
// so a manual reconnect can never race a scheduled one into a double
// subscription.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	m.cancelTimerLocked()
	m.closeChannelLocked()
	m.attempts = 0
	m.setStatusLocked(StatusReconnecting)
	m.openLocked()
}

// Unsubscribe tears down the channel and cancels any pending retry.
// After it returns, no binding or status callback fires again. The
// Manager may be reused with a later Subscribe.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	m.active = false
	m.gen++
	m.cancelTimerLocked()
	m.closeChannelLocked()
	m.status = StatusDisconnected
}

// Status returns the current connectivity state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// openLocked replaces the channel wholesale and starts a new subscribe
// cycle. Must hold m.mu.
func (m *Manager) openLocked() {
	m.gen++
	g := m.gen

	ch := m.broker.OpenChannel(m.cfg.Channel, m.wrapBindings(g))
	m.channel = ch
	ch.Subscribe(func(st ChannelStatus) {
		m.onChannelStatus(g, st)
	})
}

// wrapBindings guards every data callback behind the generation check,
// so events from a superseded or unsubscribed channel are dropped.
func (m *Manager) wrapBindings(g uint64) []Binding {
	wrapped := make([]Binding, len(m.cfg.Bindings))
	for i, b := range m.cfg.Bindings {
		deliver := b.OnChange
		b.OnChange = func(ev ChangeEvent) {
			m.mu.Lock()
			live := m.active && m.gen == g
			m.mu.Unlock()
			if live && deliver != nil {
				deliver(ev)
			}
		}
		wrapped[i] = b
	}
	return wrapped
}

// onChannelStatus handles a transport signal for generation g.
func (m *Manager) onChannelStatus(g uint64, st ChannelStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active || g != m.gen {
		return
	}

	switch st {
	case ChannelSubscribed:
		m.attempts = 0
		m.setStatusLocked(StatusConnected)

	case ChannelError, ChannelTimedOut:
		m.scheduleRetryLocked()

	case ChannelClosed:
		// Explicit close from the transport: no automatic recovery.
		m.cancelTimerLocked()
		m.closeChannelLocked()
		m.setStatusLocked(StatusDisconnected)

	default:
		logger.Log.Warn("Unknown channel status",
			zap.String("channel", m.cfg.Channel),
			zap.String("status", string(st)))
	}
}

// scheduleRetryLocked records one failure and either schedules the next
// attempt or gives up once the attempt limit is reached. Must hold m.mu.
func (m *Manager) scheduleRetryLocked() {
	m.attempts++
	if m.attempts >= m.policy.MaxAttempts {
		logger.Log.Warn("Realtime subscription giving up after max attempts",
			zap.String("channel", m.cfg.Channel),
			zap.Int("attempts", m.attempts))
		m.closeChannelLocked()
		m.setStatusLocked(StatusDisconnected)
		return
	}

	delay := m.policy.delay(m.attempts - 1)
	m.setStatusLocked(StatusReconnecting)

	g := m.gen
	m.timer = m.afterFunc(delay, func() {
		m.retry(g)
	})

	logger.Log.Info("Realtime retry scheduled",
		zap.String("channel", m.cfg.Channel),
		zap.Int("attempt", m.attempts),
		zap.Duration("delay", delay))
}

// retry is the timer callback for generation g. A stale generation
// means the timer lost a race with Reconnect, Subscribe or Unsubscribe
// and must not open a second channel.
func (m *Manager) retry(g uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active || g != m.gen {
		return
	}
	m.timer = nil
	m.closeChannelLocked()
	m.openLocked()
}

// setStatusLocked records the transition and notifies the caller
// synchronously, before any subsequent transition can occur. Must hold
// m.mu.
func (m *Manager) setStatusLocked(s Status) {
	m.status = s
	if m.cfg.OnStatus != nil {
		m.cfg.OnStatus(s)
	}
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) closeChannelLocked() {
	if m.channel != nil {
		m.broker.CloseChannel(m.channel)
		m.channel = nil
	}
}
