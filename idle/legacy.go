package idle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pensionhub/go-portal-auth/session"
)

const (
	// keepAliveInterval is the minimum gap between keep-alive pings.
	keepAliveInterval = time.Minute
	// activityDebounce coalesces bursts of user events.
	activityDebounce = 250 * time.Millisecond
)

// SessionPinger is the slice of the member API the legacy monitor
// consumes. Satisfied by *api.Client.
type SessionPinger interface {
	SessionCheck(ctx context.Context) error
	KeepAlive(ctx context.Context) error
}

// LegacyMonitor checks the server-side session on idle and keeps it alive
// on user activity. A session-check failure is treated as expiry; network
// failures are deliberately not distinguished from an expired session.
type LegacyMonitor struct {
	api       SessionPinger
	store     session.Repo
	hub       *Hub
	sessionID string
	sender    string
	timeout   time.Duration
	onExpire  ExpireFunc
	nowTime   func() time.Time
	log       zerolog.Logger

	mu           sync.Mutex
	lastActivity time.Time
	running      bool
	stop         chan struct{}
	reset        chan struct{}
	expireOnce   *sync.Once
}

var _ Monitor = (*LegacyMonitor)(nil)

// LegacyMonitorOption configures a LegacyMonitor.
type LegacyMonitorOption func(*LegacyMonitor)

// WithLegacyNowTime sets the clock (primarily for testing).
func WithLegacyNowTime(nowFunc func() time.Time) LegacyMonitorOption {
	return func(m *LegacyMonitor) {
		m.nowTime = nowFunc
	}
}

// WithLegacyMonitorLogger sets the monitor logger.
func WithLegacyMonitorLogger(log zerolog.Logger) LegacyMonitorOption {
	return func(m *LegacyMonitor) {
		m.log = log
	}
}

// NewLegacyMonitor builds the legacy idle monitor. sessionID keys the
// cross-tab channel and comes from the access token's session claim.
func NewLegacyMonitor(apiClient SessionPinger, store session.Repo, hub *Hub, sessionID string, timeout time.Duration, onExpire ExpireFunc, options ...LegacyMonitorOption) *LegacyMonitor {
	monitor := &LegacyMonitor{
		api:       apiClient,
		store:     store,
		hub:       hub,
		sessionID: sessionID,
		sender:    uuid.NewString(),
		timeout:   timeout,
		onExpire:  onExpire,
		nowTime:   time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(monitor)
	}
	return monitor
}

// Start begins watching. Safe to call once per monitor.
func (m *LegacyMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.reset = make(chan struct{}, 1)
	m.expireOnce = &sync.Once{}
	if m.store.LastKeepAlive().IsZero() {
		m.store.SetLastKeepAlive(m.nowTime())
	}
	m.mu.Unlock()

	messages, cancel := m.hub.Subscribe(m.sessionID)
	go m.loop(messages, cancel)
}

// Stop ends watching. Safe to call repeatedly.
func (m *LegacyMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
}

func (m *LegacyMonitor) loop(messages <-chan Message, cancel func()) {
	defer cancel()
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	for {
		select {
		case <-m.stop:
			return

		case <-timer.C:
			// Idle. Probe the server-side session before giving up.
			if err := m.api.SessionCheck(context.Background()); err != nil {
				m.log.Warn().Err(err).Msg("session check failed, expiring")
				m.expire()
				return
			}
			timer.Reset(m.timeout)

		case <-m.reset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(m.timeout)

		case msg := <-messages:
			if msg.Sender == m.sender {
				continue
			}
			switch msg.Kind {
			case KindExpire:
				m.expire()
				return
			case KindReset:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.timeout)
			}
		}
	}
}

// OnActivity records a user action: debounced, and pinging the keep-alive
// endpoint when more than a minute has passed since the last recorded
// keep-alive. A failed ping expires the session.
func (m *LegacyMonitor) OnActivity(ctx context.Context) {
	now := m.nowTime()

	m.mu.Lock()
	if !m.running || now.Sub(m.lastActivity) < activityDebounce {
		m.mu.Unlock()
		return
	}
	m.lastActivity = now
	m.mu.Unlock()

	last := m.store.LastKeepAlive()
	if now.Sub(last) > keepAliveInterval {
		if err := m.api.KeepAlive(ctx); err != nil {
			m.log.Warn().Err(err).Msg("keep-alive failed, expiring")
			m.expire()
			return
		}
		m.store.SetLastKeepAlive(now)
	}

	select {
	case m.reset <- struct{}{}:
	default:
	}
	m.hub.Publish(Message{SessionID: m.sessionID, Kind: KindReset, Sender: m.sender})
}

func (m *LegacyMonitor) expire() {
	m.expireOnce.Do(func() {
		m.hub.Publish(Message{SessionID: m.sessionID, Kind: KindExpire, Sender: m.sender})
		m.onExpire()
	})
	m.Stop()
}
